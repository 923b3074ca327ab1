package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrSlackSendFailed is returned when Slack API fails
	ErrSlackSendFailed = errors.New("failed to send Slack notification")
)

// Message represents a Slack message
type Message struct {
	Text string `json:"text"`
}

// SlackClient is an interface for sending Slack notifications
type SlackClient interface {
	SendMessage(ctx context.Context, msg Message) error
}

// WebhookClient implements SlackClient using Slack webhooks
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new Slack webhook client
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendMessage sends a message to Slack via webhook
func (c *WebhookClient) SendMessage(ctx context.Context, msg Message) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrSlackSendFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ErrSlackSendFailed
	}
	return nil
}

// Service handles Slack notifications for program admins
type Service struct {
	client SlackClient
}

// NewService creates a new Slack service. A nil client disables it.
func NewService(client SlackClient) *Service {
	return &Service{
		client: client,
	}
}

// IsEnabled returns true if Slack notifications are enabled
func (s *Service) IsEnabled() bool {
	return s != nil && s.client != nil
}

// NotifyNewApplication announces a new affiliate application
func (s *Service) NotifyNewApplication(ctx context.Context, name, email, website string) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("🤝 *New Affiliate Application*\n"+
		"• Name: %s\n"+
		"• Email: %s",
		name, email)
	if website != "" {
		text += fmt.Sprintf("\n• Website: %s", website)
	}

	return s.client.SendMessage(ctx, Message{Text: text})
}

// NotifyNewReferral announces a pending commission
func (s *Service) NotifyNewReferral(ctx context.Context, affiliate, orderID, orderAmount, commission string) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("💰 *New Referral*\n"+
		"• Affiliate: %s\n"+
		"• Order: %s\n"+
		"• Amount: %s\n"+
		"• Commission: %s",
		affiliate, orderID, orderAmount, commission)

	return s.client.SendMessage(ctx, Message{Text: text})
}

// NotifyPayoutRequested announces a payout waiting for processing
func (s *Service) NotifyPayoutRequested(ctx context.Context, affiliate, amount, method string) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("🏦 *Payout Requested*\n"+
		"• Affiliate: %s\n"+
		"• Amount: %s\n"+
		"• Method: %s",
		affiliate, amount, method)

	return s.client.SendMessage(ctx, Message{Text: text})
}

// NotifyDailySummary posts the pending work of the program
func (s *Service) NotifyDailySummary(ctx context.Context, pendingApplications, pendingReferrals int, pendingAmount string, requestedPayouts int) error {
	if !s.IsEnabled() {
		return nil
	}

	text := fmt.Sprintf("📊 *Affiliate Program Daily Summary*\n"+
		"• Pending applications: %d\n"+
		"• Pending referrals: %d (%s)\n"+
		"• Requested payouts: %d",
		pendingApplications, pendingReferrals, pendingAmount, requestedPayouts)

	return s.client.SendMessage(ctx, Message{Text: text})
}
