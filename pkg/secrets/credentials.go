package secrets

import (
	"context"
	"errors"

	"github.com/jordanlanch/directorist-affiliate/config"
)

// Credentials are the API's sensitive settings
type Credentials struct {
	JWTSecret           string
	OrderWebhookSecret  string
	StripeWebhookSecret string
	SendGridAPIKey      string
	SlackWebhookURL     string
}

// Keys of the resolved credentials
const (
	KeyJWTSecret           = "JWT_SECRET"
	KeyOrderWebhookSecret  = "ORDER_WEBHOOK_SECRET"
	KeyStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	KeySendGridAPIKey      = "SENDGRID_API_KEY"
	KeySlackWebhookURL     = "SLACK_WEBHOOK_URL"
)

// Load resolves every credential. Missing keys stay empty; other failures abort.
func Load(ctx context.Context, m Manager) (*Credentials, error) {
	c := &Credentials{}
	fields := []struct {
		key  string
		dest *string
	}{
		{KeyJWTSecret, &c.JWTSecret},
		{KeyOrderWebhookSecret, &c.OrderWebhookSecret},
		{KeyStripeWebhookSecret, &c.StripeWebhookSecret},
		{KeySendGridAPIKey, &c.SendGridAPIKey},
		{KeySlackWebhookURL, &c.SlackWebhookURL},
	}
	for _, f := range fields {
		v, err := m.GetSecret(ctx, f.key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		*f.dest = v
	}
	return c, nil
}

// Overlay copies the non-empty values of c onto cfg
func (c *Credentials) Overlay(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.JWTSecret, c.JWTSecret)
	set(&cfg.OrderWebhookSecret, c.OrderWebhookSecret)
	set(&cfg.StripeWebhookSecret, c.StripeWebhookSecret)
	set(&cfg.SendGridAPIKey, c.SendGridAPIKey)
	set(&cfg.SlackWebhookURL, c.SlackWebhookURL)
}
