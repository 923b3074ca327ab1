package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/email"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/slack"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	sent []email.Message
	err  error
}

func (m *mockMailer) Send(msg email.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockSlack struct {
	messages []slack.Message
}

func (m *mockSlack) SendMessage(_ context.Context, msg slack.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func testAffiliate() *domain.Affiliate {
	return &domain.Affiliate{
		ID:            "aff-1",
		UserID:        "user-1",
		AffiliateCode: "DSAABC12345",
		Status:        domain.AffiliateStatusActive,
		Email:         "ada@example.com",
		DisplayName:   "Ada",
	}
}

func testReferral() *domain.Referral {
	return &domain.Referral{
		ID:               "ref-1",
		OrderID:          "1042",
		OrderAmount:      decimal.RequireFromString("1250.00"),
		CommissionAmount: decimal.RequireFromString("125.00"),
		Status:           domain.ReferralStatusPending,
		CreatedAt:        time.Now(),
	}
}

func setupNotifier(cfg Config) (*Notifier, *mockMailer, *mockSlack) {
	mailer := &mockMailer{}
	sl := &mockSlack{}
	return NewNotifier(mailer, slack.NewService(sl), cfg, nil), mailer, sl
}

func TestHandle_ReferralCreated(t *testing.T) {
	ctx := context.Background()
	e := events.Event{Type: events.ReferralCreated, Affiliate: testAffiliate(), Referral: testReferral()}

	t.Run("Success - Affiliate only", func(t *testing.T) {
		n, mailer, sl := setupNotifier(Config{})

		require.NoError(t, n.Handle(ctx, e))

		require.Len(t, mailer.sent, 1)
		m := mailer.sent[0]
		assert.Equal(t, "ada@example.com", m.ToEmail)
		assert.Equal(t, "New Referral - Commission Pending", m.Subject)
		assert.Contains(t, m.Body, "Hello Ada,")
		assert.Contains(t, m.Body, "Order ID: #1042")
		assert.Contains(t, m.Body, "Order Amount: $1,250.00")
		assert.Contains(t, m.Body, "Your Commission: $125.00")
		assert.Empty(t, sl.messages)
	})

	t.Run("Success - Admin mail and Slack when enabled", func(t *testing.T) {
		n, mailer, sl := setupNotifier(Config{NotifyAdmin: true, AdminEmail: "admin@example.com", CurrencySymbol: "€"})

		require.NoError(t, n.Handle(ctx, e))

		require.Len(t, mailer.sent, 2)
		admin := mailer.sent[1]
		assert.Equal(t, "admin@example.com", admin.ToEmail)
		assert.Equal(t, "New Affiliate Referral Created", admin.Subject)
		assert.Contains(t, admin.Body, "Affiliate: Ada (ada@example.com)")
		assert.Contains(t, admin.Body, "Commission Amount: €125.00")
		require.Len(t, sl.messages, 1)
		assert.Contains(t, sl.messages[0].Text, "1042")
	})

	t.Run("Success - Mail failures are swallowed", func(t *testing.T) {
		mailer := &mockMailer{err: errors.New("smtp down")}
		n := NewNotifier(mailer, nil, Config{}, nil)

		assert.NoError(t, n.Handle(ctx, e))
		assert.Len(t, mailer.sent, 1)
	})
}

func TestHandle_ReferralStatus(t *testing.T) {
	ctx := context.Background()
	n, mailer, _ := setupNotifier(Config{})

	require.NoError(t, n.Handle(ctx, events.Event{Type: events.ReferralApproved, Affiliate: testAffiliate(), Referral: testReferral()}))
	require.NoError(t, n.Handle(ctx, events.Event{Type: events.ReferralRejected, Affiliate: testAffiliate(), Referral: testReferral(), Reason: "refunded"}))

	require.Len(t, mailer.sent, 2)
	assert.Equal(t, "Commission Approved!", mailer.sent[0].Subject)
	assert.Contains(t, mailer.sent[0].Body, "Commission Amount: $125.00")
	assert.Equal(t, "Referral Status Update", mailer.sent[1].Subject)
	assert.Contains(t, mailer.sent[1].Body, "Your referral for Order #1042 has been updated.")
	assert.Contains(t, mailer.sent[1].Body, "Status: Refunded")
}

func TestHandle_Application(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Registration mails applicant and admin", func(t *testing.T) {
		n, mailer, sl := setupNotifier(Config{NotifyAdmin: true, AdminEmail: "admin@example.com"})
		aff := testAffiliate()
		aff.Status = domain.AffiliateStatusPending

		require.NoError(t, n.Handle(ctx, events.Event{Type: events.AffiliateRegistered, Affiliate: aff}))

		require.Len(t, mailer.sent, 2)
		assert.Equal(t, "Welcome to Directorist Affiliate Program", mailer.sent[0].Subject)
		assert.Contains(t, mailer.sent[1].Body, "Affiliate Code: DSAABC12345")
		assert.Len(t, sl.messages, 1)
	})

	t.Run("Success - Approval includes the code", func(t *testing.T) {
		n, mailer, _ := setupNotifier(Config{})

		require.NoError(t, n.Handle(ctx, events.Event{
			Type:      events.AffiliateStatusChanged,
			Affiliate: testAffiliate(),
			Code:      &domain.AffiliateCode{Code: "DSAABC12345"},
		}))

		require.Len(t, mailer.sent, 1)
		m := mailer.sent[0]
		assert.Equal(t, "Your Affiliate Application Status - Active", m.Subject)
		assert.Contains(t, m.Body, "Your affiliate code is: DSAABC12345")
		assert.NotContains(t, m.Body, "Reason:")
	})

	t.Run("Success - Rejection includes the reason", func(t *testing.T) {
		n, mailer, _ := setupNotifier(Config{})
		aff := testAffiliate()
		aff.Status = domain.AffiliateStatusRejected

		require.NoError(t, n.Handle(ctx, events.Event{Type: events.AffiliateStatusChanged, Affiliate: aff, Reason: "Incomplete website"}))

		m := mailer.sent[0]
		assert.Equal(t, "Your Affiliate Application Status - Rejected", m.Subject)
		assert.Contains(t, m.Body, "Reason: Incomplete website")
		assert.NotContains(t, m.Body, "affiliate code")
	})
}

func TestHandle_Payouts(t *testing.T) {
	ctx := context.Background()
	n, mailer, sl := setupNotifier(Config{NotifyAdmin: true, AdminEmail: "admin@example.com"})
	p := &domain.Payout{Amount: decimal.RequireFromString("15.25"), PaymentMethod: "bank_transfer", Status: domain.PayoutStatusRequested}

	require.NoError(t, n.Handle(ctx, events.Event{Type: events.PayoutRequested, Affiliate: testAffiliate(), Payout: p}))
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Body, "Payment Method: Bank Transfer")
	assert.Len(t, sl.messages, 1)

	done := *p
	done.Status = domain.PayoutStatusCompleted
	done.TransactionID = "TX-9"
	require.NoError(t, n.Handle(ctx, events.Event{Type: events.PayoutStatusChanged, Affiliate: testAffiliate(), Payout: &done}))

	require.Len(t, mailer.sent, 2)
	m := mailer.sent[1]
	assert.Equal(t, "Payout Update - Completed", m.Subject)
	assert.Contains(t, m.Body, "Your payout of $15.25 has been updated.")
	assert.Contains(t, m.Body, "Transaction ID: TX-9")
}

func TestHandle_IgnoresEventsWithoutAffiliate(t *testing.T) {
	n, mailer, _ := setupNotifier(Config{})

	require.NoError(t, n.Handle(context.Background(), events.Event{Type: events.ReferralCreated}))
	assert.Empty(t, mailer.sent)
}

func TestLabelAndPrice(t *testing.T) {
	assert.Equal(t, "Pending", Label("pending"))
	assert.Equal(t, "Bank Transfer", Label("bank_transfer"))
	assert.Equal(t, "$0.50", Price("$", decimal.RequireFromString("0.5")))
	assert.Equal(t, "$12,345.68", Price("$", decimal.RequireFromString("12345.678")))
}
