// Package notification mails affiliates and admins about program events.
package notification

import (
	"context"

	"github.com/jordanlanch/directorist-affiliate/pkg/email"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/slack"
)

// Mailer sends prepared messages
type Mailer interface {
	Send(m email.Message) error
}

// Config controls who is notified
type Config struct {
	NotifyAdmin    bool
	AdminEmail     string
	CurrencySymbol string
}

// Notifier is an events.Handler that turns events into email and Slack messages.
// Delivery failures are logged and dropped.
type Notifier struct {
	mailer Mailer
	slack  *slack.Service
	cfg    Config
	logger logger.Logger
}

// NewNotifier creates a notifier. slackSvc may be nil.
func NewNotifier(mailer Mailer, slackSvc *slack.Service, cfg Config, log logger.Logger) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "$"
	}
	return &Notifier{mailer: mailer, slack: slackSvc, cfg: cfg, logger: log.With("component", "notification")}
}

// Handle implements events.Handler
func (n *Notifier) Handle(ctx context.Context, e events.Event) error {
	aff := e.Affiliate
	if aff == nil {
		return nil
	}
	sym := n.cfg.CurrencySymbol

	switch e.Type {
	case events.AffiliateRegistered:
		n.send(applicationReceivedMail(aff))
		if n.admin() {
			n.send(adminApplicationMail(n.cfg.AdminEmail, aff))
		}
		n.slackErr(n.slack.NotifyNewApplication(ctx, name(aff), aff.Email, aff.Website))

	case events.AffiliateStatusChanged:
		code := ""
		if e.Code != nil {
			code = e.Code.Code
		}
		n.send(applicationStatusMail(aff, code, e.Reason))

	case events.ReferralCreated:
		if e.Referral == nil {
			return nil
		}
		n.send(newReferralMail(aff, e.Referral, sym))
		if n.admin() {
			n.send(adminReferralMail(n.cfg.AdminEmail, aff, e.Referral, sym))
			n.slackErr(n.slack.NotifyNewReferral(ctx, name(aff), e.Referral.OrderID,
				Price(sym, e.Referral.OrderAmount), Price(sym, e.Referral.CommissionAmount)))
		}

	case events.ReferralApproved:
		if e.Referral != nil {
			n.send(approvedMail(aff, e.Referral, sym))
		}

	case events.ReferralRejected:
		if e.Referral != nil {
			n.send(rejectedMail(aff, e.Referral, e.Reason))
		}

	case events.PayoutRequested:
		if e.Payout == nil {
			return nil
		}
		if n.admin() {
			n.send(adminPayoutMail(n.cfg.AdminEmail, aff, e.Payout, sym))
		}
		n.slackErr(n.slack.NotifyPayoutRequested(ctx, name(aff), Price(sym, e.Payout.Amount), e.Payout.PaymentMethod))

	case events.PayoutStatusChanged:
		if e.Payout != nil {
			n.send(payoutMail(aff, e.Payout, sym))
		}
	}
	return nil
}

func (n *Notifier) admin() bool {
	return n.cfg.NotifyAdmin && n.cfg.AdminEmail != ""
}

func (n *Notifier) send(m email.Message) {
	if n.mailer == nil || m.ToEmail == "" {
		return
	}
	if err := n.mailer.Send(m); err != nil {
		n.logger.Error("failed to send notification", "to", m.ToEmail, "subject", m.Subject, "error", err)
	}
}

func (n *Notifier) slackErr(err error) {
	if err != nil {
		n.logger.Warn("slack notification failed", "error", err)
	}
}
