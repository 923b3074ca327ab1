package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/email"
	"github.com/jordanlanch/directorist-affiliate/pkg/notification"
	"github.com/jordanlanch/directorist-affiliate/pkg/slack"
	"github.com/shopspring/decimal"
)

// Summary is the pending work of the program
type Summary struct {
	PendingApplications int
	PendingReferrals    int
	PendingAmount       decimal.Decimal
	RequestedPayouts    int
}

// Reporter builds the daily summary and sends it to the admin
type Reporter struct {
	overview       OverviewSource
	payouts        PayoutCounter
	slack          *slack.Service
	mailer         notification.Mailer
	adminEmail     string
	currencySymbol string
}

// NewReporter creates a reporter. slackSvc and mailer may be nil.
func NewReporter(overview OverviewSource, payouts PayoutCounter, slackSvc *slack.Service, mailer notification.Mailer, adminEmail, currencySymbol string) *Reporter {
	if currencySymbol == "" {
		currencySymbol = "$"
	}
	return &Reporter{
		overview:       overview,
		payouts:        payouts,
		slack:          slackSvc,
		mailer:         mailer,
		adminEmail:     adminEmail,
		currencySymbol: currencySymbol,
	}
}

// Build collects the summary
func (r *Reporter) Build(ctx context.Context) (*Summary, error) {
	o, err := r.overview.Overview(ctx)
	if err != nil {
		return nil, err
	}
	requested, err := r.payouts.Count(ctx, domain.PayoutStatusRequested)
	if err != nil {
		return nil, err
	}
	return &Summary{
		PendingApplications: o.Affiliates[domain.AffiliateStatusPending],
		PendingReferrals:    o.PendingReferrals,
		PendingAmount:       o.PendingAmount,
		RequestedPayouts:    requested,
	}, nil
}

// Send builds the summary and posts it to Slack and the admin mailbox.
// Delivery errors are returned after both channels were tried.
func (r *Reporter) Send(ctx context.Context) (*Summary, error) {
	s, err := r.Build(ctx)
	if err != nil {
		return nil, err
	}
	amount := notification.Price(r.currencySymbol, s.PendingAmount)

	var errs []string
	if err := r.slack.NotifyDailySummary(ctx, s.PendingApplications, s.PendingReferrals, amount, s.RequestedPayouts); err != nil {
		errs = append(errs, "slack: "+err.Error())
	}
	if r.mailer != nil && r.adminEmail != "" {
		if err := r.mailer.Send(summaryMail(r.adminEmail, s, amount)); err != nil {
			errs = append(errs, "email: "+err.Error())
		}
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("failed to deliver summary: %s", strings.Join(errs, "; "))
	}
	return s, nil
}

func summaryMail(to string, s *Summary, amount string) email.Message {
	var b strings.Builder
	b.WriteString("Here is today's affiliate program summary.\n\n")
	fmt.Fprintf(&b, "Pending Applications: %d\n", s.PendingApplications)
	fmt.Fprintf(&b, "Pending Referrals: %d\n", s.PendingReferrals)
	fmt.Fprintf(&b, "Pending Commission: %s\n", amount)
	fmt.Fprintf(&b, "Requested Payouts: %d\n", s.RequestedPayouts)

	return email.Message{
		ToEmail: to,
		Subject: "Affiliate Program Daily Summary",
		Body:    b.String(),
	}
}
