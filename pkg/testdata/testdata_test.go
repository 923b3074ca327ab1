package testdata

import (
	"context"
	"testing"

	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/database/databasetest"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/jordanlanch/directorist-affiliate/pkg/phone"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator(t *testing.T) {
	t.Run("Success - Same seed gives same data", func(t *testing.T) {
		a := NewGenerator(7, "")
		b := NewGenerator(7, "")

		assert.Equal(t, a.Applicant(), b.Applicant())
		assert.Equal(t, a.Visitor(), b.Visitor())
		assert.Equal(t, a.Order("c-1"), b.Order("c-1"))
	})

	t.Run("Success - Applicants carry a valid payout method and phone", func(t *testing.T) {
		g := NewGenerator(42, "")
		for i := 0; i < 20; i++ {
			app := g.Applicant()

			_, err := phone.NormalizeE164(app.Phone, "US")
			assert.NoError(t, err, app.Phone)
			switch app.PaymentMethod {
			case domain.PaymentMethodPayPal:
				assert.NotEmpty(t, app.PayPalEmail)
			case domain.PaymentMethodBankTransfer:
				assert.NotEmpty(t, app.BankDetails)
			default:
				t.Fatalf("unexpected payment method %q", app.PaymentMethod)
			}
		}
	})

	t.Run("Success - Orders use plan prices and increasing ids", func(t *testing.T) {
		g := NewGenerator(1, "https://directorist.test/")
		first := g.Order("c-1")
		second := g.Order("c-1")

		assert.True(t, PlanPrices[first.PlanID].Equal(first.Amount))
		assert.Equal(t, "1001", first.OrderID)
		assert.Equal(t, "1002", second.OrderID)
		assert.Contains(t, g.Visitor().LandingURL, "https://directorist.test/")
	})
}

func TestSeeder_Run(t *testing.T) {
	ctx := context.Background()
	db := databasetest.Open(t)
	pub := events.Discard{}

	affiliates := affiliate.NewService(db, pub, affiliate.Config{SiteURL: "https://directorist.test"}, nil)
	s := &Seeder{
		Affiliates:  affiliates,
		Tracking:    tracking.NewService(db, nil, pub, tracking.Config{TokenSecret: "seed-secret"}, nil),
		Conversions: conversion.NewService(db, nil, nil, pub, conversion.Config{}, nil),
		Payouts:     payout.NewService(db, pub, nil),
		Generator:   NewGenerator(99, "https://directorist.test"),
	}

	res, err := s.Run(ctx, SeedConfig{
		Affiliates:       4,
		MaxVisits:        6,
		ApprovalChance:   1,
		CampaignChance:   1,
		OrderChance:      0.5,
		CompletionChance: 0.5,
		PayoutChance:     1,
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Affiliates)
	assert.Equal(t, 4, res.Active)
	assert.LessOrEqual(t, res.Approved+res.Rejected, res.Orders)
	assert.LessOrEqual(t, res.Payouts, res.Active)

	overview, err := affiliates.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, overview.TotalAffiliates)
	assert.Equal(t, 4, overview.Affiliates[domain.AffiliateStatusActive])
	assert.Equal(t, 8, overview.TotalCodes)
	assert.Equal(t, res.Visits, overview.TotalClicks)

	_, total, err := affiliates.AllReferrals(ctx, "", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, res.Orders, total)
}
