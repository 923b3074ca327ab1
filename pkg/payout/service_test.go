package payout

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/database/databasetest"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestService(t *testing.T) (*Service, *database.Client, *events.Recorder, *domain.Affiliate) {
	t.Helper()
	client := databasetest.Open(t)
	rec := &events.Recorder{}

	aff := &domain.Affiliate{
		UserID:        "payee",
		Status:        domain.AffiliateStatusActive,
		Email:         "payee@example.com",
		PaymentMethod: domain.PaymentMethodPayPal,
	}
	require.NoError(t, client.Affiliates.Create(context.Background(), aff))

	svc := NewService(client, rec, nil).WithClock(func() time.Time { return testNow })
	return svc, client, rec, aff
}

func seedReferral(t *testing.T, client *database.Client, aff *domain.Affiliate, orderID, commission string, status domain.ReferralStatus) *domain.Referral {
	t.Helper()
	ref := &domain.Referral{
		AffiliateID:      aff.ID,
		OrderID:          orderID,
		OrderAmount:      decimal.RequireFromString("100.00"),
		CommissionAmount: decimal.RequireFromString(commission),
		CommissionRate:   decimal.NewFromInt(10),
		Status:           status,
		CreatedAt:        testNow.Add(-48 * time.Hour),
	}
	require.NoError(t, client.Referrals.Create(context.Background(), ref))
	return ref
}

func referralStatus(t *testing.T, client *database.Client, id string) (domain.ReferralStatus, string) {
	t.Helper()
	ref, err := client.Referrals.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ref.Status, ref.PayoutID
}

func TestRequest(t *testing.T) {
	svc, client, rec, aff := setupTestService(t)
	ctx := context.Background()

	a := seedReferral(t, client, aff, "order-1", "10.00", domain.ReferralStatusApproved)
	b := seedReferral(t, client, aff, "order-2", "5.25", domain.ReferralStatusApproved)
	pending := seedReferral(t, client, aff, "order-3", "99.00", domain.ReferralStatusPending)

	t.Run("Failure - Not an affiliate", func(t *testing.T) {
		_, err := svc.Request(ctx, "stranger")

		assert.True(t, domain.IsForbidden(err))
	})

	t.Run("Success - Claims approved referrals", func(t *testing.T) {
		p, err := svc.Request(ctx, "payee")

		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusRequested, p.Status)
		assert.Equal(t, "15.25", p.Amount.StringFixed(2))
		assert.Equal(t, "paypal", p.PaymentMethod)
		assert.Equal(t, testNow, p.RequestedAt)

		stored, err := client.Payouts.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "15.25", stored.Amount.StringFixed(2))

		for _, id := range []string{a.ID, b.ID} {
			status, payoutID := referralStatus(t, client, id)
			assert.Equal(t, domain.ReferralStatusApproved, status)
			assert.Equal(t, p.ID, payoutID)
		}
		_, payoutID := referralStatus(t, client, pending.ID)
		assert.Empty(t, payoutID)

		assert.Equal(t, []events.Type{events.PayoutRequested}, rec.Types())
	})

	t.Run("Failure - Open payout blocks a second request", func(t *testing.T) {
		seedReferral(t, client, aff, "order-4", "1.00", domain.ReferralStatusApproved)

		_, err := svc.Request(ctx, "payee")

		assert.True(t, domain.IsConflict(err))
	})
}

func TestRequest_NothingToPay(t *testing.T) {
	svc, client, _, aff := setupTestService(t)
	ctx := context.Background()
	seedReferral(t, client, aff, "order-1", "10.00", domain.ReferralStatusPending)

	_, err := svc.Request(ctx, "payee")

	assert.True(t, domain.IsValidation(err))
	list, err := client.Payouts.List(ctx, aff.ID, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRequest_InactiveAffiliate(t *testing.T) {
	svc, client, _, aff := setupTestService(t)
	ctx := context.Background()
	seedReferral(t, client, aff, "order-1", "10.00", domain.ReferralStatusApproved)
	require.NoError(t, client.Affiliates.UpdateStatus(ctx, aff.ID, domain.AffiliateStatusSuspended, "", testNow))

	_, err := svc.Request(ctx, "payee")

	assert.True(t, domain.IsForbidden(err))
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Completed marks referrals paid", func(t *testing.T) {
		svc, client, rec, aff := setupTestService(t)
		ref := seedReferral(t, client, aff, "order-1", "20.00", domain.ReferralStatusApproved)
		p, err := svc.Request(ctx, "payee")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusProcessing})
		require.NoError(t, err)
		done, err := svc.UpdateStatus(ctx, p.ID, StatusInput{
			Status:        domain.PayoutStatusCompleted,
			TransactionID: " PAYPAL-123 ",
			Notes:         "sent",
		})

		require.NoError(t, err)
		assert.Equal(t, domain.PayoutStatusCompleted, done.Status)
		assert.Equal(t, "PAYPAL-123", done.TransactionID)
		require.NotNil(t, done.PaidAt)
		assert.True(t, testNow.Equal(*done.PaidAt))

		status, _ := referralStatus(t, client, ref.ID)
		assert.Equal(t, domain.ReferralStatusPaid, status)

		last := rec.Events()[len(rec.Events())-1]
		assert.Equal(t, events.PayoutStatusChanged, last.Type)
		assert.Equal(t, string(domain.PayoutStatusProcessing), last.PreviousStatus)
		require.NotNil(t, last.Affiliate)
		assert.Equal(t, aff.ID, last.Affiliate.ID)
	})

	t.Run("Success - Failed releases referrals for a new request", func(t *testing.T) {
		svc, client, _, aff := setupTestService(t)
		ref := seedReferral(t, client, aff, "order-1", "20.00", domain.ReferralStatusApproved)
		p, err := svc.Request(ctx, "payee")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusFailed, Notes: "bounced"})
		require.NoError(t, err)

		status, payoutID := referralStatus(t, client, ref.ID)
		assert.Equal(t, domain.ReferralStatusApproved, status)
		assert.Empty(t, payoutID)

		again, err := svc.Request(ctx, "payee")
		require.NoError(t, err)
		assert.NotEqual(t, p.ID, again.ID)
		assert.Equal(t, "20.00", again.Amount.StringFixed(2))
	})

	t.Run("Failure - Final statuses cannot move", func(t *testing.T) {
		svc, client, _, aff := setupTestService(t)
		seedReferral(t, client, aff, "order-1", "20.00", domain.ReferralStatusApproved)
		p, err := svc.Request(ctx, "payee")
		require.NoError(t, err)
		_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusFailed})
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusProcessing})

		assert.True(t, domain.IsPolicyRejected(err))
	})

	t.Run("Failure - Requested cannot skip processing", func(t *testing.T) {
		svc, client, _, aff := setupTestService(t)
		seedReferral(t, client, aff, "order-1", "20.00", domain.ReferralStatusApproved)
		p, err := svc.Request(ctx, "payee")
		require.NoError(t, err)

		_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusCompleted})

		assert.True(t, domain.IsPolicyRejected(err))
	})

	t.Run("Failure - Unknown payout or status", func(t *testing.T) {
		svc, _, _, _ := setupTestService(t)

		_, err := svc.UpdateStatus(ctx, "missing", StatusInput{Status: domain.PayoutStatusProcessing})
		assert.True(t, domain.IsNotFound(err))

		_, err = svc.UpdateStatus(ctx, "missing", StatusInput{Status: "shipped"})
		assert.True(t, domain.IsValidation(err))
	})
}

func TestUpdateStatus_RefundBeforeCompletion(t *testing.T) {
	svc, client, _, aff := setupTestService(t)
	ctx := context.Background()
	refunded := seedReferral(t, client, aff, "order-1", "10.00", domain.ReferralStatusApproved)
	kept := seedReferral(t, client, aff, "order-2", "5.25", domain.ReferralStatusApproved)

	p, err := svc.Request(ctx, "payee")
	require.NoError(t, err)
	require.Equal(t, "15.25", p.Amount.StringFixed(2))

	conv := conversion.NewService(client, nil, nil, nil, conversion.Config{}, nil)
	out, err := conv.OnOrderStatusChanged(ctx, "refunded", "completed", "order-1")
	require.NoError(t, err)
	require.Equal(t, conversion.ActionRejected, out.Action)

	stored, err := client.Payouts.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "5.25", stored.Amount.StringFixed(2))

	_, err = svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusProcessing})
	require.NoError(t, err)
	done, err := svc.UpdateStatus(ctx, p.ID, StatusInput{Status: domain.PayoutStatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, "5.25", done.Amount.StringFixed(2))

	status, payoutID := referralStatus(t, client, refunded.ID)
	assert.Equal(t, domain.ReferralStatusRejected, status)
	assert.Empty(t, payoutID)

	status, payoutID = referralStatus(t, client, kept.ID)
	assert.Equal(t, domain.ReferralStatusPaid, status)
	assert.Equal(t, p.ID, payoutID)
}

func TestList(t *testing.T) {
	svc, client, _, aff := setupTestService(t)
	ctx := context.Background()
	seedReferral(t, client, aff, "order-1", "20.00", domain.ReferralStatusApproved)
	p, err := svc.Request(ctx, "payee")
	require.NoError(t, err)

	t.Run("Success - Affiliate sees own payouts", func(t *testing.T) {
		list, err := svc.ListForAffiliate(ctx, "payee", 10, 0)

		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, p.ID, list[0].ID)
	})

	t.Run("Success - Admin filters by status", func(t *testing.T) {
		requested, err := svc.List(ctx, domain.PayoutStatusRequested, 10, 0)
		require.NoError(t, err)
		assert.Len(t, requested, 1)

		completed, err := svc.List(ctx, domain.PayoutStatusCompleted, 10, 0)
		require.NoError(t, err)
		assert.Empty(t, completed)
	})

	t.Run("Failure - Invalid status filter", func(t *testing.T) {
		_, err := svc.List(ctx, "bogus", 10, 0)

		assert.True(t, domain.IsValidation(err))
	})
}
