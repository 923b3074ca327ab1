package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
)

var referralColumns = []string{
	"id", "affiliate_id", "code_id", "order_id", "customer_user_id", "product_id",
	"order_amount", "commission_amount", "commission_rate", "status", "payout_id",
	"created_at", "approved_at",
}

// ReferralRepository is the referral (commission) ledger
type ReferralRepository struct {
	q Querier
	b *entsql.DialectBuilder
}

// ReferralFilter narrows referral listings. Zero values match everything.
type ReferralFilter struct {
	AffiliateID string
	Status      domain.ReferralStatus
	PayoutID    string
	Limit       int
	Offset      int
}

// Create inserts a referral. A second referral for the same order is a conflict.
func (r *ReferralRepository) Create(ctx context.Context, ref *domain.Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = time.Now().UTC()
	}
	if ref.Status == "" {
		ref.Status = domain.ReferralStatusPending
	}

	query, args := r.b.Insert(referralsTable).
		Columns(referralColumns...).
		Values(
			ref.ID, ref.AffiliateID, nullString(ref.CodeID), ref.OrderID, ref.CustomerUserID, ref.ProductID,
			ref.OrderAmount, ref.CommissionAmount, ref.CommissionRate, string(ref.Status), nullString(ref.PayoutID),
			ref.CreatedAt.UTC(), nullTime(ref.ApprovedAt),
		).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("A referral already exists for this order")
		}
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

// GetByID returns the referral with the given id
func (r *ReferralRepository) GetByID(ctx context.Context, id string) (*domain.Referral, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

// GetByOrderID returns the referral recorded for an order
func (r *ReferralRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Referral, error) {
	return r.getOne(ctx, entsql.EQ("order_id", orderID))
}

func (r *ReferralRepository) getOne(ctx context.Context, p *entsql.Predicate) (*domain.Referral, error) {
	query, args := r.b.Select(referralColumns...).
		From(r.b.Table(referralsTable)).
		Where(p).
		Limit(1).
		Query()

	ref, err := scanReferral(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "referral")
	}
	return ref, nil
}

// Transition moves a referral to status `to` only if its current status is one of `from`.
// It reports whether the row changed, so concurrent callers cannot both win.
func (r *ReferralRepository) Transition(ctx context.Context, id string, from []domain.ReferralStatus, to domain.ReferralStatus, approvedAt *time.Time) (bool, error) {
	upd := r.b.Update(referralsTable).Set("status", string(to))
	if approvedAt != nil {
		upd.Set("approved_at", approvedAt.UTC())
	}

	query, args := upd.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.In("status", statusArgs(from)...),
	)).Query()

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update referral status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns referrals matching the filter, newest first
func (r *ReferralRepository) List(ctx context.Context, f ReferralFilter) ([]*domain.Referral, error) {
	limit, offset := page(f.Limit, f.Offset)

	sel := r.b.Select(referralColumns...).
		From(r.b.Table(referralsTable)).
		OrderBy(entsql.Desc("created_at"))
	if p := f.predicate(); p != nil {
		sel.Where(p)
	}
	if limit > 0 {
		sel.Limit(limit).Offset(offset)
	}

	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	defer rows.Close()

	var referrals []*domain.Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		referrals = append(referrals, ref)
	}
	return referrals, rows.Err()
}

// Count returns the number of referrals matching the filter
func (r *ReferralRepository) Count(ctx context.Context, f ReferralFilter) (int, error) {
	sel := r.b.Select(entsql.Count("*")).From(r.b.Table(referralsTable))
	if p := f.predicate(); p != nil {
		sel.Where(p)
	}

	query, args := sel.Query()
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return n, nil
}

// StatusTotal is the count and commission sum of referrals in one status
type StatusTotal struct {
	Count      int
	Commission decimal.Decimal
}

// TotalsByStatus groups referral counts and commission sums by status.
// An empty affiliateID covers the whole program.
func (r *ReferralRepository) TotalsByStatus(ctx context.Context, affiliateID string) (map[domain.ReferralStatus]StatusTotal, error) {
	sel := r.b.Select("status", entsql.Count("*"), "COALESCE(SUM(commission_amount), 0)").
		From(r.b.Table(referralsTable)).
		GroupBy("status")
	if affiliateID != "" {
		sel.Where(entsql.EQ("affiliate_id", affiliateID))
	}

	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sum referrals: %w", err)
	}
	defer rows.Close()

	totals := make(map[domain.ReferralStatus]StatusTotal)
	for rows.Next() {
		var (
			status string
			t      StatusTotal
		)
		if err := rows.Scan(&status, &t.Count, &t.Commission); err != nil {
			return nil, err
		}
		t.Commission = t.Commission.Round(2)
		totals[domain.ReferralStatus(status)] = t
	}
	return totals, rows.Err()
}

// ClaimForPayout attaches every unclaimed approved referral of an affiliate to a payout
// and returns how many were claimed.
func (r *ReferralRepository) ClaimForPayout(ctx context.Context, affiliateID, payoutID string) (int, error) {
	query, args := r.b.Update(referralsTable).
		Set("payout_id", payoutID).
		Where(entsql.And(
			entsql.EQ("affiliate_id", affiliateID),
			entsql.EQ("status", string(domain.ReferralStatusApproved)),
			entsql.IsNull("payout_id"),
		)).
		Query()

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to claim referrals: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SumByPayout returns the commission total of the referrals attached to a payout
func (r *ReferralRepository) SumByPayout(ctx context.Context, payoutID string) (decimal.Decimal, error) {
	query, args := r.b.Select("COALESCE(SUM(commission_amount), 0)").
		From(r.b.Table(referralsTable)).
		Where(entsql.EQ("payout_id", payoutID)).
		Query()

	var sum decimal.Decimal
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum payout referrals: %w", err)
	}
	return sum.Round(2), nil
}

// MarkPaidByPayout moves the approved referrals of a payout to paid
func (r *ReferralRepository) MarkPaidByPayout(ctx context.Context, payoutID string) (int, error) {
	query, args := r.b.Update(referralsTable).
		Set("status", string(domain.ReferralStatusPaid)).
		Where(entsql.And(
			entsql.EQ("payout_id", payoutID),
			entsql.EQ("status", string(domain.ReferralStatusApproved)),
		)).
		Query()

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark referrals paid: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// ReleasePayout detaches the unpaid referrals of a payout so a later payout can claim them
func (r *ReferralRepository) ReleasePayout(ctx context.Context, payoutID string) error {
	query, args := r.b.Update(referralsTable).
		SetNull("payout_id").
		Where(entsql.And(
			entsql.EQ("payout_id", payoutID),
			entsql.NEQ("status", string(domain.ReferralStatusPaid)),
		)).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to release referrals: %w", err)
	}
	return nil
}

// DetachFromPayout removes one referral from its payout batch and returns the payout it left,
// or "" when it was not claimed.
func (r *ReferralRepository) DetachFromPayout(ctx context.Context, id string) (string, error) {
	ref, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if ref.PayoutID == "" {
		return "", nil
	}

	query, args := r.b.Update(referralsTable).
		SetNull("payout_id").
		Where(entsql.EQ("id", id)).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to detach referral: %w", err)
	}
	return ref.PayoutID, nil
}

// UnpaidApproved sums approved referrals of an affiliate that no payout has claimed
func (r *ReferralRepository) UnpaidApproved(ctx context.Context, affiliateID string) (decimal.Decimal, error) {
	query, args := r.b.Select("COALESCE(SUM(commission_amount), 0)").
		From(r.b.Table(referralsTable)).
		Where(entsql.And(
			entsql.EQ("affiliate_id", affiliateID),
			entsql.EQ("status", string(domain.ReferralStatusApproved)),
			entsql.IsNull("payout_id"),
		)).
		Query()

	var sum decimal.Decimal
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum approved referrals: %w", err)
	}
	return sum.Round(2), nil
}

func (f ReferralFilter) predicate() *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.AffiliateID != "" {
		preds = append(preds, entsql.EQ("affiliate_id", f.AffiliateID))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", string(f.Status)))
	}
	if f.PayoutID != "" {
		preds = append(preds, entsql.EQ("payout_id", f.PayoutID))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return entsql.And(preds...)
}

func statusArgs(statuses []domain.ReferralStatus) []any {
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return args
}

func scanReferral(s rowScanner) (*domain.Referral, error) {
	var (
		ref              domain.Referral
		status           string
		codeID, payoutID sql.NullString
		approvedAt       sql.NullTime
	)
	err := s.Scan(
		&ref.ID, &ref.AffiliateID, &codeID, &ref.OrderID, &ref.CustomerUserID, &ref.ProductID,
		&ref.OrderAmount, &ref.CommissionAmount, &ref.CommissionRate, &status, &payoutID,
		&ref.CreatedAt, &approvedAt,
	)
	if err != nil {
		return nil, err
	}
	ref.CodeID = codeID.String
	ref.PayoutID = payoutID.String
	ref.Status = domain.ReferralStatus(status)
	ref.CreatedAt = ref.CreatedAt.UTC()
	ref.ApprovedAt = timePtr(approvedAt)
	return &ref, nil
}
