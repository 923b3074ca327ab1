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

var payoutColumns = []string{
	"id", "affiliate_id", "amount", "payment_method", "transaction_id",
	"status", "requested_at", "paid_at", "notes",
}

// PayoutRepository is the payout ledger
type PayoutRepository struct {
	q Querier
	b *entsql.DialectBuilder
}

// PayoutUpdate carries the fields written on a payout status change
type PayoutUpdate struct {
	Status        domain.PayoutStatus
	TransactionID string
	Notes         string
	PaidAt        *time.Time
}

// Create inserts a payout batch
func (r *PayoutRepository) Create(ctx context.Context, p *domain.Payout) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.RequestedAt.IsZero() {
		p.RequestedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = domain.PayoutStatusRequested
	}

	query, args := r.b.Insert(payoutsTable).
		Columns(payoutColumns...).
		Values(
			p.ID, p.AffiliateID, p.Amount, p.PaymentMethod, p.TransactionID,
			string(p.Status), p.RequestedAt.UTC(), nullTime(p.PaidAt), p.Notes,
		).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create payout: %w", err)
	}
	return nil
}

// GetByID returns the payout with the given id
func (r *PayoutRepository) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	query, args := r.b.Select(payoutColumns...).
		From(r.b.Table(payoutsTable)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()

	p, err := scanPayout(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "payout")
	}
	return p, nil
}

// UpdateStatus applies u only while the payout is still in status from.
// It reports whether the row changed.
func (r *PayoutRepository) UpdateStatus(ctx context.Context, id string, from domain.PayoutStatus, u PayoutUpdate) (bool, error) {
	upd := r.b.Update(payoutsTable).Set("status", string(u.Status))
	if u.TransactionID != "" {
		upd.Set("transaction_id", u.TransactionID)
	}
	if u.Notes != "" {
		upd.Set("notes", u.Notes)
	}
	if u.PaidAt != nil {
		upd.Set("paid_at", u.PaidAt.UTC())
	}

	query, args := upd.Where(entsql.And(
		entsql.EQ("id", id),
		entsql.EQ("status", string(from)),
	)).Query()

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update payout: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAmount records the claimed total of a payout
func (r *PayoutRepository) SetAmount(ctx context.Context, id string, amount decimal.Decimal) error {
	query, args := r.b.Update(payoutsTable).
		Set("amount", amount.Round(2)).
		Where(entsql.EQ("id", id)).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set payout amount: %w", err)
	}
	return nil
}

// List returns payouts newest first. Empty filters match everything.
func (r *PayoutRepository) List(ctx context.Context, affiliateID string, status domain.PayoutStatus, limit, offset int) ([]*domain.Payout, error) {
	limit, offset = page(limit, offset)

	sel := r.b.Select(payoutColumns...).
		From(r.b.Table(payoutsTable)).
		OrderBy(entsql.Desc("requested_at"))

	var preds []*entsql.Predicate
	if affiliateID != "" {
		preds = append(preds, entsql.EQ("affiliate_id", affiliateID))
	}
	if status != "" {
		preds = append(preds, entsql.EQ("status", string(status)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	if limit > 0 {
		sel.Limit(limit).Offset(offset)
	}

	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []*domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// HasOpen reports whether the affiliate has a payout still requested or processing
func (r *PayoutRepository) HasOpen(ctx context.Context, affiliateID string) (bool, error) {
	query, args := r.b.Select(entsql.Count("*")).
		From(r.b.Table(payoutsTable)).
		Where(entsql.And(
			entsql.EQ("affiliate_id", affiliateID),
			entsql.In("status", string(domain.PayoutStatusRequested), string(domain.PayoutStatusProcessing)),
		)).
		Query()

	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check open payouts: %w", err)
	}
	return n > 0, nil
}

func scanPayout(s rowScanner) (*domain.Payout, error) {
	var (
		p      domain.Payout
		status string
		paidAt sql.NullTime
	)
	err := s.Scan(
		&p.ID, &p.AffiliateID, &p.Amount, &p.PaymentMethod, &p.TransactionID,
		&status, &p.RequestedAt, &paidAt, &p.Notes,
	)
	if err != nil {
		return nil, err
	}
	p.Status = domain.PayoutStatus(status)
	p.RequestedAt = p.RequestedAt.UTC()
	p.PaidAt = timePtr(paidAt)
	return &p, nil
}

// Count returns the number of payouts in status (all when empty)
func (r *PayoutRepository) Count(ctx context.Context, status domain.PayoutStatus) (int, error) {
	sel := r.b.Select(entsql.Count("*")).From(r.b.Table(payoutsTable))
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}

	query, args := sel.Query()
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payouts: %w", err)
	}
	return n, nil
}
