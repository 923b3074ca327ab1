package database

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
)

var affiliateColumns = []string{
	"id", "user_id", "affiliate_code", "status", "email", "display_name",
	"payment_email", "payment_method", "paypal_email", "bank_details", "website",
	"phone", "promotion_method", "status_reason", "commission_rate", "created_at", "updated_at",
}

// AffiliateRepository persists affiliate accounts
type AffiliateRepository struct {
	q Querier
	b *entsql.DialectBuilder
}

// Create inserts a new affiliate. A second row for the same user is a conflict.
func (r *AffiliateRepository) Create(ctx context.Context, a *domain.Affiliate) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}

	query, args := r.b.Insert(affiliatesTable).
		Columns(affiliateColumns...).
		Values(
			a.ID, a.UserID, a.AffiliateCode, string(a.Status), a.Email, a.DisplayName,
			a.PaymentEmail, string(a.PaymentMethod), a.PayPalEmail, a.BankDetails, a.Website,
			a.Phone, a.PromotionMethod, a.StatusReason, a.CommissionRate, a.CreatedAt.UTC(), a.UpdatedAt.UTC(),
		).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("User is already registered as an affiliate")
		}
		return fmt.Errorf("failed to create affiliate: %w", err)
	}
	return nil
}

// GetByID returns the affiliate with the given id
func (r *AffiliateRepository) GetByID(ctx context.Context, id string) (*domain.Affiliate, error) {
	return r.getBy(ctx, "id", id)
}

// GetByUserID returns the affiliate owned by a user identity
func (r *AffiliateRepository) GetByUserID(ctx context.Context, userID string) (*domain.Affiliate, error) {
	return r.getBy(ctx, "user_id", userID)
}

// CodeTaken reports whether an affiliate already holds code as its affiliate code
func (r *AffiliateRepository) CodeTaken(ctx context.Context, code string) (bool, error) {
	query, args := r.b.Select(entsql.Count("*")).
		From(r.b.Table(affiliatesTable)).
		Where(entsql.EQ("affiliate_code", code)).
		Query()

	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check affiliate code: %w", err)
	}
	return n > 0, nil
}

func (r *AffiliateRepository) getBy(ctx context.Context, column, value string) (*domain.Affiliate, error) {
	query, args := r.b.Select(affiliateColumns...).
		From(r.b.Table(affiliatesTable)).
		Where(entsql.EQ(column, value)).
		Limit(1).
		Query()

	a, err := scanAffiliate(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "affiliate")
	}
	return a, nil
}

// List returns affiliates, optionally filtered by status, newest first
func (r *AffiliateRepository) List(ctx context.Context, status domain.AffiliateStatus, limit, offset int) ([]*domain.Affiliate, error) {
	limit, offset = page(limit, offset)

	sel := r.b.Select(affiliateColumns...).
		From(r.b.Table(affiliatesTable)).
		OrderBy(entsql.Desc("created_at"))
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}
	if limit > 0 {
		sel.Limit(limit).Offset(offset)
	}

	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list affiliates: %w", err)
	}
	defer rows.Close()

	var affiliates []*domain.Affiliate
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan affiliate: %w", err)
		}
		affiliates = append(affiliates, a)
	}
	return affiliates, rows.Err()
}

// Count returns the number of affiliates, optionally filtered by status
func (r *AffiliateRepository) Count(ctx context.Context, status domain.AffiliateStatus) (int, error) {
	sel := r.b.Select(entsql.Count("*")).From(r.b.Table(affiliatesTable))
	if status != "" {
		sel.Where(entsql.EQ("status", string(status)))
	}

	query, args := sel.Query()
	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count affiliates: %w", err)
	}
	return n, nil
}

// CountByStatus returns the number of affiliates per status
func (r *AffiliateRepository) CountByStatus(ctx context.Context) (map[domain.AffiliateStatus]int, error) {
	query, args := r.b.Select("status", entsql.Count("*")).
		From(r.b.Table(affiliatesTable)).
		GroupBy("status").
		Query()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count affiliates: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AffiliateStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.AffiliateStatus(status)] = n
	}
	return counts, rows.Err()
}

// UpdateStatus sets the status and the reason given for it
func (r *AffiliateRepository) UpdateStatus(ctx context.Context, id string, status domain.AffiliateStatus, reason string, now time.Time) error {
	return r.update(ctx, id, r.b.Update(affiliatesTable).
		Set("status", string(status)).
		Set("status_reason", reason).
		Set("updated_at", now.UTC()))
}

// SetAffiliateCode records the affiliate's default code value
func (r *AffiliateRepository) SetAffiliateCode(ctx context.Context, id, code string, now time.Time) error {
	return r.update(ctx, id, r.b.Update(affiliatesTable).
		Set("affiliate_code", code).
		Set("updated_at", now.UTC()))
}

// SetCommissionRate sets or clears (invalid NullDecimal) the affiliate's own rate
func (r *AffiliateRepository) SetCommissionRate(ctx context.Context, id string, rate decimal.NullDecimal, now time.Time) error {
	return r.update(ctx, id, r.b.Update(affiliatesTable).
		Set("commission_rate", rate).
		Set("updated_at", now.UTC()))
}

// UpdateSettings saves the affiliate-editable profile fields
func (r *AffiliateRepository) UpdateSettings(ctx context.Context, a *domain.Affiliate, now time.Time) error {
	return r.update(ctx, a.ID, r.b.Update(affiliatesTable).
		Set("payment_email", a.PaymentEmail).
		Set("payment_method", string(a.PaymentMethod)).
		Set("paypal_email", a.PayPalEmail).
		Set("bank_details", a.BankDetails).
		Set("website", a.Website).
		Set("phone", a.Phone).
		Set("promotion_method", a.PromotionMethod).
		Set("updated_at", now.UTC()))
}

func (r *AffiliateRepository) update(ctx context.Context, id string, upd *entsql.UpdateBuilder) error {
	query, args := upd.Where(entsql.EQ("id", id)).Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update affiliate: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFoundError("affiliate")
	}
	return nil
}

// Delete removes the affiliate row
func (r *AffiliateRepository) Delete(ctx context.Context, id string) error {
	query, args := r.b.Delete(affiliatesTable).Where(entsql.EQ("id", id)).Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete affiliate: %w", err)
	}
	return nil
}

func scanAffiliate(s rowScanner) (*domain.Affiliate, error) {
	var (
		a                     domain.Affiliate
		status, paymentMethod string
	)
	err := s.Scan(
		&a.ID, &a.UserID, &a.AffiliateCode, &status, &a.Email, &a.DisplayName,
		&a.PaymentEmail, &paymentMethod, &a.PayPalEmail, &a.BankDetails, &a.Website,
		&a.Phone, &a.PromotionMethod, &a.StatusReason, &a.CommissionRate, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AffiliateStatus(status)
	a.PaymentMethod = domain.PaymentMethod(paymentMethod)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}
