package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
)

var codeColumns = []string{
	"id", "affiliate_id", "code", "type", "campaign_name", "description",
	"clicks", "conversions", "status", "created_at", "expires_at",
}

// CodeRepository persists referral codes and their click/conversion counters
type CodeRepository struct {
	q Querier
	b *entsql.DialectBuilder
}

// CodeTotals is the sum of counters across a set of codes
type CodeTotals struct {
	Codes       int
	Clicks      int
	Conversions int
}

// Create inserts a code. Code values are globally unique.
func (r *CodeRepository) Create(ctx context.Context, c *domain.AffiliateCode) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = domain.CodeStatusActive
	}

	query, args := r.b.Insert(codesTable).
		Columns(codeColumns...).
		Values(
			c.ID, c.AffiliateID, c.Code, string(c.Type), c.CampaignName, c.Description,
			c.Clicks, c.Conversions, string(c.Status), c.CreatedAt.UTC(), nullTime(c.ExpiresAt),
		).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return domain.NewConflictError("Referral code already exists")
		}
		return fmt.Errorf("failed to create code: %w", err)
	}
	return nil
}

// GetByID returns the code with the given id
func (r *CodeRepository) GetByID(ctx context.Context, id string) (*domain.AffiliateCode, error) {
	return r.getOne(ctx, entsql.EQ("id", id))
}

// GetByCode returns the code record for a code string
func (r *CodeRepository) GetByCode(ctx context.Context, code string) (*domain.AffiliateCode, error) {
	return r.getOne(ctx, entsql.EQ("code", code))
}

// GetDefault returns the affiliate's default code
func (r *CodeRepository) GetDefault(ctx context.Context, affiliateID string) (*domain.AffiliateCode, error) {
	return r.getOne(ctx, entsql.And(
		entsql.EQ("affiliate_id", affiliateID),
		entsql.EQ("type", string(domain.CodeTypeDefault)),
	))
}

func (r *CodeRepository) getOne(ctx context.Context, p *entsql.Predicate) (*domain.AffiliateCode, error) {
	query, args := r.b.Select(codeColumns...).
		From(r.b.Table(codesTable)).
		Where(p).
		OrderBy(entsql.Asc("created_at")).
		Limit(1).
		Query()

	c, err := scanCode(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "code")
	}
	return c, nil
}

// Exists reports whether a code string is taken
func (r *CodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	query, args := r.b.Select(entsql.Count("*")).
		From(r.b.Table(codesTable)).
		Where(entsql.EQ("code", code)).
		Query()

	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check code: %w", err)
	}
	return n > 0, nil
}

// ListByAffiliate returns all codes of an affiliate, oldest first
func (r *CodeRepository) ListByAffiliate(ctx context.Context, affiliateID string) ([]*domain.AffiliateCode, error) {
	query, args := r.b.Select(codeColumns...).
		From(r.b.Table(codesTable)).
		Where(entsql.EQ("affiliate_id", affiliateID)).
		OrderBy(entsql.Asc("created_at")).
		Query()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var codes []*domain.AffiliateCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// IncrementClicks adds one click to the code
func (r *CodeRepository) IncrementClicks(ctx context.Context, id string) error {
	return r.bump(ctx, id, "clicks", 1, nil)
}

// IncrementConversions adds one conversion to the code
func (r *CodeRepository) IncrementConversions(ctx context.Context, id string) error {
	return r.bump(ctx, id, "conversions", 1, nil)
}

// DecrementConversions removes one conversion. The counter never goes below zero.
func (r *CodeRepository) DecrementConversions(ctx context.Context, id string) error {
	return r.bump(ctx, id, "conversions", -1, entsql.GT("conversions", 0))
}

func (r *CodeRepository) bump(ctx context.Context, id, column string, delta int, guard *entsql.Predicate) error {
	where := entsql.EQ("id", id)
	if guard != nil {
		where = entsql.And(where, guard)
	}
	query, args := r.b.Update(codesTable).
		Add(column, delta).
		Where(where).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s: %w", column, err)
	}
	return nil
}

// Delete removes a single code
func (r *CodeRepository) Delete(ctx context.Context, id string) error {
	query, args := r.b.Delete(codesTable).Where(entsql.EQ("id", id)).Query()
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete code: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NewNotFoundError("code")
	}
	return nil
}

// DeleteByAffiliate removes every code of an affiliate
func (r *CodeRepository) DeleteByAffiliate(ctx context.Context, affiliateID string) error {
	query, args := r.b.Delete(codesTable).Where(entsql.EQ("affiliate_id", affiliateID)).Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete codes: %w", err)
	}
	return nil
}

// SetStatusByAffiliate moves the codes of an affiliate that are in status from to status to
// and returns the code strings touched
func (r *CodeRepository) SetStatusByAffiliate(ctx context.Context, affiliateID string, from, to domain.CodeStatus) ([]string, error) {
	return r.setStatus(ctx, entsql.And(
		entsql.EQ("affiliate_id", affiliateID),
		entsql.EQ("status", string(from)),
	), to)
}

// ExpirePast marks active codes whose expiry is at or before now as expired and returns their code strings
func (r *CodeRepository) ExpirePast(ctx context.Context, now time.Time) ([]string, error) {
	return r.setStatus(ctx, entsql.And(
		entsql.EQ("status", string(domain.CodeStatusActive)),
		entsql.NotNull("expires_at"),
		entsql.LTE("expires_at", now.UTC()),
	), domain.CodeStatusExpired)
}

func (r *CodeRepository) setStatus(ctx context.Context, where *entsql.Predicate, status domain.CodeStatus) ([]string, error) {
	query, args := r.b.Select("code").
		From(r.b.Table(codesTable)).
		Where(where).
		Query()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select codes: %w", err)
	}
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		codes = append(codes, code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	values := make([]any, len(codes))
	for i, c := range codes {
		values[i] = c
	}
	query, args = r.b.Update(codesTable).
		Set("status", string(status)).
		Where(entsql.In("code", values...)).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update code status: %w", err)
	}
	return codes, nil
}

// Totals sums the counters of an affiliate's codes. An empty affiliateID sums all codes.
func (r *CodeRepository) Totals(ctx context.Context, affiliateID string) (CodeTotals, error) {
	sel := r.b.Select(entsql.Count("*"), "COALESCE(SUM(clicks), 0)", "COALESCE(SUM(conversions), 0)").
		From(r.b.Table(codesTable))
	if affiliateID != "" {
		sel.Where(entsql.EQ("affiliate_id", affiliateID))
	}

	query, args := sel.Query()
	var t CodeTotals
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&t.Codes, &t.Clicks, &t.Conversions); err != nil {
		return CodeTotals{}, fmt.Errorf("failed to sum code counters: %w", err)
	}
	return t, nil
}

func scanCode(s rowScanner) (*domain.AffiliateCode, error) {
	var (
		c           domain.AffiliateCode
		typ, status string
		expiresAt   sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.AffiliateID, &c.Code, &typ, &c.CampaignName, &c.Description,
		&c.Clicks, &c.Conversions, &status, &c.CreatedAt, &expiresAt,
	)
	if err != nil {
		return nil, err
	}
	c.Type = domain.CodeType(typ)
	c.Status = domain.CodeStatus(status)
	c.CreatedAt = c.CreatedAt.UTC()
	c.ExpiresAt = timePtr(expiresAt)
	return &c, nil
}
