package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
)

var visitColumns = []string{
	"id", "affiliate_id", "code_id", "ip_address", "user_agent",
	"referrer_url", "landing_url", "converted", "created_at",
}

// VisitRepository is the append-only visit ledger
type VisitRepository struct {
	q Querier
	b *entsql.DialectBuilder
}

// Create appends a visit
func (r *VisitRepository) Create(ctx context.Context, v *domain.Visit) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query, args := r.b.Insert(visitsTable).
		Columns(visitColumns...).
		Values(
			v.ID, v.AffiliateID, nullString(v.CodeID), v.IPAddress, v.UserAgent,
			v.ReferrerURL, v.LandingURL, v.Converted, v.CreatedAt.UTC(),
		).
		Query()

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// CountByIPSince counts visits from an IP at or after since
func (r *VisitRepository) CountByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	query, args := r.b.Select(entsql.Count("*")).
		From(r.b.Table(visitsTable)).
		Where(entsql.And(
			entsql.EQ("ip_address", ip),
			entsql.GTE("created_at", since.UTC()),
		)).
		Query()

	var n int
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return n, nil
}

// FindRecent returns the newest visit for the affiliate, code and IP at or after since.
// A NotFound error means there is none.
func (r *VisitRepository) FindRecent(ctx context.Context, affiliateID, codeID, ip string, since time.Time) (*domain.Visit, error) {
	query, args := r.b.Select(visitColumns...).
		From(r.b.Table(visitsTable)).
		Where(r.match(affiliateID, codeID, ip, since)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()

	v, err := scanVisit(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "visit")
	}
	return v, nil
}

// MarkMostRecentConverted flags the newest unconverted matching visit as converted.
// It reports whether a visit was updated.
func (r *VisitRepository) MarkMostRecentConverted(ctx context.Context, affiliateID, codeID, ip string, since time.Time) (bool, error) {
	query, args := r.b.Select("id").
		From(r.b.Table(visitsTable)).
		Where(entsql.And(
			r.match(affiliateID, codeID, ip, since),
			entsql.EQ("converted", false),
		)).
		OrderBy(entsql.Desc("created_at")).
		Limit(1).
		Query()

	var id string
	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to find visit: %w", err)
	}

	query, args = r.b.Update(visitsTable).
		Set("converted", true).
		Where(entsql.EQ("id", id)).
		Query()
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to mark visit converted: %w", err)
	}
	return true, nil
}

func (r *VisitRepository) match(affiliateID, codeID, ip string, since time.Time) *entsql.Predicate {
	preds := []*entsql.Predicate{
		entsql.EQ("affiliate_id", affiliateID),
		entsql.EQ("ip_address", ip),
		entsql.GTE("created_at", since.UTC()),
	}
	if codeID != "" {
		preds = append(preds, entsql.EQ("code_id", codeID))
	}
	return entsql.And(preds...)
}

// ListByAffiliate returns an affiliate's visits, newest first
func (r *VisitRepository) ListByAffiliate(ctx context.Context, affiliateID string, limit, offset int) ([]*domain.Visit, error) {
	limit, offset = page(limit, offset)

	sel := r.b.Select(visitColumns...).
		From(r.b.Table(visitsTable)).
		Where(entsql.EQ("affiliate_id", affiliateID)).
		OrderBy(entsql.Desc("created_at"))
	if limit > 0 {
		sel.Limit(limit).Offset(offset)
	}

	query, args := sel.Query()
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	defer rows.Close()

	var visits []*domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan visit: %w", err)
		}
		visits = append(visits, v)
	}
	return visits, rows.Err()
}

// CountByAffiliate counts an affiliate's visits and how many converted
func (r *VisitRepository) CountByAffiliate(ctx context.Context, affiliateID string) (total, converted int, err error) {
	query, args := r.b.Select(entsql.Count("*"), "COALESCE(SUM(CASE WHEN converted THEN 1 ELSE 0 END), 0)").
		From(r.b.Table(visitsTable)).
		Where(entsql.EQ("affiliate_id", affiliateID)).
		Query()

	if err := r.q.QueryRowContext(ctx, query, args...).Scan(&total, &converted); err != nil {
		return 0, 0, fmt.Errorf("failed to count visits: %w", err)
	}
	return total, converted, nil
}

func scanVisit(s rowScanner) (*domain.Visit, error) {
	var (
		v      domain.Visit
		codeID sql.NullString
	)
	err := s.Scan(
		&v.ID, &v.AffiliateID, &codeID, &v.IPAddress, &v.UserAgent,
		&v.ReferrerURL, &v.LandingURL, &v.Converted, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.CodeID = codeID.String
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}
