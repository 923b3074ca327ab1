package affiliate

import (
	"context"

	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
)

// ListReferrals returns one page of the active affiliate's own referrals and the total count
func (s *Service) ListReferrals(ctx context.Context, userID string, status domain.ReferralStatus, page, limit int) ([]*domain.Referral, int, error) {
	aff, err := s.RequireActive(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return s.referrals(ctx, aff.ID, status, page, limit)
}

// AllReferrals returns one page of referrals across every affiliate
func (s *Service) AllReferrals(ctx context.Context, status domain.ReferralStatus, page, limit int) ([]*domain.Referral, int, error) {
	return s.referrals(ctx, "", status, page, limit)
}

func (s *Service) referrals(ctx context.Context, affiliateID string, status domain.ReferralStatus, page, limit int) ([]*domain.Referral, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.NewValidationError("Invalid referral status.")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	f := database.ReferralFilter{AffiliateID: affiliateID, Status: status, Limit: limit, Offset: (page - 1) * limit}
	list, err := s.db.Referrals.List(ctx, f)
	if err != nil {
		return nil, 0, domain.NewInternalError(err)
	}
	total, err := s.db.Referrals.Count(ctx, f)
	if err != nil {
		return nil, 0, domain.NewInternalError(err)
	}
	return list, total, nil
}
