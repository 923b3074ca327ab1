package payout

import (
	"context"
	"strings"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
)

var errNotAffiliate = domain.NewForbiddenError("User is not registered as an affiliate.")

// allowed lists the statuses each payout status may move to. Completed and failed are final.
var allowed = map[domain.PayoutStatus][]domain.PayoutStatus{
	domain.PayoutStatusRequested:  {domain.PayoutStatusProcessing, domain.PayoutStatusFailed},
	domain.PayoutStatusProcessing: {domain.PayoutStatusCompleted, domain.PayoutStatusFailed},
}

// StatusInput is an admin status change
type StatusInput struct {
	Status        domain.PayoutStatus `json:"status" validate:"required"`
	TransactionID string              `json:"transaction_id" validate:"max=100"`
	Notes         string              `json:"notes" validate:"max=2000"`
}

// Service manages payout batches
type Service struct {
	db        *database.Client
	publisher events.Publisher
	logger    logger.Logger
	now       domain.Clock
}

// NewService creates a payout service
func NewService(db *database.Client, publisher events.Publisher, log logger.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, publisher: publisher, logger: log, now: time.Now}
}

// WithClock replaces the time source
func (s *Service) WithClock(now domain.Clock) *Service {
	s.now = now
	return s
}

// Request claims every approved, unbatched referral of an active affiliate into a new payout
func (s *Service) Request(ctx context.Context, userID string) (*domain.Payout, error) {
	aff, err := s.db.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, errNotAffiliate
		}
		return nil, domain.NewInternalError(err)
	}
	if !aff.IsActive() {
		return nil, domain.NewForbiddenError("You must be an active affiliate to request payouts.")
	}

	open, err := s.db.Payouts.HasOpen(ctx, aff.ID)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if open {
		return nil, domain.NewConflictError("A payout request is already in progress.")
	}

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	p := &domain.Payout{
		AffiliateID:   aff.ID,
		PaymentMethod: string(aff.PaymentMethod),
		Status:        domain.PayoutStatusRequested,
		RequestedAt:   s.now().UTC(),
	}
	if err := tx.Payouts.Create(ctx, p); err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}

	claimed, err := tx.Referrals.ClaimForPayout(ctx, aff.ID, p.ID)
	if err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}
	if claimed == 0 {
		tx.Rollback()
		return nil, domain.NewValidationError("You have no approved commissions to pay out.")
	}

	p.Amount, err = tx.Referrals.SumByPayout(ctx, p.ID)
	if err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}
	if err := tx.Payouts.SetAmount(ctx, p.ID, p.Amount); err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewInternalError(err)
	}

	s.logger.Info("payout requested", "affiliate_id", aff.ID, "payout_id", p.ID, "referrals", claimed, "amount", p.Amount.StringFixed(2))
	s.publisher.Publish(ctx, events.Event{Type: events.PayoutRequested, Affiliate: aff, Payout: p})
	return p, nil
}

// UpdateStatus moves a payout forward. Completing it marks its referrals paid;
// failing it releases them for a later request.
func (s *Service) UpdateStatus(ctx context.Context, payoutID string, in StatusInput) (*domain.Payout, error) {
	if !in.Status.Valid() {
		return nil, domain.NewValidationError("Invalid payout status.")
	}

	p, err := s.db.Payouts.GetByID(ctx, payoutID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("payout")
		}
		return nil, domain.NewInternalError(err)
	}
	if !canMove(p.Status, in.Status) {
		return nil, domain.NewPolicyError("Payout cannot move from " + string(p.Status) + " to " + string(in.Status) + ".")
	}

	previous := p.Status
	upd := database.PayoutUpdate{
		Status:        in.Status,
		TransactionID: strings.TrimSpace(in.TransactionID),
		Notes:         strings.TrimSpace(in.Notes),
	}
	if in.Status == domain.PayoutStatusCompleted {
		now := s.now().UTC()
		upd.PaidAt = &now
	}

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	ok, err := tx.Payouts.UpdateStatus(ctx, p.ID, previous, upd)
	if err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}
	if !ok {
		tx.Rollback()
		return nil, domain.NewConflictError("Payout was changed by another request.")
	}

	switch in.Status {
	case domain.PayoutStatusCompleted:
		if _, err := tx.Referrals.MarkPaidByPayout(ctx, p.ID); err != nil {
			tx.Rollback()
			return nil, domain.NewInternalError(err)
		}
	case domain.PayoutStatusFailed:
		if err := tx.Referrals.ReleasePayout(ctx, p.ID); err != nil {
			tx.Rollback()
			return nil, domain.NewInternalError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewInternalError(err)
	}

	p.Status = in.Status
	if upd.TransactionID != "" {
		p.TransactionID = upd.TransactionID
	}
	if upd.Notes != "" {
		p.Notes = upd.Notes
	}
	if upd.PaidAt != nil {
		p.PaidAt = upd.PaidAt
	}

	s.logger.Info("payout status changed", "payout_id", p.ID, "from", string(previous), "to", string(p.Status))

	aff, err := s.db.Affiliates.GetByID(ctx, p.AffiliateID)
	if err != nil {
		s.logger.Warn("payout affiliate unavailable for notification", "payout_id", p.ID, "error", err)
	}
	s.publisher.Publish(ctx, events.Event{
		Type:           events.PayoutStatusChanged,
		Affiliate:      aff,
		Payout:         p,
		PreviousStatus: string(previous),
		Reason:         upd.Notes,
	})

	return p, nil
}

// ListForAffiliate returns the payouts of userID's affiliate, newest first
func (s *Service) ListForAffiliate(ctx context.Context, userID string, limit, offset int) ([]*domain.Payout, error) {
	aff, err := s.db.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, errNotAffiliate
		}
		return nil, domain.NewInternalError(err)
	}
	payouts, err := s.db.Payouts.List(ctx, aff.ID, "", limit, offset)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return payouts, nil
}

// List returns payouts in status (all when empty), newest first
func (s *Service) List(ctx context.Context, status domain.PayoutStatus, limit, offset int) ([]*domain.Payout, error) {
	if status != "" && !status.Valid() {
		return nil, domain.NewValidationError("Invalid payout status.")
	}
	payouts, err := s.db.Payouts.List(ctx, "", status, limit, offset)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return payouts, nil
}

// Count returns the number of payouts in status (all when empty)
func (s *Service) Count(ctx context.Context, status domain.PayoutStatus) (int, error) {
	n, err := s.db.Payouts.Count(ctx, status)
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	return n, nil
}

func canMove(from, to domain.PayoutStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
