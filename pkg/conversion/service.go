// Package conversion attributes orders to affiliates and follows each order's
// lifecycle through the referral ledger.
package conversion

import (
	"context"
	"strings"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/commission"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/shopspring/decimal"
)

// DefaultMatchWindow is how far back a visit can be credited with an order
const DefaultMatchWindow = 30 * 24 * time.Hour

// Action is what an order event did
type Action string

// Actions
const (
	ActionCreated  Action = "created"
	ActionApproved Action = "approved"
	ActionRejected Action = "rejected"
	ActionSkipped  Action = "skipped"
)

// Skip reasons
const (
	ReasonNoCode         = "no_code"
	ReasonInvalidCode    = "invalid_code"
	ReasonSelfPurchase   = "self_purchase"
	ReasonDuplicateOrder = "duplicate_order"
	ReasonNotFound       = "not_found"
	ReasonNotPending     = "not_pending"
	ReasonTerminal       = "terminal"
	ReasonIgnoredStatus  = "ignored_status"
)

// rejectingStatuses are the order statuses that void a referral
var rejectingStatuses = map[string]bool{
	"cancelled": true,
	"refunded":  true,
	"failed":    true,
}

// Config tunes the engine
type Config struct {
	// DefaultRate overrides commission.DefaultRate when valid
	DefaultRate            decimal.NullDecimal
	ExpireCookieOnComplete bool
	MatchWindow            time.Duration
}

// OrderCreated is the payload of an order-created event
type OrderCreated struct {
	OrderID        string          `json:"order_id"`
	ListingID      string          `json:"listing_id"`
	PlanID         string          `json:"plan_id"`
	Amount         decimal.Decimal `json:"amount"`
	CustomerUserID string          `json:"customer_user_id"`
	CustomerIP     string          `json:"customer_ip"`
	ReferralCode   string          `json:"referral_code"`
	RequestIP      string          `json:"-"`
}

// Outcome reports what an order event did
type Outcome struct {
	Action     Action `json:"action"`
	ReferralID string `json:"referral_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	// ExpireAttribution tells callers holding the visitor's response to clear the attribution cookies
	ExpireAttribution bool `json:"expire_attribution,omitempty"`
}

func skipped(reason string) *Outcome {
	return &Outcome{Action: ActionSkipped, Reason: reason}
}

// Service is the conversion engine
type Service struct {
	db        *database.Client
	codes     domain.CodeFinder
	rates     domain.ProductRateResolver
	publisher events.Publisher
	cfg       Config
	logger    logger.Logger
	now       domain.Clock
}

// NewService creates a conversion engine. rates may be nil when no product overrides exist.
func NewService(db *database.Client, codes domain.CodeFinder, rates domain.ProductRateResolver, publisher events.Publisher, cfg Config, log logger.Logger) *Service {
	if codes == nil {
		codes = db.Codes
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MatchWindow <= 0 {
		cfg.MatchWindow = DefaultMatchWindow
	}
	return &Service{
		db:        db,
		codes:     codes,
		rates:     rates,
		publisher: publisher,
		cfg:       cfg,
		logger:    log.With("component", "conversion"),
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now domain.Clock) *Service {
	s.now = now
	return s
}

// OnOrderCreated records a pending referral for an order placed with an attribution code
func (s *Service) OnOrderCreated(ctx context.Context, o OrderCreated) (*Outcome, error) {
	o.OrderID = strings.TrimSpace(o.OrderID)
	if o.OrderID == "" {
		return nil, domain.NewValidationError("order_id is required")
	}
	if o.Amount.IsNegative() {
		return nil, domain.NewValidationError("amount must not be negative")
	}

	value := domain.NormalizeCode(o.ReferralCode)
	if value == "" {
		return skipped(ReasonNoCode), nil
	}

	now := s.now()
	code, err := s.codes.GetByCode(ctx, value)
	if err != nil {
		if domain.IsNotFound(err) {
			return skipped(ReasonInvalidCode), nil
		}
		return nil, domain.NewInternalError(err)
	}
	if !code.Usable(now) {
		return skipped(ReasonInvalidCode), nil
	}

	aff, err := s.db.Affiliates.GetByID(ctx, code.AffiliateID)
	if err != nil {
		if domain.IsNotFound(err) {
			return skipped(ReasonInvalidCode), nil
		}
		return nil, domain.NewInternalError(err)
	}

	if o.CustomerUserID != "" && o.CustomerUserID == aff.UserID {
		s.logger.Info("self-purchase prevented", "order_id", o.OrderID, "affiliate_id", aff.ID)
		return skipped(ReasonSelfPurchase), nil
	}

	if _, err := s.db.Referrals.GetByOrderID(ctx, o.OrderID); err == nil {
		return skipped(ReasonDuplicateOrder), nil
	} else if !domain.IsNotFound(err) {
		return nil, domain.NewInternalError(err)
	}

	productID := o.PlanID
	if productID == "" {
		productID = o.ListingID
	}
	result := commission.Calculate(o.Amount, commission.Rates{
		Product:   s.productRate(ctx, productID),
		Affiliate: aff.CommissionRate,
		Default:   s.cfg.DefaultRate,
	})

	ref := &domain.Referral{
		AffiliateID:      aff.ID,
		CodeID:           code.ID,
		OrderID:          o.OrderID,
		CustomerUserID:   o.CustomerUserID,
		ProductID:        productID,
		OrderAmount:      o.Amount.Round(2),
		CommissionAmount: result.Amount,
		CommissionRate:   result.Rate,
		Status:           domain.ReferralStatusPending,
		CreatedAt:        now.UTC(),
	}

	ip := strings.TrimSpace(o.CustomerIP)
	if ip == "" {
		ip = strings.TrimSpace(o.RequestIP)
	}

	matched, err := s.attribute(ctx, ref, ip, now)
	if err != nil {
		if domain.IsConflict(err) {
			return skipped(ReasonDuplicateOrder), nil
		}
		s.logger.Error("failed to create referral", "order_id", o.OrderID, "error", err)
		return nil, domain.NewInternalError(err)
	}

	s.logger.Info("referral created",
		"order_id", o.OrderID,
		"referral_id", ref.ID,
		"affiliate_id", aff.ID,
		"commission", ref.CommissionAmount.StringFixed(2),
		"visit_matched", matched,
	)
	s.publisher.Publish(ctx, events.Event{Type: events.ReferralCreated, Affiliate: aff, Code: code, Referral: ref})

	return &Outcome{Action: ActionCreated, ReferralID: ref.ID}, nil
}

// attribute writes the referral, marks the matching visit and bumps the code's conversions together
func (s *Service) attribute(ctx context.Context, ref *domain.Referral, ip string, now time.Time) (bool, error) {
	tx, err := s.db.Tx(ctx)
	if err != nil {
		return false, err
	}

	if err := tx.Referrals.Create(ctx, ref); err != nil {
		tx.Rollback()
		return false, err
	}

	matched := false
	if ip != "" {
		matched, err = tx.Visits.MarkMostRecentConverted(ctx, ref.AffiliateID, ref.CodeID, ip, now.Add(-s.cfg.MatchWindow))
		if err != nil {
			tx.Rollback()
			return false, err
		}
	}

	if err := tx.Codes.IncrementConversions(ctx, ref.CodeID); err != nil {
		tx.Rollback()
		return false, err
	}

	return matched, tx.Commit()
}

// OnOrderCompleted approves the pending referral of orderID
func (s *Service) OnOrderCompleted(ctx context.Context, orderID string) (*Outcome, error) {
	ref, err := s.db.Referrals.GetByOrderID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		if domain.IsNotFound(err) {
			return skipped(ReasonNotFound), nil
		}
		return nil, domain.NewInternalError(err)
	}
	if ref.Status != domain.ReferralStatusPending {
		return skipped(ReasonNotPending), nil
	}

	now := s.now().UTC()
	ok, err := s.db.Referrals.Transition(ctx, ref.ID, []domain.ReferralStatus{domain.ReferralStatusPending}, domain.ReferralStatusApproved, &now)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if !ok {
		return skipped(ReasonNotPending), nil
	}
	ref.Status = domain.ReferralStatusApproved
	ref.ApprovedAt = &now

	s.logger.Info("referral approved", "order_id", ref.OrderID, "referral_id", ref.ID)
	s.publish(ctx, events.ReferralApproved, ref, "")

	return &Outcome{
		Action:            ActionApproved,
		ReferralID:        ref.ID,
		ExpireAttribution: s.cfg.ExpireCookieOnComplete,
	}, nil
}

// OnOrderStatusChanged rejects the referral of orderID when the order is cancelled, refunded or failed
func (s *Service) OnOrderStatusChanged(ctx context.Context, newStatus, oldStatus, orderID string) (*Outcome, error) {
	orderID = strings.TrimSpace(orderID)
	status := NormalizeStatus(newStatus)
	if orderID == "" || status == "" {
		return skipped(ReasonIgnoredStatus), nil
	}

	ref, err := s.db.Referrals.GetByOrderID(ctx, orderID)
	if err != nil {
		if domain.IsNotFound(err) {
			return skipped(ReasonNotFound), nil
		}
		return nil, domain.NewInternalError(err)
	}

	if !rejectingStatuses[status] {
		return skipped(ReasonIgnoredStatus), nil
	}
	if ref.Status.Terminal() {
		return skipped(ReasonTerminal), nil
	}

	ok, err := s.reject(ctx, ref)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if !ok {
		return skipped(ReasonTerminal), nil
	}
	ref.Status = domain.ReferralStatusRejected
	ref.PayoutID = ""

	s.logger.Info("referral rejected",
		"order_id", orderID,
		"referral_id", ref.ID,
		"order_status", status,
		"previous_order_status", NormalizeStatus(oldStatus),
	)
	s.publish(ctx, events.ReferralRejected, ref, status)

	return &Outcome{Action: ActionRejected, ReferralID: ref.ID, Reason: status}, nil
}

// reject moves the referral to rejected, takes back its conversion and drops it from any
// open payout in one transaction
func (s *Service) reject(ctx context.Context, ref *domain.Referral) (bool, error) {
	tx, err := s.db.Tx(ctx)
	if err != nil {
		return false, err
	}

	ok, err := tx.Referrals.Transition(ctx, ref.ID,
		[]domain.ReferralStatus{domain.ReferralStatusPending, domain.ReferralStatusApproved},
		domain.ReferralStatusRejected, nil)
	if err != nil || !ok {
		tx.Rollback()
		return false, err
	}

	if ref.CodeID != "" {
		if err := tx.Codes.DecrementConversions(ctx, ref.CodeID); err != nil {
			tx.Rollback()
			return false, err
		}
	}

	// An approved referral may already sit in an unpaid batch; the batch total follows it out
	payoutID, err := tx.Referrals.DetachFromPayout(ctx, ref.ID)
	if err != nil {
		tx.Rollback()
		return false, err
	}
	if payoutID != "" {
		amount, err := tx.Referrals.SumByPayout(ctx, payoutID)
		if err != nil {
			tx.Rollback()
			return false, err
		}
		if err := tx.Payouts.SetAmount(ctx, payoutID, amount); err != nil {
			tx.Rollback()
			return false, err
		}
		s.logger.Info("referral removed from payout", "referral_id", ref.ID, "payout_id", payoutID, "amount", amount.StringFixed(2))
	}

	return true, tx.Commit()
}

func (s *Service) productRate(ctx context.Context, productID string) decimal.Decimal {
	if s.rates == nil || productID == "" {
		return decimal.Zero
	}
	rate, err := s.rates.ProductRate(ctx, productID)
	if err != nil {
		s.logger.Warn("product rate lookup failed", "product_id", productID, "error", err)
		return decimal.Zero
	}
	return rate
}

func (s *Service) publish(ctx context.Context, kind events.Type, ref *domain.Referral, reason string) {
	aff, err := s.db.Affiliates.GetByID(ctx, ref.AffiliateID)
	if err != nil {
		s.logger.Warn("referral affiliate unavailable for notification", "referral_id", ref.ID, "error", err)
	}
	s.publisher.Publish(ctx, events.Event{Type: kind, Affiliate: aff, Referral: ref, Reason: reason})
}

// NormalizeStatus lower-cases an order status and drops a "wc-" prefix
func NormalizeStatus(status string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(status)), "wc-")
}
