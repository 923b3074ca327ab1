package affiliate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/phone"
	"github.com/shopspring/decimal"
)

var (
	errNotAffiliate = domain.NewForbiddenError("User is not registered as an affiliate.")
	errInactive     = domain.NewForbiddenError("You must be an active affiliate to perform this action.")
)

// Config holds the program settings the registry needs
type Config struct {
	SiteURL       string
	ReferralParam string
	PhoneRegion   string
}

// RegistrationInput is the affiliate application form
type RegistrationInput struct {
	FullName        string               `json:"full_name" validate:"required,max=100"`
	Email           string               `json:"email" validate:"required,email"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method" validate:"required,oneof=paypal bank_transfer"`
	PayPalEmail     string               `json:"paypal_email" validate:"required_if=PaymentMethod paypal,omitempty,email"`
	BankDetails     string               `json:"bank_details" validate:"required_if=PaymentMethod bank_transfer"`
	Website         string               `json:"website" validate:"required,url"`
	Phone           string               `json:"phone" validate:"max=32"`
	PromotionMethod string               `json:"promotion_method" validate:"required,max=2000"`
	AgreeTerms      bool                 `json:"agree_terms" validate:"required"`
}

// SettingsInput carries the affiliate-editable profile fields. Nil fields are left unchanged.
type SettingsInput struct {
	PaymentMethod   *domain.PaymentMethod `json:"payment_method" validate:"omitempty,oneof=paypal bank_transfer"`
	PayPalEmail     *string               `json:"paypal_email" validate:"omitempty,email"`
	BankDetails     *string               `json:"bank_details"`
	Website         *string               `json:"website" validate:"omitempty,url"`
	Phone           *string               `json:"phone" validate:"omitempty,max=32"`
	PromotionMethod *string               `json:"promotion_method" validate:"omitempty,max=2000"`
}

// Stats holds dashboard statistics for an affiliate
type Stats struct {
	TotalClicks      int             `json:"total_clicks"`
	TotalConversions int             `json:"total_conversions"`
	ConversionRate   float64         `json:"conversion_rate"`
	TotalEarnings    decimal.Decimal `json:"total_earnings"`
	PendingEarnings  decimal.Decimal `json:"pending_earnings"`
	ApprovedEarnings decimal.Decimal `json:"approved_earnings"`
	PaidEarnings     decimal.Decimal `json:"paid_earnings"`
	RejectedCount    int             `json:"rejected_count"`
}

// Dashboard is everything the affiliate dashboard shows
type Dashboard struct {
	Affiliate    *domain.Affiliate       `json:"affiliate"`
	Codes        []*domain.AffiliateCode `json:"codes"`
	AffiliateURL string                  `json:"affiliate_url,omitempty"`
	Stats        Stats                   `json:"stats"`
}

// Overview is the admin overview of the program
type Overview struct {
	Affiliates       map[domain.AffiliateStatus]int `json:"affiliates"`
	TotalAffiliates  int                            `json:"total_affiliates"`
	TotalCodes       int                            `json:"total_codes"`
	TotalClicks      int                            `json:"total_clicks"`
	TotalConversions int                            `json:"total_conversions"`
	PendingReferrals int                            `json:"pending_referrals"`
	PendingAmount    decimal.Decimal                `json:"pending_amount"`
	ApprovedAmount   decimal.Decimal                `json:"approved_amount"`
	PaidAmount       decimal.Decimal                `json:"paid_amount"`
}

// Service handles affiliate and referral code registry operations
type Service struct {
	db          *database.Client
	publisher   events.Publisher
	invalidator domain.CodeInvalidator
	validate    *validator.Validate
	cfg         Config
	logger      logger.Logger
	now         domain.Clock
}

// NewService creates a new affiliate service
func NewService(db *database.Client, publisher events.Publisher, cfg Config, log logger.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.ReferralParam == "" {
		cfg.ReferralParam = "ref"
	}
	return &Service{
		db:        db,
		publisher: publisher,
		validate:  validator.New(),
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now domain.Clock) *Service {
	s.now = now
	return s
}

// WithCodeInvalidator drops cached lookups whenever codes change
func (s *Service) WithCodeInvalidator(inv domain.CodeInvalidator) *Service {
	s.invalidator = inv
	return s
}

// Register creates a pending affiliate for userID
func (s *Service) Register(ctx context.Context, userID string, in RegistrationInput) (*domain.Affiliate, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("Invalid user ID.")
	}

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.PayPalEmail = strings.TrimSpace(in.PayPalEmail)
	in.Website = strings.TrimSpace(in.Website)
	if err := s.validate.Struct(in); err != nil {
		return nil, registrationError(err)
	}

	normalizedPhone := ""
	if strings.TrimSpace(in.Phone) != "" {
		e164, err := phone.NormalizeE164(in.Phone, s.cfg.PhoneRegion)
		if err != nil {
			return nil, domain.NewFieldValidationError(map[string]string{"phone": "Please enter a valid phone number."})
		}
		normalizedPhone = e164
	}

	if _, err := s.db.Affiliates.GetByUserID(ctx, userID); err == nil {
		return nil, domain.NewConflictError("User is already registered as an affiliate.")
	} else if !domain.IsNotFound(err) {
		return nil, domain.NewInternalError(err)
	}

	code, err := s.uniqueCode(ctx, s.db.Affiliates, s.db.Codes)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	paymentEmail := in.Email
	if in.PaymentMethod == domain.PaymentMethodPayPal {
		paymentEmail = in.PayPalEmail
	}

	now := s.now().UTC()
	aff := &domain.Affiliate{
		UserID:          userID,
		AffiliateCode:   code,
		Status:          domain.AffiliateStatusPending,
		Email:           in.Email,
		DisplayName:     in.FullName,
		PaymentEmail:    paymentEmail,
		PaymentMethod:   in.PaymentMethod,
		PayPalEmail:     in.PayPalEmail,
		BankDetails:     strings.TrimSpace(in.BankDetails),
		Website:         in.Website,
		Phone:           normalizedPhone,
		PromotionMethod: strings.TrimSpace(in.PromotionMethod),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.Affiliates.Create(ctx, aff); err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, domain.NewInternalError(fmt.Errorf("Failed to save affiliate data to database: %w", err))
	}

	s.logger.Info("affiliate registered", "user_id", userID, "affiliate_id", aff.ID, "affiliate_code", code)
	s.publisher.Publish(ctx, events.Event{Type: events.AffiliateRegistered, Affiliate: aff})

	return aff, nil
}

// Get returns the affiliate record of userID
func (s *Service) Get(ctx context.Context, userID string) (*domain.Affiliate, error) {
	aff, err := s.db.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("affiliate")
		}
		return nil, domain.NewInternalError(err)
	}
	return aff, nil
}

// RequireActive returns the affiliate of userID or a forbidden error when the user is not an active affiliate
func (s *Service) RequireActive(ctx context.Context, userID string) (*domain.Affiliate, error) {
	aff, err := s.db.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, errNotAffiliate
		}
		return nil, domain.NewInternalError(err)
	}
	if !aff.IsActive() {
		return nil, errInactive
	}
	return aff, nil
}

// Approve activates an affiliate
func (s *Service) Approve(ctx context.Context, userID string) (*domain.Affiliate, error) {
	return s.UpdateStatus(ctx, userID, domain.AffiliateStatusActive, "")
}

// Reject rejects an affiliate application
func (s *Service) Reject(ctx context.Context, userID, reason string) (*domain.Affiliate, error) {
	return s.UpdateStatus(ctx, userID, domain.AffiliateStatusRejected, reason)
}

// Suspend suspends an active affiliate
func (s *Service) Suspend(ctx context.Context, userID, reason string) (*domain.Affiliate, error) {
	return s.UpdateStatus(ctx, userID, domain.AffiliateStatusSuspended, reason)
}

// UpdateStatus moves an affiliate to status. Becoming active creates the default code
// in the same transaction when none exists.
func (s *Service) UpdateStatus(ctx context.Context, userID string, status domain.AffiliateStatus, reason string) (*domain.Affiliate, error) {
	if !status.Valid() || status == domain.AffiliateStatusArchived {
		return nil, domain.NewValidationError("Invalid affiliate status.")
	}

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	aff, err := tx.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		tx.Rollback()
		if domain.IsNotFound(err) {
			return nil, errNotAffiliate
		}
		return nil, domain.NewInternalError(err)
	}

	previous := aff.Status
	now := s.now().UTC()
	reason = strings.TrimSpace(reason)

	if err := tx.Affiliates.UpdateStatus(ctx, aff.ID, status, reason, now); err != nil {
		tx.Rollback()
		return nil, domain.NewInternalError(err)
	}

	var (
		defaultCode *domain.AffiliateCode
		restored    []string
	)
	if status == domain.AffiliateStatusActive {
		// codes switched off by archiving come back with the affiliate
		if previous == domain.AffiliateStatusArchived {
			restored, err = tx.Codes.SetStatusByAffiliate(ctx, aff.ID, domain.CodeStatusInactive, domain.CodeStatusActive)
			if err != nil {
				tx.Rollback()
				return nil, domain.NewInternalError(err)
			}
		}
		defaultCode, err = s.ensureDefaultCode(ctx, tx, aff, now)
		if err != nil {
			tx.Rollback()
			return nil, domain.NewInternalError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewInternalError(err)
	}
	s.invalidate(ctx, restored...)

	aff.Status = status
	aff.StatusReason = reason
	aff.UpdatedAt = now
	if defaultCode != nil {
		aff.AffiliateCode = defaultCode.Code
	}

	s.logger.Info("affiliate status changed",
		"user_id", userID,
		"affiliate_id", aff.ID,
		"from", string(previous),
		"to", string(status),
	)
	s.publisher.Publish(ctx, events.Event{
		Type:           events.AffiliateStatusChanged,
		Affiliate:      aff,
		Code:           defaultCode,
		PreviousStatus: string(previous),
		Reason:         reason,
	})

	return aff, nil
}

// ensureDefaultCode returns the affiliate's default code, creating it from the
// affiliate code value when missing.
func (s *Service) ensureDefaultCode(ctx context.Context, tx *database.Tx, aff *domain.Affiliate, now time.Time) (*domain.AffiliateCode, error) {
	existing, err := tx.Codes.GetDefault(ctx, aff.ID)
	if err == nil {
		return existing, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	value := aff.AffiliateCode
	if value != "" {
		taken, err := tx.Codes.Exists(ctx, value)
		if err != nil {
			return nil, err
		}
		if taken {
			value = ""
		}
	}
	if value == "" {
		if value, err = s.uniqueCode(ctx, tx.Affiliates, tx.Codes); err != nil {
			return nil, err
		}
		if err := tx.Affiliates.SetAffiliateCode(ctx, aff.ID, value, now); err != nil {
			return nil, err
		}
	}

	code := &domain.AffiliateCode{
		AffiliateID: aff.ID,
		Code:        value,
		Type:        domain.CodeTypeDefault,
		Status:      domain.CodeStatusActive,
		CreatedAt:   now,
	}
	if err := tx.Codes.Create(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// Remove archives an affiliate and deactivates its codes, or deletes the affiliate and its
// codes when purge is set. Visits and referrals are kept either way.
func (s *Service) Remove(ctx context.Context, userID string, purge bool) error {
	aff, err := s.db.Affiliates.GetByUserID(ctx, userID)
	if err != nil {
		if domain.IsNotFound(err) {
			return errNotAffiliate
		}
		return domain.NewInternalError(err)
	}

	codes, err := s.db.Codes.ListByAffiliate(ctx, aff.ID)
	if err != nil {
		return domain.NewInternalError(err)
	}

	tx, err := s.db.Tx(ctx)
	if err != nil {
		return domain.NewInternalError(err)
	}

	if purge {
		if err := tx.Codes.DeleteByAffiliate(ctx, aff.ID); err != nil {
			tx.Rollback()
			return domain.NewInternalError(err)
		}
		if err := tx.Affiliates.Delete(ctx, aff.ID); err != nil {
			tx.Rollback()
			return domain.NewInternalError(err)
		}
	} else {
		if err := tx.Affiliates.UpdateStatus(ctx, aff.ID, domain.AffiliateStatusArchived, aff.StatusReason, s.now().UTC()); err != nil {
			tx.Rollback()
			return domain.NewInternalError(err)
		}
		if _, err := tx.Codes.SetStatusByAffiliate(ctx, aff.ID, domain.CodeStatusActive, domain.CodeStatusInactive); err != nil {
			tx.Rollback()
			return domain.NewInternalError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewInternalError(err)
	}

	s.invalidate(ctx, codeValues(codes)...)
	s.logger.Info("affiliate removed", "user_id", userID, "affiliate_id", aff.ID, "purge", purge)
	return nil
}

// List returns one page of affiliates and the total matching count
func (s *Service) List(ctx context.Context, status domain.AffiliateStatus, page, limit int) ([]*domain.Affiliate, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, domain.NewValidationError("Invalid affiliate status.")
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, err := s.db.Affiliates.List(ctx, status, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, domain.NewInternalError(err)
	}
	total, err := s.db.Affiliates.Count(ctx, status)
	if err != nil {
		return nil, 0, domain.NewInternalError(err)
	}
	return list, total, nil
}

// Count returns the number of affiliates with status (all when empty)
func (s *Service) Count(ctx context.Context, status domain.AffiliateStatus) (int, error) {
	n, err := s.db.Affiliates.Count(ctx, status)
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	return n, nil
}

// Overview summarizes the whole program for admins
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	byStatus, err := s.db.Affiliates.CountByStatus(ctx)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	codeTotals, err := s.db.Codes.Totals(ctx, "")
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	referralTotals, err := s.db.Referrals.TotalsByStatus(ctx, "")
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	o := &Overview{
		Affiliates:       byStatus,
		TotalCodes:       codeTotals.Codes,
		TotalClicks:      codeTotals.Clicks,
		TotalConversions: codeTotals.Conversions,
		PendingReferrals: referralTotals[domain.ReferralStatusPending].Count,
		PendingAmount:    referralTotals[domain.ReferralStatusPending].Commission,
		ApprovedAmount:   referralTotals[domain.ReferralStatusApproved].Commission,
		PaidAmount:       referralTotals[domain.ReferralStatusPaid].Commission,
	}
	for _, n := range byStatus {
		o.TotalAffiliates += n
	}
	return o, nil
}

// Dashboard returns the affiliate's record, codes and statistics
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	aff, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Affiliate: aff}
	if !aff.IsActive() {
		return d, nil
	}

	if d.Codes, err = s.db.Codes.ListByAffiliate(ctx, aff.ID); err != nil {
		return nil, domain.NewInternalError(err)
	}
	if aff.AffiliateCode != "" {
		d.AffiliateURL = s.AffiliateURL(aff.AffiliateCode, "")
	}

	codeTotals, err := s.db.Codes.Totals(ctx, aff.ID)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	referralTotals, err := s.db.Referrals.TotalsByStatus(ctx, aff.ID)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	d.Stats = Stats{
		TotalClicks:      codeTotals.Clicks,
		TotalConversions: codeTotals.Conversions,
		PendingEarnings:  referralTotals[domain.ReferralStatusPending].Commission,
		ApprovedEarnings: referralTotals[domain.ReferralStatusApproved].Commission,
		PaidEarnings:     referralTotals[domain.ReferralStatusPaid].Commission,
		RejectedCount:    referralTotals[domain.ReferralStatusRejected].Count,
	}
	d.Stats.TotalEarnings = d.Stats.PendingEarnings.Add(d.Stats.ApprovedEarnings).Add(d.Stats.PaidEarnings)
	if codeTotals.Clicks > 0 {
		d.Stats.ConversionRate = (float64(codeTotals.Conversions) / float64(codeTotals.Clicks)) * 100
	}
	return d, nil
}

// UpdateSettings saves payment and profile details of an active affiliate
func (s *Service) UpdateSettings(ctx context.Context, userID string, in SettingsInput) (*domain.Affiliate, error) {
	aff, err := s.RequireActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, registrationError(err)
	}

	if in.PaymentMethod != nil {
		aff.PaymentMethod = *in.PaymentMethod
	}
	if in.PayPalEmail != nil {
		aff.PayPalEmail = strings.TrimSpace(*in.PayPalEmail)
	}
	if in.BankDetails != nil {
		aff.BankDetails = strings.TrimSpace(*in.BankDetails)
	}
	if in.Website != nil {
		aff.Website = strings.TrimSpace(*in.Website)
	}
	if in.PromotionMethod != nil {
		aff.PromotionMethod = strings.TrimSpace(*in.PromotionMethod)
	}
	if in.Phone != nil {
		aff.Phone = ""
		if strings.TrimSpace(*in.Phone) != "" {
			e164, err := phone.NormalizeE164(*in.Phone, s.cfg.PhoneRegion)
			if err != nil {
				return nil, domain.NewFieldValidationError(map[string]string{"phone": "Please enter a valid phone number."})
			}
			aff.Phone = e164
		}
	}

	switch aff.PaymentMethod {
	case domain.PaymentMethodPayPal:
		if aff.PayPalEmail == "" {
			return nil, domain.NewFieldValidationError(map[string]string{"paypal_email": "PayPal email is required."})
		}
		aff.PaymentEmail = aff.PayPalEmail
	case domain.PaymentMethodBankTransfer:
		if aff.BankDetails == "" {
			return nil, domain.NewFieldValidationError(map[string]string{"bank_details": "Bank transfer details are required."})
		}
	}

	now := s.now().UTC()
	if err := s.db.Affiliates.UpdateSettings(ctx, aff, now); err != nil {
		return nil, domain.NewInternalError(err)
	}
	aff.UpdatedAt = now
	return aff, nil
}

// SetCommissionRate sets the affiliate's own rate. A nil rate falls back to the program default.
func (s *Service) SetCommissionRate(ctx context.Context, userID string, rate *decimal.Decimal) (*domain.Affiliate, error) {
	aff, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var value decimal.NullDecimal
	if rate != nil {
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return nil, domain.NewFieldValidationError(map[string]string{"commission_rate": "Commission rate must be between 0 and 100."})
		}
		value = decimal.NewNullDecimal(rate.Round(2))
	}

	now := s.now().UTC()
	if err := s.db.Affiliates.SetCommissionRate(ctx, aff.ID, value, now); err != nil {
		return nil, domain.NewInternalError(err)
	}
	aff.CommissionRate = value
	aff.UpdatedAt = now
	return aff, nil
}

func (s *Service) invalidate(ctx context.Context, codes ...string) {
	if s.invalidator == nil || len(codes) == 0 {
		return
	}
	if err := s.invalidator.Invalidate(ctx, codes...); err != nil {
		s.logger.Warn("failed to invalidate cached codes", "codes", codes, "error", err)
	}
}

var registrationMessages = map[string]string{
	"FullName.required":        "Full name is required.",
	"Email.required":           "Email address is required.",
	"Email.email":              "Please enter a valid email address.",
	"PaymentMethod.required":   "Payment method is required.",
	"PaymentMethod.oneof":      "Please select a valid payment method.",
	"PayPalEmail.required_if":  "PayPal email is required.",
	"PayPalEmail.email":        "Please enter a valid PayPal email address.",
	"BankDetails.required_if":  "Bank transfer details are required.",
	"Website.required":         "Website/Social Media URL is required.",
	"Website.url":              "Please enter a valid URL.",
	"PromotionMethod.required": "Please describe how you will promote Directorist.",
	"AgreeTerms.required":      "You must agree to the terms and conditions.",
}

var fieldNames = map[string]string{
	"FullName":        "full_name",
	"Email":           "email",
	"PaymentMethod":   "payment_method",
	"PayPalEmail":     "paypal_email",
	"BankDetails":     "bank_details",
	"Website":         "website",
	"Phone":           "phone",
	"PromotionMethod": "promotion_method",
	"AgreeTerms":      "agree_terms",
}

// registrationError converts validator errors into field-level messages
func registrationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewValidationError(err.Error())
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name, ok := fieldNames[fe.Field()]
		if !ok {
			name = strings.ToLower(fe.Field())
		}
		if _, seen := fields[name]; seen {
			continue
		}
		msg, ok := registrationMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fmt.Sprintf("Invalid value for %s.", name)
		}
		fields[name] = msg
	}
	return domain.NewFieldValidationError(fields)
}
