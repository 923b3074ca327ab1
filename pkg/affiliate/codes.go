package affiliate

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
)

const (
	codePrefix       = "DSA"
	codeRandomLength = 8
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts  = 10
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{4,50}$`)

var errCodeSpaceExhausted = errors.New("could not generate a unique affiliate code")

// GenerateCodeInput describes a new code. An empty Code is generated.
type GenerateCodeInput struct {
	Code         string          `json:"code"`
	Type         domain.CodeType `json:"type"`
	CampaignName string          `json:"campaign_name" validate:"max=100"`
	Description  string          `json:"description" validate:"max=500"`
	ExpiresAt    *time.Time      `json:"expires_at"`
}

// GenerateCode creates a custom or campaign code for an active affiliate
func (s *Service) GenerateCode(ctx context.Context, userID string, in GenerateCodeInput) (*domain.AffiliateCode, error) {
	aff, err := s.requireActiveFor(ctx, userID, "You must be an active affiliate to generate codes.")
	if err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = domain.CodeTypeCustom
	}
	if !in.Type.Valid() || in.Type == domain.CodeTypeDefault {
		return nil, domain.NewFieldValidationError(map[string]string{"type": "Please select a valid code type."})
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, registrationError(err)
	}

	now := s.now().UTC()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, domain.NewFieldValidationError(map[string]string{"expires_at": "Expiry date must be in the future."})
	}

	value := domain.NormalizeCode(in.Code)
	if value != "" {
		if !codePattern.MatchString(value) {
			return nil, domain.NewFieldValidationError(map[string]string{
				"code": "Codes must be 4 to 50 characters of letters, numbers, dashes or underscores.",
			})
		}
		taken, err := s.codeTaken(ctx, s.db.Affiliates, s.db.Codes, value)
		if err != nil {
			return nil, domain.NewInternalError(err)
		}
		if taken {
			return nil, domain.NewConflictError("This code already exists. Please choose a different one.")
		}
	} else {
		if value, err = s.uniqueCode(ctx, s.db.Affiliates, s.db.Codes); err != nil {
			return nil, domain.NewInternalError(err)
		}
	}

	code := &domain.AffiliateCode{
		AffiliateID:  aff.ID,
		Code:         value,
		Type:         in.Type,
		CampaignName: strings.TrimSpace(in.CampaignName),
		Description:  strings.TrimSpace(in.Description),
		Status:       domain.CodeStatusActive,
		CreatedAt:    now,
		ExpiresAt:    in.ExpiresAt,
	}
	if err := s.db.Codes.Create(ctx, code); err != nil {
		if domain.IsConflict(err) {
			return nil, domain.NewConflictError("This code already exists. Please choose a different one.")
		}
		return nil, domain.NewInternalError(err)
	}

	s.invalidate(ctx, code.Code)
	s.logger.Info("affiliate code generated", "affiliate_id", aff.ID, "code", code.Code, "type", string(code.Type))
	return code, nil
}

// DeleteCode removes one of the affiliate's own non-default codes
func (s *Service) DeleteCode(ctx context.Context, userID, codeID string) error {
	aff, err := s.requireActiveFor(ctx, userID, "You must be an active affiliate to manage codes.")
	if err != nil {
		return err
	}

	code, err := s.db.Codes.GetByID(ctx, codeID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.NewNotFoundError("code")
		}
		return domain.NewInternalError(err)
	}
	if code.AffiliateID != aff.ID {
		return domain.NewForbiddenError("You do not have permission to delete this code.")
	}
	if code.Type == domain.CodeTypeDefault {
		return domain.NewPolicyError("Default codes cannot be deleted.")
	}

	if err := s.db.Codes.Delete(ctx, code.ID); err != nil {
		if domain.IsNotFound(err) {
			return domain.NewNotFoundError("code")
		}
		return domain.NewInternalError(err)
	}

	s.invalidate(ctx, code.Code)
	s.logger.Info("affiliate code deleted", "affiliate_id", aff.ID, "code", code.Code)
	return nil
}

// ListCodes returns the affiliate's codes, oldest first
func (s *Service) ListCodes(ctx context.Context, userID string) ([]*domain.AffiliateCode, error) {
	aff, err := s.requireActiveFor(ctx, userID, "You must be an active affiliate to manage codes.")
	if err != nil {
		return nil, err
	}
	codes, err := s.db.Codes.ListByAffiliate(ctx, aff.ID)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return codes, nil
}

// AffiliateURL returns target (the site URL when empty) carrying code in the referral parameter
func (s *Service) AffiliateURL(code, target string) string {
	if target == "" {
		target = s.cfg.SiteURL
	}
	if target == "" {
		target = "/"
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(s.cfg.ReferralParam, code)
	u.RawQuery = q.Encode()
	return u.String()
}

// ExpireCodes marks active codes past their expiry as expired and returns how many changed
func (s *Service) ExpireCodes(ctx context.Context) (int, error) {
	expired, err := s.db.Codes.ExpirePast(ctx, s.now().UTC())
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	if len(expired) > 0 {
		s.invalidate(ctx, expired...)
		s.logger.Info("expired affiliate codes", "count", len(expired))
	}
	return len(expired), nil
}

func (s *Service) requireActiveFor(ctx context.Context, userID, msg string) (*domain.Affiliate, error) {
	aff, err := s.RequireActive(ctx, userID)
	if err != nil {
		if domain.IsForbidden(err) {
			return nil, domain.NewForbiddenError(msg)
		}
		return nil, err
	}
	return aff, nil
}

// uniqueCode draws DSA-prefixed codes until one is free in both the code and affiliate tables
func (s *Service) uniqueCode(ctx context.Context, affiliates *database.AffiliateRepository, codes *database.CodeRepository) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		candidate, err := randomCode()
		if err != nil {
			return "", err
		}
		taken, err := s.codeTaken(ctx, affiliates, codes, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", errCodeSpaceExhausted
}

func (s *Service) codeTaken(ctx context.Context, affiliates *database.AffiliateRepository, codes *database.CodeRepository, value string) (bool, error) {
	exists, err := codes.Exists(ctx, value)
	if err != nil || exists {
		return exists, err
	}
	return affiliates.CodeTaken(ctx, value)
}

func randomCode() (string, error) {
	var b strings.Builder
	b.WriteString(codePrefix)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeRandomLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

func codeValues(codes []*domain.AffiliateCode) []string {
	values := make([]string, 0, len(codes))
	for _, c := range codes {
		values = append(values, c.Code)
	}
	return values
}
