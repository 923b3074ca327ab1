// Package tracking turns referral links into attribution cookies and reported
// page views into visit ledger entries.
package tracking

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/auth"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
)

// Defaults
const (
	DefaultParam            = "ref"
	DefaultCookieName       = "directorist_affiliate_ref"
	DefaultCookieDays       = 30
	DefaultDuplicateWindow  = 24 * time.Hour
	DefaultRateLimitPerHour = 100
	DefaultTokenTTL         = 12 * time.Hour

	jsCookieSuffix = "_js"
)

// Visit outcomes reported to the Observer
const (
	OutcomeRecorded     = "recorded"
	OutcomeDuplicate    = "duplicate"
	OutcomeInvalid      = "invalid"
	OutcomeSelfReferral = "self_referral"
	OutcomeRateLimited  = "rate_limited"
)

// Policy rejections. None of them has side effects.
var (
	ErrInvalidToken      = domain.NewUnauthorizedError("Invalid security token")
	ErrMissingCode       = domain.NewValidationError("No referral code found")
	ErrInvalidCode       = domain.NewPolicyError("Invalid or inactive code")
	ErrCodeExpired       = domain.NewPolicyError("Code expired")
	ErrAffiliateNotFound = domain.NewPolicyError("Affiliate not found")
	ErrSelfReferral      = domain.NewPolicyError("Self-referral not allowed")
	ErrRateLimited       = domain.NewRateLimitedError("Rate limit exceeded")
)

// Config controls cookie and abuse settings
type Config struct {
	Param            string
	CookieName       string
	CookieDays       int
	DuplicateWindow  time.Duration
	RateLimitPerHour int
	TokenSecret      string
	TokenTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.Param == "" {
		c.Param = DefaultParam
	}
	if c.CookieName == "" {
		c.CookieName = DefaultCookieName
	}
	if c.CookieDays <= 0 {
		c.CookieDays = DefaultCookieDays
	}
	if c.DuplicateWindow <= 0 {
		c.DuplicateWindow = DefaultDuplicateWindow
	}
	if c.RateLimitPerHour <= 0 {
		c.RateLimitPerHour = DefaultRateLimitPerHour
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	return c
}

// JSCookieName is the script-readable attribution cookie
func (c Config) JSCookieName() string {
	return c.CookieName + jsCookieSuffix
}

// Observer is told the outcome of every record attempt
type Observer interface {
	VisitOutcome(outcome string)
}

// DetectRequest is an inbound page request that may carry a referral parameter
type DetectRequest struct {
	URL           *url.URL
	VisitorUserID string
	Secure        bool
}

// Detection is what the caller must apply to the response.
// A zero Detection means nothing to do.
type Detection struct {
	Code         *domain.AffiliateCode
	Cookies      []*http.Cookie
	RedirectURL  string
	SelfReferral bool
}

// VisitRequest is a visit reported by the tracking script
type VisitRequest struct {
	Token         string
	Code          string
	IP            string
	UserAgent     string
	ReferrerURL   string
	LandingURL    string
	VisitorUserID string
}

// VisitResult is the structured outcome of RecordVisit
type VisitResult struct {
	Success   bool   `json:"success"`
	Duplicate bool   `json:"duplicate"`
	Message   string `json:"message"`
	VisitID   string `json:"visit_id,omitempty"`
}

// Service is the tracking engine
type Service struct {
	db        *database.Client
	codes     domain.CodeFinder
	publisher events.Publisher
	observer  Observer
	cfg       Config
	logger    logger.Logger
	now       domain.Clock
}

// NewService creates a tracking service. codes resolves referral codes, usually through the cache.
func NewService(db *database.Client, codes domain.CodeFinder, publisher events.Publisher, cfg Config, log logger.Logger) *Service {
	if codes == nil {
		codes = db.Codes
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		db:        db,
		codes:     codes,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		logger:    log.With("component", "tracking"),
		now:       time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now domain.Clock) *Service {
	s.now = now
	return s
}

// WithObserver reports visit outcomes to o
func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// IssueToken returns a signed token the tracking script sends back with each visit
func (s *Service) IssueToken() (string, time.Time, error) {
	return auth.GenerateTrackingToken(s.cfg.TokenSecret, s.cfg.TokenTTL)
}

// DetectReferral resolves the referral parameter of req. Invalid codes are ignored.
func (s *Service) DetectReferral(ctx context.Context, req DetectRequest) (*Detection, error) {
	if req.URL == nil {
		return &Detection{}, nil
	}
	value := domain.NormalizeCode(req.URL.Query().Get(s.cfg.Param))
	if value == "" {
		return &Detection{}, nil
	}

	now := s.now()
	code, aff, err := s.resolve(ctx, value, now)
	if err != nil {
		if domain.IsInternal(err) {
			return nil, err
		}
		s.logger.Debug("ignoring referral parameter", "code", value, "reason", err.Error())
		return &Detection{}, nil
	}

	if req.VisitorUserID != "" && aff.UserID == req.VisitorUserID {
		s.logger.Info("self-referral suppressed", "affiliate_id", aff.ID, "code", code.Code)
		return &Detection{Code: code, SelfReferral: true}, nil
	}

	expires := now.Add(time.Duration(s.cfg.CookieDays) * 24 * time.Hour)
	return &Detection{
		Code:        code,
		Cookies:     s.cookies(code.Code, expires, req.Secure),
		RedirectURL: stripParam(req.URL, s.cfg.Param),
	}, nil
}

// RecordVisit validates a reported visit and appends it to the visit ledger
func (s *Service) RecordVisit(ctx context.Context, req VisitRequest) (*VisitResult, error) {
	if req.Token == "" || auth.ValidateTrackingToken(req.Token, s.cfg.TokenSecret) != nil {
		return nil, ErrInvalidToken
	}

	value := domain.NormalizeCode(req.Code)
	if value == "" {
		return nil, ErrMissingCode
	}

	now := s.now()
	code, aff, err := s.resolve(ctx, value, now)
	if err != nil {
		s.observe(OutcomeInvalid)
		return nil, err
	}

	if req.VisitorUserID != "" && aff.UserID == req.VisitorUserID {
		s.observe(OutcomeSelfReferral)
		return nil, ErrSelfReferral
	}

	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		ip = fallbackIP
	}

	recent, err := s.db.Visits.CountByIPSince(ctx, ip, now.Add(-time.Hour))
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if recent >= s.cfg.RateLimitPerHour {
		s.observe(OutcomeRateLimited)
		s.logger.Warn("visit rate limit exceeded", "ip", ip, "visits", recent)
		return nil, ErrRateLimited
	}

	existing, err := s.db.Visits.FindRecent(ctx, aff.ID, code.ID, ip, now.Add(-s.cfg.DuplicateWindow))
	if err == nil {
		s.observe(OutcomeDuplicate)
		return &VisitResult{Success: true, Duplicate: true, Message: "Duplicate visit ignored", VisitID: existing.ID}, nil
	}
	if !domain.IsNotFound(err) {
		return nil, domain.NewInternalError(err)
	}

	visit := &domain.Visit{
		AffiliateID: aff.ID,
		CodeID:      code.ID,
		IPAddress:   ip,
		UserAgent:   req.UserAgent,
		ReferrerURL: req.ReferrerURL,
		LandingURL:  req.LandingURL,
		CreatedAt:   now.UTC(),
	}
	if err := s.insertVisit(ctx, visit); err != nil {
		s.logger.Error("failed to record visit", "affiliate_id", aff.ID, "code", code.Code, "error", err)
		return nil, domain.NewInternalError(err)
	}

	s.observe(OutcomeRecorded)
	s.logger.Info("visit recorded", "affiliate_id", aff.ID, "code", code.Code, "visit_id", visit.ID)
	s.publisher.Publish(ctx, events.Event{Type: events.VisitRecorded, Affiliate: aff, Code: code, Visit: visit})

	return &VisitResult{Success: true, Message: "Visit recorded", VisitID: visit.ID}, nil
}

// ClearCookies returns expired copies of both attribution cookies
func (s *Service) ClearCookies(secure bool) []*http.Cookie {
	cookies := s.cookies("", time.Unix(0, 0), secure)
	for _, c := range cookies {
		c.MaxAge = -1
	}
	return cookies
}

// insertVisit writes the visit and bumps the click counter in one transaction
func (s *Service) insertVisit(ctx context.Context, v *domain.Visit) error {
	tx, err := s.db.Tx(ctx)
	if err != nil {
		return err
	}
	if err := tx.Visits.Create(ctx, v); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Codes.IncrementClicks(ctx, v.CodeID); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// resolve returns a usable code and its owner, or a policy error
func (s *Service) resolve(ctx context.Context, value string, now time.Time) (*domain.AffiliateCode, *domain.Affiliate, error) {
	code, err := s.codes.GetByCode(ctx, value)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil, ErrInvalidCode
		}
		return nil, nil, domain.NewInternalError(err)
	}
	if code.Status != domain.CodeStatusActive {
		return nil, nil, ErrInvalidCode
	}
	if !code.Usable(now) {
		return nil, nil, ErrCodeExpired
	}

	aff, err := s.db.Affiliates.GetByID(ctx, code.AffiliateID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, nil, ErrAffiliateNotFound
		}
		return nil, nil, domain.NewInternalError(err)
	}
	return code, aff, nil
}

func (s *Service) cookies(value string, expires time.Time, secure bool) []*http.Cookie {
	base := http.Cookie{
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	server := base
	server.Name = s.cfg.CookieName
	server.HttpOnly = true

	script := base
	script.Name = s.cfg.JSCookieName()

	return []*http.Cookie{&server, &script}
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.VisitOutcome(outcome)
	}
}

// stripParam returns the same-site request URI of u without param
func stripParam(u *url.URL, param string) string {
	clean := *u
	q := clean.Query()
	q.Del(param)
	clean.RawQuery = q.Encode()
	clean.Scheme = ""
	clean.Host = ""
	clean.User = nil
	// a leading "//" is read by browsers as another host
	uri := "/" + strings.TrimLeft(clean.RequestURI(), "/")
	if clean.Fragment != "" {
		uri += "#" + clean.EscapedFragment()
	}
	return uri
}
