package handlers

import (
	"net/http"

	"github.com/jordanlanch/directorist-affiliate/pkg/api/middleware"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/models"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
	"github.com/labstack/echo/v4"
)

// NoticeHeader tells the page that a referral parameter was suppressed
const NoticeHeader = "X-Affiliate-Notice"

// TrackingHandler serves referral detection and the tracking script endpoints
type TrackingHandler struct {
	service *tracking.Service
	logger  logger.Logger
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(service *tracking.Service, log logger.Logger) *TrackingHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &TrackingHandler{service: service, logger: log}
}

// DetectReferral is a middleware for page requests. A valid referral parameter sets the
// attribution cookies and redirects to the same URL without the parameter.
func (h *TrackingHandler) DetectReferral() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || req.URL.Query().Get(h.service.Config().Param) == "" {
				return next(c)
			}

			det, err := h.service.DetectReferral(req.Context(), tracking.DetectRequest{
				URL:           req.URL,
				VisitorUserID: middleware.UserID(c),
				Secure:        c.Scheme() == "https",
			})
			if err != nil {
				h.logger.Error("referral detection failed", "path", req.URL.Path, "error", err)
				return next(c)
			}

			if det.SelfReferral {
				c.Response().Header().Set(NoticeHeader, "self-referral")
				return next(c)
			}
			if len(det.Cookies) == 0 {
				return next(c)
			}

			for _, cookie := range det.Cookies {
				c.SetCookie(cookie)
			}
			return c.Redirect(http.StatusFound, det.RedirectURL)
		}
	}
}

// Token godoc
// @Summary Issue a tracking token
// @Tags Tracking
// @Produce json
// @Success 200 {object} models.TrackingTokenResponse
// @Router /api/v1/track/token [get]
func (h *TrackingHandler) Token(c echo.Context) error {
	token, expires, err := h.service.IssueToken()
	if err != nil {
		return respond(c, err)
	}

	cfg := h.service.Config()
	return c.JSON(http.StatusOK, models.TrackingTokenResponse{
		Token:     token,
		ExpiresAt: expires.Unix(),
		Param:     cfg.Param,
		Cookie:    cfg.JSCookieName(),
	})
}

// RecordVisit godoc
// @Summary Record a referred visit
// @Description Called by the tracking script on pages opened with an attribution cookie
// @Tags Tracking
// @Accept json
// @Produce json
// @Param request body models.TrackVisitRequest true "Visit"
// @Success 200 {object} tracking.VisitResult
// @Failure 401 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Failure 429 {object} models.ErrorResponse
// @Router /api/v1/track/visit [post]
func (h *TrackingHandler) RecordVisit(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.TrackVisitRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}

	// The attribution cookie wins over the reported field
	code := req.Code
	if cookie, err := c.Cookie(h.service.Config().JSCookieName()); err == nil && cookie.Value != "" {
		code = cookie.Value
	}

	r := c.Request()
	result, err := h.service.RecordVisit(ctx, tracking.VisitRequest{
		Token:         req.Token,
		Code:          code,
		IP:            tracking.ClientIP(r.Header, r.RemoteAddr),
		UserAgent:     r.UserAgent(),
		ReferrerURL:   req.ReferrerURL,
		LandingURL:    req.LandingURL,
		VisitorUserID: middleware.UserID(c),
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
