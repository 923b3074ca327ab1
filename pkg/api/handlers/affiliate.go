package handlers

import (
	"net/http"

	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/api/middleware"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/models"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/labstack/echo/v4"
)

// AffiliateHandler serves the affiliate's own account
type AffiliateHandler struct {
	affiliates *affiliate.Service
	payouts    *payout.Service
}

// NewAffiliateHandler creates a new affiliate handler
func NewAffiliateHandler(affiliates *affiliate.Service, payouts *payout.Service) *AffiliateHandler {
	return &AffiliateHandler{affiliates: affiliates, payouts: payouts}
}

// Register godoc
// @Summary Apply to the affiliate program
// @Tags Affiliate
// @Accept json
// @Produce json
// @Param request body affiliate.RegistrationInput true "Application"
// @Success 201 {object} domain.Affiliate
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/affiliate/register [post]
func (h *AffiliateHandler) Register(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var in affiliate.RegistrationInput
	if err := c.Bind(&in); err != nil {
		return respond(c, domain.NewValidationError("Invalid request body."))
	}

	aff, err := h.affiliates.Register(ctx, middleware.UserID(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, aff)
}

// Me godoc
// @Summary Get the affiliate dashboard
// @Tags Affiliate
// @Produce json
// @Success 200 {object} affiliate.Dashboard
// @Failure 403 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/affiliate/me [get]
func (h *AffiliateHandler) Me(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	d, err := h.affiliates.Dashboard(ctx, middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// UpdateSettings updates payment details and profile fields
func (h *AffiliateHandler) UpdateSettings(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var in affiliate.SettingsInput
	if err := c.Bind(&in); err != nil {
		return respond(c, domain.NewValidationError("Invalid request body."))
	}

	aff, err := h.affiliates.UpdateSettings(ctx, middleware.UserID(c), in)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, aff)
}

// ListCodes returns the affiliate's codes
func (h *AffiliateHandler) ListCodes(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	codes, err := h.affiliates.ListCodes(ctx, middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"codes": codes})
}

// GenerateCode godoc
// @Summary Create a custom or campaign code
// @Tags Affiliate
// @Accept json
// @Produce json
// @Param request body models.GenerateCodeRequest true "Code"
// @Success 201 {object} domain.AffiliateCode
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/affiliate/codes [post]
func (h *AffiliateHandler) GenerateCode(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.GenerateCodeRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}

	code, err := h.affiliates.GenerateCode(ctx, middleware.UserID(c), affiliate.GenerateCodeInput{
		Code:         req.Code,
		Type:         domain.CodeType(req.Type),
		CampaignName: req.CampaignName,
		Description:  req.Description,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		return respond(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code":          code,
		"affiliate_url": h.affiliates.AffiliateURL(code.Code, ""),
	})
}

// DeleteCode removes one of the affiliate's non-default codes
func (h *AffiliateHandler) DeleteCode(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.affiliates.DeleteCode(ctx, middleware.UserID(c), c.Param("id")); err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Code deleted successfully."})
}

// ListReferrals returns the affiliate's referrals, optionally by status
func (h *AffiliateHandler) ListReferrals(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, limit := paging(c)
	referrals, total, err := h.affiliates.ListReferrals(ctx, middleware.UserID(c), domain.ReferralStatus(c.QueryParam("status")), page, limit)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, models.PaginatedResponse{Data: referrals, Total: total, Page: page, Limit: limit})
}

// ListPayouts returns the affiliate's payouts
func (h *AffiliateHandler) ListPayouts(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, limit := paging(c)
	payouts, err := h.payouts.ListForAffiliate(ctx, middleware.UserID(c), limit, (page-1)*limit)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"payouts": payouts, "page": page, "limit": limit})
}

// RequestPayout godoc
// @Summary Request a payout of approved commissions
// @Tags Affiliate
// @Produce json
// @Success 201 {object} domain.Payout
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/affiliate/payouts [post]
func (h *AffiliateHandler) RequestPayout(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	p, err := h.payouts.Request(ctx, middleware.UserID(c))
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}
