package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/jordanlanch/directorist-affiliate/pkg/affiliate"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/export"
	"github.com/jordanlanch/directorist-affiliate/pkg/models"
	"github.com/jordanlanch/directorist-affiliate/pkg/payout"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// AdminHandler serves program administration
type AdminHandler struct {
	affiliates *affiliate.Service
	payouts    *payout.Service
	exports    *export.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(affiliates *affiliate.Service, payouts *payout.Service, exports *export.Service) *AdminHandler {
	return &AdminHandler{affiliates: affiliates, payouts: payouts, exports: exports}
}

// ListAffiliates godoc
// @Summary List affiliates
// @Tags Admin
// @Produce json
// @Param status query string false "Status filter"
// @Param page query int false "Page number"
// @Param limit query int false "Items per page"
// @Success 200 {object} models.PaginatedResponse
// @Security BearerAuth
// @Router /api/v1/admin/affiliates [get]
func (h *AdminHandler) ListAffiliates(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, limit := paging(c)
	affiliates, total, err := h.affiliates.List(ctx, domain.AffiliateStatus(c.QueryParam("status")), page, limit)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, models.PaginatedResponse{Data: affiliates, Total: total, Page: page, Limit: limit})
}

// Overview returns program counts
func (h *AdminHandler) Overview(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	o, err := h.affiliates.Overview(ctx)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, o)
}

// ChangeStatus godoc
// @Summary Approve, reject or suspend an affiliate
// @Tags Admin
// @Accept json
// @Produce json
// @Param user_id path string true "User ID"
// @Param request body models.StatusChangeRequest true "Status"
// @Success 200 {object} domain.Affiliate
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/affiliates/{user_id}/status [post]
func (h *AdminHandler) ChangeStatus(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.StatusChangeRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}

	aff, err := h.affiliates.UpdateStatus(ctx, c.Param("user_id"), domain.AffiliateStatus(req.Status), req.Reason)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, aff)
}

// SetCommissionRate sets or clears the affiliate's own rate
func (h *AdminHandler) SetCommissionRate(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.CommissionRateRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}

	var rate *decimal.Decimal
	if req.Rate != nil {
		r := decimal.NewFromFloat(*req.Rate).Round(2)
		rate = &r
	}

	aff, err := h.affiliates.SetCommissionRate(ctx, c.Param("user_id"), rate)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, aff)
}

// Remove archives the affiliate, or deletes it with its codes when purge=true
func (h *AdminHandler) Remove(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	purge, _ := strconv.ParseBool(c.QueryParam("purge"))
	if err := h.affiliates.Remove(ctx, c.Param("user_id"), purge); err != nil {
		return respond(c, err)
	}

	msg := "Affiliate archived successfully."
	if purge {
		msg = "Affiliate deleted successfully."
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: msg})
}

// ListReferrals returns all referrals, optionally by status
func (h *AdminHandler) ListReferrals(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, limit := paging(c)
	referrals, total, err := h.affiliates.AllReferrals(ctx, domain.ReferralStatus(c.QueryParam("status")), page, limit)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, models.PaginatedResponse{Data: referrals, Total: total, Page: page, Limit: limit})
}

// ExportReferrals godoc
// @Summary Export referrals to Excel
// @Tags Admin
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param status query string false "Status filter"
// @Success 200 {file} binary
// @Security BearerAuth
// @Router /api/v1/admin/referrals/export [get]
func (h *AdminHandler) ExportReferrals(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	report, err := h.exports.Referrals(ctx, domain.ReferralStatus(c.QueryParam("status")))
	if err != nil {
		return respond(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.Filename))
	return c.Blob(http.StatusOK, export.ContentType, report.Content)
}

// ListPayouts returns payouts, optionally by status
func (h *AdminHandler) ListPayouts(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	page, limit := paging(c)
	status := domain.PayoutStatus(c.QueryParam("status"))
	payouts, err := h.payouts.List(ctx, status, limit, (page-1)*limit)
	if err != nil {
		return respond(c, err)
	}
	total, err := h.payouts.Count(ctx, status)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, models.PaginatedResponse{Data: payouts, Total: total, Page: page, Limit: limit})
}

// UpdatePayoutStatus godoc
// @Summary Move a payout forward
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Payout ID"
// @Param request body models.PayoutStatusRequest true "Status"
// @Success 200 {object} domain.Payout
// @Failure 409 {object} models.ErrorResponse
// @Failure 422 {object} models.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/admin/payouts/{id}/status [put]
func (h *AdminHandler) UpdatePayoutStatus(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	var req models.PayoutStatusRequest
	if err := bind(c, &req); err != nil {
		return respond(c, err)
	}

	p, err := h.payouts.UpdateStatus(ctx, c.Param("id"), payout.StatusInput{
		Status:        domain.PayoutStatus(req.Status),
		TransactionID: req.TransactionID,
		Notes:         req.Notes,
	})
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
