package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/jordanlanch/directorist-affiliate/pkg/orders"
	"github.com/jordanlanch/directorist-affiliate/pkg/tracking"
	"github.com/labstack/echo/v4"
)

const (
	// WebhookSecretHeader carries the shared order webhook secret
	WebhookSecretHeader = "X-Webhook-Secret"

	maxWebhookBody = 64 << 10
)

// WebhookHandler receives order events
type WebhookHandler struct {
	dispatcher   *orders.Dispatcher
	tracking     *tracking.Service
	secret       string
	stripeSecret string
	logger       logger.Logger
}

// NewWebhookHandler creates a new webhook handler. An empty secret disables the endpoint.
func NewWebhookHandler(dispatcher *orders.Dispatcher, trackingSvc *tracking.Service, secret, stripeSecret string, log logger.Logger) *WebhookHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &WebhookHandler{
		dispatcher:   dispatcher,
		tracking:     trackingSvc,
		secret:       secret,
		stripeSecret: stripeSecret,
		logger:       log.With("component", "webhooks"),
	}
}

// Orders godoc
// @Summary Receive an order event
// @Description The attribution cookie on the request wins over the referral_code field
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body orders.Event true "Order event"
// @Success 200 {object} conversion.Outcome
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/webhooks/orders [post]
func (h *WebhookHandler) Orders(c echo.Context) error {
	given := c.Request().Header.Get(WebhookSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		return respond(c, domain.NewUnauthorizedError("Invalid webhook secret"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var e orders.Event
	if err := json.NewDecoder(io.LimitReader(c.Request().Body, maxWebhookBody)).Decode(&e); err != nil {
		return respond(c, domain.NewValidationError("Invalid request body."))
	}
	if cookie, err := c.Cookie(h.tracking.Config().JSCookieName()); err == nil && cookie.Value != "" {
		e.ReferralCode = cookie.Value
	}

	r := c.Request()
	out, err := h.dispatcher.Dispatch(ctx, e, tracking.ClientIP(r.Header, r.RemoteAddr))
	if err != nil {
		return respond(c, err)
	}

	if out.ExpireAttribution {
		for _, cookie := range h.tracking.ClearCookies(c.Scheme() == "https") {
			c.SetCookie(cookie)
		}
	}
	return c.JSON(http.StatusOK, out)
}

// Stripe godoc
// @Summary Receive a Stripe webhook
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c echo.Context) error {
	if h.stripeSecret == "" {
		return respond(c, domain.NewUnauthorizedError("Stripe webhooks are not configured"))
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return respond(c, domain.NewValidationError("Invalid request body."))
	}

	events, err := orders.ParseStripe(payload, c.Request().Header.Get("Stripe-Signature"), h.stripeSecret)
	if err != nil {
		h.logger.Warn("rejected stripe webhook", "error", err)
		return respond(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	outcomes, err := h.dispatcher.DispatchAll(ctx, events)
	if err != nil {
		return respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"received": true,
		"outcomes": outcomes,
	})
}
