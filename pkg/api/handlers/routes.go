package handlers

import (
	"github.com/jordanlanch/directorist-affiliate/pkg/api/middleware"
	"github.com/labstack/echo/v4"
)

// Router holds the handlers mounted on the API
type Router struct {
	JWTSecret string
	Tracking  *TrackingHandler
	Affiliate *AffiliateHandler
	Admin     *AdminHandler
	Webhooks  *WebhookHandler
	Health    *HealthHandler
	// API wraps every /api/v1 route, e.g. the per-IP limiter
	API []echo.MiddlewareFunc
}

// Register mounts all routes on e
func (r *Router) Register(e *echo.Echo) {
	if r.Health != nil {
		e.GET("/health", r.Health.Health)
	}

	v1 := e.Group("/api/v1", r.API...)

	track := v1.Group("/track")
	track.GET("/token", r.Tracking.Token)
	track.POST("/visit", r.Tracking.RecordVisit, middleware.OptionalJWT(r.JWTSecret))

	aff := v1.Group("/affiliate", middleware.JWTMiddleware(r.JWTSecret))
	aff.POST("/register", r.Affiliate.Register)
	aff.GET("/me", r.Affiliate.Me)
	aff.PUT("/settings", r.Affiliate.UpdateSettings)
	aff.GET("/codes", r.Affiliate.ListCodes)
	aff.POST("/codes", r.Affiliate.GenerateCode)
	aff.DELETE("/codes/:id", r.Affiliate.DeleteCode)
	aff.GET("/referrals", r.Affiliate.ListReferrals)
	aff.GET("/payouts", r.Affiliate.ListPayouts)
	aff.POST("/payouts", r.Affiliate.RequestPayout)

	admin := v1.Group("/admin", middleware.JWTMiddleware(r.JWTSecret), middleware.RequireAdmin())
	admin.GET("/affiliates", r.Admin.ListAffiliates)
	admin.GET("/overview", r.Admin.Overview)
	admin.POST("/affiliates/:user_id/status", r.Admin.ChangeStatus)
	admin.PUT("/affiliates/:user_id/commission-rate", r.Admin.SetCommissionRate)
	admin.DELETE("/affiliates/:user_id", r.Admin.Remove)
	admin.GET("/referrals", r.Admin.ListReferrals)
	admin.GET("/referrals/export", r.Admin.ExportReferrals)
	admin.GET("/payouts", r.Admin.ListPayouts)
	admin.PUT("/payouts/:id/status", r.Admin.UpdatePayoutStatus)

	hooks := v1.Group("/webhooks")
	hooks.POST("/orders", r.Webhooks.Orders)
	hooks.POST("/stripe", r.Webhooks.Stripe)
}
