package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/events"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Business metrics
	Visits           *prometheus.CounterVec
	Referrals        *prometheus.CounterVec
	CommissionAmount prometheus.Counter
	Registrations    prometheus.Counter
	PayoutsRequested prometheus.Counter

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a Metrics instance registered with the default registerer
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a Metrics instance registered with reg
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Business metrics
		Visits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiliate_visits_total",
				Help: "Tracked visit attempts by outcome",
			},
			[]string{"outcome"}, // recorded, duplicate, invalid, self_referral, rate_limited
		),
		Referrals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "affiliate_referrals_total",
				Help: "Referral status transitions",
			},
			[]string{"status"}, // pending, approved, rejected
		),
		CommissionAmount: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_commission_amount_total",
			Help: "Sum of commissions on approved referrals",
		}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_registrations_total",
			Help: "Total number of affiliate applications",
		}),
		PayoutsRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "affiliate_payouts_requested_total",
			Help: "Total number of payout requests",
		}),

		// Cache metrics
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/admin/payouts/:id/status

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// VisitOutcome counts a tracked visit attempt
func (m *Metrics) VisitOutcome(outcome string) {
	m.Visits.WithLabelValues(outcome).Inc()
}

// Handle implements events.Handler
func (m *Metrics) Handle(_ context.Context, e events.Event) error {
	switch e.Type {
	case events.AffiliateRegistered:
		m.Registrations.Inc()
	case events.ReferralCreated:
		m.Referrals.WithLabelValues("pending").Inc()
	case events.ReferralApproved:
		m.Referrals.WithLabelValues("approved").Inc()
		if e.Referral != nil {
			m.CommissionAmount.Add(e.Referral.CommissionAmount.InexactFloat64())
		}
	case events.ReferralRejected:
		m.Referrals.WithLabelValues("rejected").Inc()
	case events.PayoutRequested:
		m.PayoutsRequested.Inc()
	}
	return nil
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
