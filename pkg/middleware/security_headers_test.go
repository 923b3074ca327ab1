package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(cfg SecurityHeadersConfig, next echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, SecurityHeaders(cfg)(next)(c)
}

func ok(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func TestSecurityHeaders_DefaultHeaders(t *testing.T) {
	rec, err := serveWithHeaders(SecurityHeadersConfig{}, ok)
	assert.NoError(t, err)

	csp := rec.Header().Get("Content-Security-Policy")
	assert.Contains(t, csp, "default-src 'none'")
	assert.Contains(t, csp, "frame-ancestors 'none'")
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Contains(t, rec.Header().Get("Permissions-Policy"), "payment=()")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestSecurityHeaders_Custom(t *testing.T) {
	rec, err := serveWithHeaders(SecurityHeadersConfig{ReferrerPolicy: "no-referrer"}, ok)
	assert.NoError(t, err)

	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Permissions-Policy"))
}

func TestSecurityHeaders_HandlerError(t *testing.T) {
	rec, err := serveWithHeaders(SecurityHeadersConfig{}, func(c echo.Context) error {
		return echo.ErrInternalServerError
	})

	assert.Error(t, err)
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}
