package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4/middleware"
)

// DefaultAllowedOrigins are used when CORS_ALLOWED_ORIGINS is empty
var DefaultAllowedOrigins = []string{
	"http://localhost:3000", // Development (directory site)
	"http://localhost:8080", // Development (API)
}

// AllowedMethods are the methods exposed to browsers
var AllowedMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodDelete,
}

// AllowedHeaders are the request headers browsers may send
var AllowedHeaders = []string{
	"Origin",
	"Content-Type",
	"Accept",
	"Authorization",
}

// CORSConfig returns the CORS configuration used by the application.
// origins is the comma-separated CORS_ALLOWED_ORIGINS value.
func CORSConfig(origins string) middleware.CORSConfig {
	allowed := ParseOrigins(origins)
	if len(allowed) == 0 {
		allowed = DefaultAllowedOrigins
	}
	return middleware.CORSConfig{
		AllowOrigins:     allowed,
		AllowMethods:     AllowedMethods,
		AllowCredentials: true,
		AllowHeaders:     AllowedHeaders,
	}
}

// ParseOrigins splits a comma-separated origin list
func ParseOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimSuffix(o, "/"))
		}
	}
	return out
}
