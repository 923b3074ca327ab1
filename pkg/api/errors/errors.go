package errors

import (
	"log"
	"net/http"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/models"
	"github.com/labstack/echo/v4"
)

// Respond writes the JSON error matching a domain error. Messages of expected
// failures are user-facing; internal errors are logged and replaced by a generic message.
func Respond(c echo.Context, err error) error {
	de, ok := domain.AsDomainError(err)
	if !ok {
		return InternalError(c, err)
	}

	switch de.Code {
	case domain.ErrCodeValidation:
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: de.Message,
			Fields:  de.Fields,
		})
	case domain.ErrCodePolicyRejected:
		return c.JSON(http.StatusUnprocessableEntity, models.ErrorResponse{
			Error:   "policy_rejected",
			Message: de.Message,
		})
	case domain.ErrCodeRateLimited:
		return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error:   "rate_limited",
			Message: de.Message,
		})
	case domain.ErrCodeConflict:
		return ConflictError(c, de.Message)
	case domain.ErrCodeNotFound:
		return NotFoundError(c, de.Message)
	case domain.ErrCodeForbidden:
		return c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "forbidden",
			Message: de.Message,
		})
	case domain.ErrCodeUnauthorized:
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: de.Message,
		})
	default:
		return InternalError(c, err)
	}
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError returns a conflict error. The message is safe to expose.
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}
