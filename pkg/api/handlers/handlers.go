package handlers

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/jordanlanch/directorist-affiliate/pkg/api/errors"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/labstack/echo/v4"
)

const (
	requestTimeout = 10 * time.Second
	defaultLimit   = 20
	maxLimit       = 100
)

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind decodes and validates the request body into req
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return domain.NewValidationError("Invalid request body.")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = "failed on " + fe.Tag()
			}
			return domain.NewFieldValidationError(fields)
		}
		return domain.NewValidationError("Invalid request body.")
	}
	return nil
}

// paging reads page and limit query parameters
func paging(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func respond(c echo.Context, err error) error {
	return apierrors.Respond(c, err)
}
