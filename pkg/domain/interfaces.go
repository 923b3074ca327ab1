package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRateResolver looks up a product-specific commission rate.
// A zero rate means no override.
type ProductRateResolver interface {
	ProductRate(ctx context.Context, productID string) (decimal.Decimal, error)
}

// CodeFinder resolves a referral code string to its record
type CodeFinder interface {
	GetByCode(ctx context.Context, code string) (*AffiliateCode, error)
}

// CodeInvalidator drops cached code lookups after a code changes
type CodeInvalidator interface {
	Invalidate(ctx context.Context, codes ...string) error
}

// Clock returns the current time. Services take one so tests can pin time.
type Clock func() time.Time
