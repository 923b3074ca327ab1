package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AffiliateStatus is the lifecycle status of an affiliate account
type AffiliateStatus string

// Affiliate statuses
const (
	AffiliateStatusPending   AffiliateStatus = "pending"
	AffiliateStatusActive    AffiliateStatus = "active"
	AffiliateStatusSuspended AffiliateStatus = "suspended"
	AffiliateStatusRejected  AffiliateStatus = "rejected"
	AffiliateStatusArchived  AffiliateStatus = "archived"
)

// Valid reports whether s is a known affiliate status
func (s AffiliateStatus) Valid() bool {
	switch s {
	case AffiliateStatusPending, AffiliateStatusActive, AffiliateStatusSuspended,
		AffiliateStatusRejected, AffiliateStatusArchived:
		return true
	}
	return false
}

// PaymentMethod is how an affiliate wants to be paid
type PaymentMethod string

// Payment methods
const (
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Affiliate is one participating user of the program
type Affiliate struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	AffiliateCode   string              `json:"affiliate_code"`
	Status          AffiliateStatus     `json:"status"`
	Email           string              `json:"email"`
	DisplayName     string              `json:"display_name"`
	PaymentEmail    string              `json:"payment_email,omitempty"`
	PaymentMethod   PaymentMethod       `json:"payment_method,omitempty"`
	PayPalEmail     string              `json:"paypal_email,omitempty"`
	BankDetails     string              `json:"bank_details,omitempty"`
	Website         string              `json:"website,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	PromotionMethod string              `json:"promotion_method,omitempty"`
	StatusReason    string              `json:"status_reason,omitempty"`
	CommissionRate  decimal.NullDecimal `json:"commission_rate"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// IsActive reports whether the affiliate may earn commissions
func (a *Affiliate) IsActive() bool {
	return a.Status == AffiliateStatusActive
}
