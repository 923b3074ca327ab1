package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus is the commission state of a referral
type ReferralStatus string

// Referral statuses
const (
	ReferralStatusPending  ReferralStatus = "pending"
	ReferralStatusApproved ReferralStatus = "approved"
	ReferralStatusRejected ReferralStatus = "rejected"
	ReferralStatusPaid     ReferralStatus = "paid"
)

// Valid reports whether s is a known referral status
func (s ReferralStatus) Valid() bool {
	switch s {
	case ReferralStatusPending, ReferralStatusApproved, ReferralStatusRejected, ReferralStatusPaid:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s
func (s ReferralStatus) Terminal() bool {
	return s == ReferralStatusPaid || s == ReferralStatusRejected
}

// Referral is the commission record for one attributed order
type Referral struct {
	ID               string          `json:"id"`
	AffiliateID      string          `json:"affiliate_id"`
	CodeID           string          `json:"code_id,omitempty"`
	OrderID          string          `json:"order_id"`
	CustomerUserID   string          `json:"customer_user_id,omitempty"`
	ProductID        string          `json:"product_id,omitempty"`
	OrderAmount      decimal.Decimal `json:"order_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	Status           ReferralStatus  `json:"status"`
	PayoutID         string          `json:"payout_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
}
