package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutStatus is the processing state of a payout batch
type PayoutStatus string

// Payout statuses
const (
	PayoutStatusRequested  PayoutStatus = "requested"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusCompleted  PayoutStatus = "completed"
	PayoutStatusFailed     PayoutStatus = "failed"
)

// Valid reports whether s is a known payout status
func (s PayoutStatus) Valid() bool {
	switch s {
	case PayoutStatusRequested, PayoutStatusProcessing, PayoutStatusCompleted, PayoutStatusFailed:
		return true
	}
	return false
}

// Payout is a disbursement batch against approved commissions
type Payout struct {
	ID            string          `json:"id"`
	AffiliateID   string          `json:"affiliate_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        PayoutStatus    `json:"status"`
	RequestedAt   time.Time       `json:"requested_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}
