// Package orders adapts order events from webhooks, Stripe and Kafka to the conversion engine.
package orders

import (
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
)

// Kind is the lifecycle step of an order event
type Kind string

// Kinds
const (
	KindCreated       Kind = "created"
	KindCompleted     Kind = "completed"
	KindStatusChanged Kind = "status_changed"
)

// Event is an order lifecycle event from any source
type Event struct {
	Event          Kind            `json:"event"`
	OrderID        string          `json:"order_id"`
	ListingID      string          `json:"listing_id,omitempty"`
	PlanID         string          `json:"plan_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	CustomerUserID string          `json:"customer_user_id,omitempty"`
	CustomerIP     string          `json:"customer_ip,omitempty"`
	ReferralCode   string          `json:"referral_code,omitempty"`
	NewStatus      string          `json:"new_status,omitempty"`
	OldStatus      string          `json:"old_status,omitempty"`
}

// Validate checks the fields required by the event kind
func (e Event) Validate() error {
	fields := map[string]string{}

	switch e.Event {
	case KindCreated:
		if e.Amount.IsNegative() {
			fields["amount"] = "must not be negative"
		}
	case KindCompleted:
	case KindStatusChanged:
		if e.NewStatus == "" {
			fields["new_status"] = "is required"
		}
	default:
		fields["event"] = "must be one of created, completed, status_changed"
	}
	if e.OrderID == "" {
		fields["order_id"] = "is required"
	}

	if len(fields) > 0 {
		return domain.NewFieldValidationError(fields)
	}
	return nil
}
