package orders

import (
	"encoding/json"

	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Metadata keys read from Stripe objects
const (
	MetaOrderID        = "order_id"
	MetaListingID      = "listing_id"
	MetaPlanID         = "plan_id"
	MetaCustomerUserID = "customer_user_id"
	MetaCustomerIP     = "customer_ip"
	MetaReferralCode   = "referral_code"
)

// ErrInvalidSignature rejects unsigned or tampered Stripe payloads
var ErrInvalidSignature = domain.NewUnauthorizedError("Invalid Stripe signature")

// ParseStripe verifies a Stripe webhook and translates it into order events.
// Event types that do not concern orders yield no events.
func ParseStripe(payload []byte, signature, secret string) ([]Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return FromStripe(event)
}

// FromStripe translates a verified Stripe event
func FromStripe(event stripe.Event) ([]Event, error) {
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, domain.NewValidationError("Malformed checkout session.")
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			return nil, nil
		}
		created := sessionEvent(&sess)
		created.Event = KindCreated
		return []Event{created, {Event: KindCompleted, OrderID: created.OrderID}}, nil

	case "checkout.session.async_payment_failed", "checkout.session.expired":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, domain.NewValidationError("Malformed checkout session.")
		}
		orderID := orderIDOf(sess.Metadata, sess.ID)
		return []Event{{Event: KindStatusChanged, OrderID: orderID, NewStatus: "failed"}}, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, domain.NewValidationError("Malformed charge.")
		}
		orderID := ch.Metadata[MetaOrderID]
		if orderID == "" {
			return nil, nil
		}
		return []Event{{Event: KindStatusChanged, OrderID: orderID, NewStatus: "refunded"}}, nil
	}
	return nil, nil
}

func sessionEvent(sess *stripe.CheckoutSession) Event {
	md := sess.Metadata
	return Event{
		OrderID:        orderIDOf(md, sess.ID),
		ListingID:      md[MetaListingID],
		PlanID:         md[MetaPlanID],
		Amount:         minorUnits(sess.AmountTotal, sess.Currency),
		CustomerUserID: md[MetaCustomerUserID],
		CustomerIP:     md[MetaCustomerIP],
		ReferralCode:   md[MetaReferralCode],
	}
}

func orderIDOf(md map[string]string, fallback string) string {
	if id := md[MetaOrderID]; id != "" {
		return id
	}
	return fallback
}

// zero-decimal currencies are charged in whole units
var zeroDecimal = map[stripe.Currency]bool{
	stripe.CurrencyJPY: true,
	stripe.CurrencyKRW: true,
	stripe.CurrencyVND: true,
	stripe.CurrencyCLP: true,
}

func minorUnits(amount int64, currency stripe.Currency) decimal.Decimal {
	if zeroDecimal[currency] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
