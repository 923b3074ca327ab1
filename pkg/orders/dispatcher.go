package orders

import (
	"context"

	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
)

// Converter is the conversion engine as seen by the adapters
type Converter interface {
	OnOrderCreated(ctx context.Context, o conversion.OrderCreated) (*conversion.Outcome, error)
	OnOrderCompleted(ctx context.Context, orderID string) (*conversion.Outcome, error)
	OnOrderStatusChanged(ctx context.Context, newStatus, oldStatus, orderID string) (*conversion.Outcome, error)
}

// Dispatcher routes order events to the conversion engine
type Dispatcher struct {
	conv   Converter
	logger logger.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(conv Converter, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{conv: conv, logger: log.With("component", "orders")}
}

// Dispatch validates e and applies it. requestIP is the address the event arrived from
// when it was posted on behalf of the buyer, else empty.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event, requestIP string) (*conversion.Outcome, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	var (
		out *conversion.Outcome
		err error
	)
	switch e.Event {
	case KindCreated:
		out, err = d.conv.OnOrderCreated(ctx, conversion.OrderCreated{
			OrderID:        e.OrderID,
			ListingID:      e.ListingID,
			PlanID:         e.PlanID,
			Amount:         e.Amount,
			CustomerUserID: e.CustomerUserID,
			CustomerIP:     e.CustomerIP,
			ReferralCode:   e.ReferralCode,
			RequestIP:      requestIP,
		})
	case KindCompleted:
		out, err = d.conv.OnOrderCompleted(ctx, e.OrderID)
	case KindStatusChanged:
		out, err = d.conv.OnOrderStatusChanged(ctx, e.NewStatus, e.OldStatus, e.OrderID)
	}
	if err != nil {
		d.logger.Error("order event failed", "event", string(e.Event), "order_id", e.OrderID, "error", err)
		return nil, err
	}

	d.logger.Debug("order event applied", "event", string(e.Event), "order_id", e.OrderID,
		"action", string(out.Action), "reason", out.Reason)
	return out, nil
}

// DispatchAll applies events in order and stops at the first error
func (d *Dispatcher) DispatchAll(ctx context.Context, events []Event) ([]*conversion.Outcome, error) {
	outcomes := make([]*conversion.Outcome, 0, len(events))
	for _, e := range events {
		out, err := d.Dispatch(ctx, e, "")
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
