// Package events is the in-process observer bus that replaces ambient hooks.
// Engines publish after their writes commit; subscribers (notifications, metrics)
// are registered explicitly at startup.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
)

// Type names an event kind
type Type string

// Event kinds
const (
	AffiliateRegistered    Type = "affiliate.registered"
	AffiliateStatusChanged Type = "affiliate.status_changed"
	VisitRecorded          Type = "visit.recorded"
	ReferralCreated        Type = "referral.created"
	ReferralApproved       Type = "referral.approved"
	ReferralRejected       Type = "referral.rejected"
	PayoutRequested        Type = "payout.requested"
	PayoutStatusChanged    Type = "payout.status_changed"
)

// Event is one published fact. Only the fields relevant to Type are set.
type Event struct {
	ID         string
	Type       Type
	OccurredAt time.Time

	Affiliate *domain.Affiliate
	Code      *domain.AffiliateCode
	Visit     *domain.Visit
	Referral  *domain.Referral
	Payout    *domain.Payout

	// PreviousStatus is the status before a status change
	PreviousStatus string
	// Reason is the admin reason or the triggering order status
	Reason string
}

// Publisher is what engines depend on
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Handler receives published events
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, e Event) error

// Handle calls f(ctx, e)
func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Bus delivers events synchronously to subscribers in registration order.
// Subscriber errors and panics are logged and swallowed.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	logger   logger.Logger
	now      domain.Clock
}

// NewBus creates an empty bus
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	return &Bus{logger: log, now: time.Now}
}

// Subscribe registers h for every event kind
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// SubscribeFunc registers f for the given kinds only (all kinds when none are given)
func (b *Bus) SubscribeFunc(f func(ctx context.Context, e Event) error, kinds ...Type) {
	if len(kinds) == 0 {
		b.Subscribe(HandlerFunc(f))
		return
	}
	want := make(map[Type]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	b.Subscribe(HandlerFunc(func(ctx context.Context, e Event) error {
		if !want[e.Type] {
			return nil
		}
		return f(ctx, e)
	}))
}

// Publish delivers e to every subscriber
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := b.deliver(ctx, h, e); err != nil {
			b.logger.Warn("event subscriber failed",
				"event_type", string(e.Type),
				"event_id", e.ID,
				"error", err,
			)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return h.Handle(ctx, e)
}

// Discard drops every event
type Discard struct{}

// Publish does nothing
func (Discard) Publish(context.Context, Event) {}

// Recorder keeps every published event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish records e
func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event kinds in publish order
func (r *Recorder) Types() []Type {
	events := r.Events()
	types := make([]Type, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

// Reset drops everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
