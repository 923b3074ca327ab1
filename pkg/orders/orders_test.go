package orders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jordanlanch/directorist-affiliate/pkg/conversion"
	"github.com/jordanlanch/directorist-affiliate/pkg/domain"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

type call struct {
	method string
	order  conversion.OrderCreated
	args   []string
}

type fakeConverter struct {
	calls []call
	err   error
}

func (f *fakeConverter) OnOrderCreated(_ context.Context, o conversion.OrderCreated) (*conversion.Outcome, error) {
	f.calls = append(f.calls, call{method: "created", order: o})
	if f.err != nil {
		return nil, f.err
	}
	return &conversion.Outcome{Action: conversion.ActionCreated, ReferralID: "ref-1"}, nil
}

func (f *fakeConverter) OnOrderCompleted(_ context.Context, orderID string) (*conversion.Outcome, error) {
	f.calls = append(f.calls, call{method: "completed", args: []string{orderID}})
	if f.err != nil {
		return nil, f.err
	}
	return &conversion.Outcome{Action: conversion.ActionApproved}, nil
}

func (f *fakeConverter) OnOrderStatusChanged(_ context.Context, newStatus, oldStatus, orderID string) (*conversion.Outcome, error) {
	f.calls = append(f.calls, call{method: "status_changed", args: []string{newStatus, oldStatus, orderID}})
	if f.err != nil {
		return nil, f.err
	}
	return &conversion.Outcome{Action: conversion.ActionRejected}, nil
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		field string
	}{
		{"Success - Created", Event{Event: KindCreated, OrderID: "1", Amount: decimal.NewFromInt(10)}, ""},
		{"Success - Completed", Event{Event: KindCompleted, OrderID: "1"}, ""},
		{"Failure - Unknown kind", Event{Event: "paid", OrderID: "1"}, "event"},
		{"Failure - Missing order", Event{Event: KindCompleted}, "order_id"},
		{"Failure - Negative amount", Event{Event: KindCreated, OrderID: "1", Amount: decimal.NewFromInt(-1)}, "amount"},
		{"Failure - Status change without status", Event{Event: KindStatusChanged, OrderID: "1"}, "new_status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			de, ok := domain.AsDomainError(err)
			require.True(t, ok)
			assert.Contains(t, de.Fields, tt.field)
		})
	}
}

func TestDispatcher_Dispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Created carries the request IP", func(t *testing.T) {
		conv := &fakeConverter{}
		d := NewDispatcher(conv, nil)

		out, err := d.Dispatch(ctx, Event{
			Event:        KindCreated,
			OrderID:      "1042",
			PlanID:       "plan-3",
			Amount:       decimal.RequireFromString("49.00"),
			ReferralCode: "DSAABC12345",
		}, "198.51.100.4")
		require.NoError(t, err)

		assert.Equal(t, conversion.ActionCreated, out.Action)
		require.Len(t, conv.calls, 1)
		assert.Equal(t, "198.51.100.4", conv.calls[0].order.RequestIP)
		assert.Equal(t, "plan-3", conv.calls[0].order.PlanID)
	})

	t.Run("Success - Status change", func(t *testing.T) {
		conv := &fakeConverter{}
		d := NewDispatcher(conv, nil)

		_, err := d.Dispatch(ctx, Event{Event: KindStatusChanged, OrderID: "1042", NewStatus: "refunded", OldStatus: "completed"}, "")
		require.NoError(t, err)

		assert.Equal(t, []string{"refunded", "completed", "1042"}, conv.calls[0].args)
	})

	t.Run("Failure - Invalid event never reaches the engine", func(t *testing.T) {
		conv := &fakeConverter{}
		d := NewDispatcher(conv, nil)

		_, err := d.Dispatch(ctx, Event{Event: KindCreated}, "")
		assert.True(t, domain.IsValidation(err))
		assert.Empty(t, conv.calls)
	})

	t.Run("Failure - DispatchAll stops at the first error", func(t *testing.T) {
		conv := &fakeConverter{err: domain.NewInternalError(errors.New("db down"))}
		d := NewDispatcher(conv, nil)

		outs, err := d.DispatchAll(ctx, []Event{
			{Event: KindCreated, OrderID: "1"},
			{Event: KindCompleted, OrderID: "1"},
		})
		assert.Error(t, err)
		assert.Empty(t, outs)
		assert.Len(t, conv.calls, 1)
	})
}

const stripeSecret = "whsec_test_secret"

func signed(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": "2023-10-16",
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return payload, sp.Header
}

func TestParseStripe(t *testing.T) {
	t.Run("Success - Paid checkout creates and completes", func(t *testing.T) {
		payload, header := signed(t, "checkout.session.completed", map[string]any{
			"id":             "cs_test_1",
			"object":         "checkout.session",
			"payment_status": "paid",
			"amount_total":   4900,
			"currency":       "usd",
			"metadata": map[string]string{
				"order_id":         "1042",
				"plan_id":          "plan-3",
				"customer_user_id": "buyer-1",
				"referral_code":    "DSAABC12345",
			},
		})

		events, err := ParseStripe(payload, header, stripeSecret)
		require.NoError(t, err)

		require.Len(t, events, 2)
		assert.Equal(t, KindCreated, events[0].Event)
		assert.Equal(t, "1042", events[0].OrderID)
		assert.Equal(t, "49", events[0].Amount.String())
		assert.Equal(t, "DSAABC12345", events[0].ReferralCode)
		assert.Equal(t, Event{Event: KindCompleted, OrderID: "1042"}, events[1])
	})

	t.Run("Success - Unpaid checkout is ignored", func(t *testing.T) {
		payload, header := signed(t, "checkout.session.completed", map[string]any{
			"id":             "cs_test_2",
			"object":         "checkout.session",
			"payment_status": "unpaid",
		})

		events, err := ParseStripe(payload, header, stripeSecret)
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("Success - Expired session fails the order", func(t *testing.T) {
		payload, header := signed(t, "checkout.session.expired", map[string]any{
			"id":     "cs_test_3",
			"object": "checkout.session",
		})

		events, err := ParseStripe(payload, header, stripeSecret)
		require.NoError(t, err)
		assert.Equal(t, []Event{{Event: KindStatusChanged, OrderID: "cs_test_3", NewStatus: "failed"}}, events)
	})

	t.Run("Success - Refund", func(t *testing.T) {
		payload, header := signed(t, "charge.refunded", map[string]any{
			"id":       "ch_1",
			"object":   "charge",
			"metadata": map[string]string{"order_id": "1042"},
		})

		events, err := ParseStripe(payload, header, stripeSecret)
		require.NoError(t, err)
		assert.Equal(t, "refunded", events[0].NewStatus)
	})

	t.Run("Failure - Bad signature", func(t *testing.T) {
		payload, _ := signed(t, "charge.refunded", map[string]any{"id": "ch_1", "object": "charge"})

		_, err := ParseStripe(payload, "t=1,v1=deadbeef", stripeSecret)
		assert.True(t, domain.IsUnauthorized(err))
	})
}

type fakeReader struct {
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created, _ := json.Marshal(Event{Event: KindCreated, OrderID: "1042", Amount: decimal.NewFromInt(10)})
	reader := &fakeReader{
		cancel: cancel,
		messages: []kafka.Message{
			{Offset: 1, Value: created},
			{Offset: 2, Value: []byte("{not json")},
			{Offset: 3, Value: []byte(`{"event":"completed"}`)},
		},
	}
	conv := &fakeConverter{}
	consumer := NewConsumer(reader, NewDispatcher(conv, nil), nil)

	require.NoError(t, consumer.Run(ctx))

	assert.Equal(t, []int64{1, 2, 3}, reader.committed)
	require.Len(t, conv.calls, 1)
	assert.Equal(t, "1042", conv.calls[0].order.OrderID)
}
