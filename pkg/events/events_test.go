package events

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jordanlanch/directorist-affiliate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("Success - Subscribers run in registration order", func(t *testing.T) {
		bus := NewBus(logger.Nop())
		var order []string
		bus.SubscribeFunc(func(_ context.Context, e Event) error {
			order = append(order, "first:"+string(e.Type))
			return nil
		})
		bus.SubscribeFunc(func(_ context.Context, e Event) error {
			order = append(order, "second:"+string(e.Type))
			return nil
		})

		bus.Publish(ctx, Event{Type: ReferralCreated})

		assert.Equal(t, []string{"first:referral.created", "second:referral.created"}, order)
	})

	t.Run("Success - Kind filter", func(t *testing.T) {
		bus := NewBus(logger.Nop())
		var got []Type
		bus.SubscribeFunc(func(_ context.Context, e Event) error {
			got = append(got, e.Type)
			return nil
		}, ReferralApproved)

		bus.Publish(ctx, Event{Type: ReferralCreated})
		bus.Publish(ctx, Event{Type: ReferralApproved})

		assert.Equal(t, []Type{ReferralApproved}, got)
	})

	t.Run("Success - Errors and panics are swallowed", func(t *testing.T) {
		var buf bytes.Buffer
		bus := NewBus(logger.NewWithWriter(&buf, "debug", "json"))
		delivered := false
		bus.SubscribeFunc(func(context.Context, Event) error { return errors.New("smtp down") })
		bus.SubscribeFunc(func(context.Context, Event) error { panic("boom") })
		bus.SubscribeFunc(func(context.Context, Event) error {
			delivered = true
			return nil
		})

		require.NotPanics(t, func() { bus.Publish(ctx, Event{Type: VisitRecorded}) })

		assert.True(t, delivered)
		assert.Contains(t, buf.String(), "smtp down")
		assert.Contains(t, buf.String(), "subscriber panic: boom")
	})

	t.Run("Success - ID and time are stamped", func(t *testing.T) {
		bus := NewBus(nil)
		var got Event
		bus.SubscribeFunc(func(_ context.Context, e Event) error {
			got = e
			return nil
		})

		bus.Publish(ctx, Event{Type: PayoutRequested})

		assert.NotEmpty(t, got.ID)
		assert.False(t, got.OccurredAt.IsZero())
	})
}

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	rec.Publish(ctx, Event{Type: ReferralCreated})
	rec.Publish(ctx, Event{Type: ReferralApproved})

	assert.Equal(t, []Type{ReferralCreated, ReferralApproved}, rec.Types())
	assert.Len(t, rec.Events(), 2)

	rec.Reset()
	assert.Empty(t, rec.Events())
}
