package events

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus(nil)

	var received *Event
	var callCount int

	bus.Subscribe(EventSignalPublished, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventSignalPublished, SignalPublishedPayload{SignalID: 7, Symbol: "BTCUSDT"})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventSignalPublished, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded SignalPublishedPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, int64(7), decoded.SignalID)
	assert.Equal(t, "BTCUSDT", decoded.Symbol)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.Subscribe("other", func(_ *Event) error { t.Fatal("wrong subscriber"); return nil })

	bus.Publish(&Event{Type: "event"})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestEventBusHandlerErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := NewEventBus(&logger)

	var second bool
	bus.Subscribe("event", func(_ *Event) error { return errors.New("queue full") })
	bus.Subscribe("event", func(_ *Event) error { second = true; return nil })

	bus.Publish(&Event{Type: "event"})

	assert.True(t, second)
	assert.Contains(t, buf.String(), "queue full")
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	assert.NotPanics(t, func() { bus.Publish(&Event{Type: "unknown"}) })
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventPaymentReceived, PaymentReceivedPayload{}))
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventSubscriptionExpired, SubscriptionExpiredPayload{UserID: 123})
	require.NoError(t, err)

	assert.Equal(t, EventSubscriptionExpired, event.Type)
	assert.False(t, event.CreatedAt.IsZero())

	var decoded SubscriptionExpiredPayload
	require.NoError(t, event.Decode(&decoded))
	assert.Equal(t, int64(123), decoded.UserID)

	_, err = NewJSONEvent("bad", make(chan int))
	assert.Error(t, err)
}
