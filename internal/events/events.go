package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventSignalPublished       = "signal_published"
	EventSubscriptionExpired   = "subscription_expired"
	EventSubscriptionActivated = "subscription_activated"
	EventPaymentReceived       = "payment_received"
)

// SignalPublishedPayload is emitted after a signal is committed.
type SignalPublishedPayload struct {
	SignalID  int64     `json:"signal_id"`
	Market    string    `json:"market"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"tf"`
	Direction string    `json:"direction"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type SubscriptionExpiredPayload struct {
	UserID         int64     `json:"user_id"`
	SubscriptionID int64     `json:"subscription_id"`
	ExpiredAt      time.Time `json:"expired_at"`
}

type SubscriptionActivatedPayload struct {
	UserID         int64      `json:"user_id"`
	SubscriptionID int64      `json:"subscription_id"`
	PlanCode       string     `json:"plan_code"`
	Status         string     `json:"status"`
	EndAt          *time.Time `json:"end_at,omitempty"`
	ActivatedBy    int64      `json:"activated_by"`
}

type PaymentReceivedPayload struct {
	PaymentID   int64  `json:"payment_id"`
	UserID      int64  `json:"user_id"`
	Provider    string `json:"provider"`
	TxID        string `json:"tx_id"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Repeated    bool   `json:"repeated"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into dst.
func (e *Event) Decode(dst interface{}) error {
	return json.Unmarshal(e.Payload, dst)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. logger may be nil.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers synchronously. Handler errors are logged.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event. Nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
