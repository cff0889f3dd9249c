package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/database"
	"signaldesk/internal/events"
	"signaldesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *eventRecorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) ofType(eventType string) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db       *database.DB
	clock    *testClock
	recorder *eventRecorder

	access        *AccessService
	signals       *SignalService
	subscriptions *SubscriptionService
	deliveries    *DeliveryService
	payments      *PaymentService
	notifications *NotificationService
	users         *UserService
}

var testBase = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, rules config.SignalsConfig) *testEnv {
	t.Helper()
	logger := testLogger()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "signaldesk.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rec := &eventRecorder{}
	bus := events.NewEventBus(logger)
	for _, et := range []string{
		events.EventSignalPublished,
		events.EventSubscriptionExpired,
		events.EventSubscriptionActivated,
		events.EventPaymentReceived,
	} {
		bus.Subscribe(et, rec.handle)
	}

	clock := &testClock{now: testBase}
	cfg := &config.Config{Admins: []int64{1000}, Blacklist: []int64{6666}}

	env := &testEnv{db: db, clock: clock, recorder: rec}
	env.access = NewAccessService(db, bus, logger)
	env.access.now = clock.Now
	env.signals = NewSignalService(db, env.access, bus, rules, logger)
	env.signals.now = clock.Now
	env.subscriptions = NewSubscriptionService(db, bus, logger)
	env.subscriptions.now = clock.Now
	env.deliveries = NewDeliveryService(db, env.access, logger)
	env.deliveries.now = clock.Now
	env.payments = NewPaymentService(db, bus, logger)
	env.payments.now = clock.Now
	env.notifications = NewNotificationService(db)
	env.users = NewUserService(db, cfg, logger)
	env.users.now = clock.Now
	return env
}

func (e *testEnv) createUser(t *testing.T, tgID int64, role models.Role) *models.User {
	t.Helper()
	u := &models.User{TgID: tgID, Username: "u", Role: role}
	require.NoError(t, e.db.UpsertUser(context.Background(), u))
	return u
}

func (e *testEnv) createSub(t *testing.T, userID int64, status models.SubscriptionStatus, start, end *time.Time) *models.Subscription {
	t.Helper()
	sub := &models.Subscription{UserID: userID, Status: status, StartAt: start, EndAt: end}
	require.NoError(t, e.db.CreateSubscription(context.Background(), sub))
	return sub
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func ptrTime(t time.Time) *time.Time { return &t }

// longPayload валидный long-сигнал по зоне [min,max].
func longPayload(symbol string, min, max float64) *models.SignalPayload {
	return &models.SignalPayload{
		Market:      "futures",
		Symbol:      symbol,
		Direction:   models.DirectionLong,
		Timeframe:   "H1",
		Entry:       &models.EntryPayload{Type: models.EntryTypeZone, Min: min, Max: max},
		StopLoss:    min - 1,
		TakeProfits: []any{max + 5, max + 10},
	}
}
