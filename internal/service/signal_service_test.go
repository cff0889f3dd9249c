package service

import (
	"context"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/events"
	"signaldesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// noCooldowns отключает оба кулдауна, чтобы проверять остальные этапы.
func noCooldowns() config.SignalsConfig {
	rules := config.DefaultSignalsConfig()
	rules.GlobalCooldownSeconds = 0
	rules.PerSymbolCooldownSeconds = 0
	return rules
}

func requireRateLimited(t *testing.T, err error, kind domain.RateLimitKind, retryAfter int) {
	t.Helper()
	require.ErrorIs(t, err, domain.ErrRateLimited)
	var rl *domain.RateLimitedError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, kind, rl.Kind)
	assert.Equal(t, retryAfter, rl.RetryAfterSeconds())
}

func TestAdminCreateSignal_Accepted(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	admin := env.createUser(t, 1000, models.RoleAdmin)

	payload := longPayload(" btcusdt ", 100, 105)
	payload.Comment = "  пробой  "
	sig, err := env.signals.AdminCreateSignal(ctx, payload, models.ByUserID(admin.ID))
	require.NoError(t, err)

	assert.NotZero(t, sig.ID)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, admin.ID, sig.CreatedBy)
	assert.True(t, sig.CreatedAt.Equal(testBase))
	assert.Equal(t, []float64{110, 115}, sig.TakeProfits)
	assert.Equal(t, 99.0, sig.StopLoss)
	assert.Equal(t, "пробой", sig.Comment)

	stored, err := env.db.GetSignal(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, sig.Entry, stored.Entry)

	notes, err := env.db.ListNotifications(ctx, admin.ID, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationNewSignal, notes[0].Type)
	assert.Equal(t, "Новый сигнал по BTCUSDT", notes[0].Title)
	assert.Equal(t, "LONG BTCUSDT @ 100-105", notes[0].Message)

	published := env.recorder.ofType(events.EventSignalPublished)
	require.Len(t, published, 1)
	var p events.SignalPublishedPayload
	require.NoError(t, published[0].Decode(&p))
	assert.Equal(t, sig.ID, p.SignalID)
	assert.Equal(t, "H1", p.Timeframe)
}

func TestAdminCreateSignal_ResubmitScenario(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	admin := env.createUser(t, 1000, models.RoleAdmin)

	payload := &models.SignalPayload{
		Market:      "futures",
		Symbol:      "BTCUSDT",
		Direction:   models.DirectionLong,
		Timeframe:   "H1",
		Entry:       &models.EntryPayload{Type: models.EntryTypeZone, Min: 100, Max: 105},
		StopLoss:    99,
		TakeProfits: []any{110, 115},
	}
	_, err := env.signals.AdminCreateSignal(ctx, payload, models.ByUserID(admin.ID))
	require.NoError(t, err)

	_, err = env.signals.AdminCreateSignal(ctx, payload, models.ByUserID(admin.ID))
	requireRateLimited(t, err, domain.LimitGlobalCooldown, 30)

	env.clock.Advance(61 * time.Second)
	_, err = env.signals.AdminCreateSignal(ctx, payload, models.ByUserID(admin.ID))
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	assert.Len(t, env.recorder.ofType(events.EventSignalPublished), 1)
}

func TestAdminCreateSignal_Authorization(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()

	for i, role := range []models.Role{models.RoleGuest, models.RoleSubscriber, models.RoleBanned} {
		u := env.createUser(t, 2000+int64(i), role)
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), models.ByUserID(u.ID))
		requireForbidden(t, err, domain.ReasonNotAdmin)
	}

	// роль проверяется раньше содержимого сигнала
	guest := env.createUser(t, 2100, models.RoleGuest)
	broken := longPayload("BTCUSDT", 100, 105)
	broken.Entry = nil
	_, err := env.signals.AdminCreateSignal(ctx, broken, models.ByUserID(guest.ID))
	requireForbidden(t, err, domain.ReasonNotAdmin)
	assert.NotErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), models.ByTgID(424242))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	last, err := env.db.LatestSignal(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestAdminCreateSignal_GlobalCooldown(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

	_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), admin)
	require.NoError(t, err)

	env.clock.Set(testBase.Add(29 * time.Second))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
	requireRateLimited(t, err, domain.LimitGlobalCooldown, 1)

	env.clock.Set(testBase.Add(29*time.Second + 500*time.Millisecond))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
	requireRateLimited(t, err, domain.LimitGlobalCooldown, 1)

	env.clock.Set(testBase.Add(31 * time.Second))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
	require.NoError(t, err)
}

func TestAdminCreateSignal_GlobalCooldownExactWindow(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

	_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), admin)
	require.NoError(t, err)

	env.clock.Set(testBase.Add(30 * time.Second))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
	require.NoError(t, err)
}

func TestAdminCreateSignal_SymbolCooldown(t *testing.T) {
	rules := config.DefaultSignalsConfig()
	rules.GlobalCooldownSeconds = 0
	env := newTestEnv(t, rules)
	ctx := context.Background()
	admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

	_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), admin)
	require.NoError(t, err)

	env.clock.Set(testBase.Add(59 * time.Second))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 200, 210), admin)
	requireRateLimited(t, err, domain.LimitSymbolCooldown, 1)

	// другой символ кулдаун не задевает
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
	require.NoError(t, err)

	env.clock.Set(testBase.Add(60 * time.Second))
	_, err = env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 200, 210), admin)
	require.NoError(t, err)
}

func TestAdminCreateSignal_DailyLimits(t *testing.T) {
	t.Run("AdminResetsAtLocalMidnight", func(t *testing.T) {
		rules := noCooldowns()
		rules.MaxPerAdminPerDay = 2
		rules.MaxPerSymbolPerDay = 0
		rules.DayTimezone = "Europe/Moscow"
		env := newTestEnv(t, rules)
		ctx := context.Background()
		admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

		// 12:00 UTC = 15:00 MSK, до полуночи по Москве 9 часов
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), admin)
		require.NoError(t, err)
		_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
		require.NoError(t, err)

		_, err = env.signals.AdminCreateSignal(ctx, longPayload("SOLUSDT", 100, 105), admin)
		requireRateLimited(t, err, domain.LimitAdminDaily, 9*3600)

		env.clock.Set(time.Date(2026, 3, 10, 21, 0, 1, 0, time.UTC))
		_, err = env.signals.AdminCreateSignal(ctx, longPayload("SOLUSDT", 100, 105), admin)
		require.NoError(t, err)
	})

	t.Run("Symbol", func(t *testing.T) {
		rules := noCooldowns()
		rules.MaxPerAdminPerDay = 0
		rules.MaxPerSymbolPerDay = 2
		env := newTestEnv(t, rules)
		ctx := context.Background()
		admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), admin)
		require.NoError(t, err)
		_, err = env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 200, 205), admin)
		require.NoError(t, err)

		_, err = env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 300, 305), admin)
		requireRateLimited(t, err, domain.LimitSymbolDaily, 12*3600)

		_, err = env.signals.AdminCreateSignal(ctx, longPayload("ETHUSDT", 100, 105), admin)
		require.NoError(t, err)
	})
}

func TestAdminCreateSignal_DuplicatesAndConflicts(t *testing.T) {
	env := newTestEnv(t, noCooldowns())
	ctx := context.Background()
	admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

	first := longPayload("BTCUSDT", 100, 110)
	_, err := env.signals.AdminCreateSignal(ctx, first, admin)
	require.NoError(t, err)

	t.Run("Identical", func(t *testing.T) {
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 110), admin)
		assert.ErrorIs(t, err, domain.ErrDuplicate)
	})

	t.Run("ReorderedTakeProfitsIsNotDuplicate", func(t *testing.T) {
		p := longPayload("BTCUSDT", 100, 110)
		p.TakeProfits = []any{120, 115}
		_, err := env.signals.AdminCreateSignal(ctx, p, admin)
		assert.NotErrorIs(t, err, domain.ErrDuplicate)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("OverlappingZone", func(t *testing.T) {
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 105, 115), admin)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("TouchingZone", func(t *testing.T) {
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 110, 120), admin)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("OtherTimeframeNotCompared", func(t *testing.T) {
		p := longPayload("BTCUSDT", 100, 110)
		p.Timeframe = "H4"
		_, err := env.signals.AdminCreateSignal(ctx, p, admin)
		assert.NoError(t, err)
	})

	t.Run("DisjointZone", func(t *testing.T) {
		_, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 110.0001, 120), admin)
		assert.NoError(t, err)
	})
}

func TestValidateSignalPayload(t *testing.T) {
	rules := config.DefaultSignalsConfig()

	short := func() *models.SignalPayload {
		return &models.SignalPayload{
			Market:      "spot",
			Symbol:      "ETHUSDT",
			Direction:   models.DirectionShort,
			Timeframe:   "M15",
			Entry:       &models.EntryPayload{Type: models.EntryTypeZone, Min: 100, Max: 105},
			StopLoss:    106,
			TakeProfits: []any{95, 90},
		}
	}

	tests := []struct {
		name   string
		mutate func(p *models.SignalPayload)
		field  string
		rule   string
	}{
		{"EmptySymbol", func(p *models.SignalPayload) { p.Symbol = "  " }, "symbol", "required"},
		{"BadDirection", func(p *models.SignalPayload) { p.Direction = "sideways" }, "direction", "allowed"},
		{"UppercaseDirection", func(p *models.SignalPayload) { p.Direction = "SHORT" }, "direction", "allowed"},
		{"BadTimeframe", func(p *models.SignalPayload) { p.Timeframe = "W1" }, "tf", "allowed"},
		{"NoEntry", func(p *models.SignalPayload) { p.Entry = nil }, "entry", "required"},
		{"NotZone", func(p *models.SignalPayload) { p.Entry.Type = "market" }, "entry.type", "zone_required"},
		{"NonNumericBound", func(p *models.SignalPayload) { p.Entry.Min = "abc" }, "entry", "numeric_bounds"},
		{"MinEqualsMax", func(p *models.SignalPayload) { p.Entry.Max = 100 }, "entry", "min_lt_max"},
		{"NoStopLoss", func(p *models.SignalPayload) { p.StopLoss = nil }, "sl", "required"},
		{"NonNumericStopLoss", func(p *models.SignalPayload) { p.StopLoss = true }, "sl", "numeric"},
		{"NoTakeProfits", func(p *models.SignalPayload) { p.TakeProfits = nil }, "tps", "required"},
		{"NonNumericTakeProfit", func(p *models.SignalPayload) { p.TakeProfits = []any{95, "x"} }, "tps", "numeric"},
		{"ShortStopLossAtEntryMax", func(p *models.SignalPayload) { p.StopLoss = 105 }, "sl", "above_entry_max"},
		{"ShortTakeProfitAtEntryMin", func(p *models.SignalPayload) { p.TakeProfits = []any{95, 100} }, "tps", "below_entry_min"},
		{"LongStopLossAtEntryMin", func(p *models.SignalPayload) {
			p.Direction = models.DirectionLong
			p.StopLoss = 100
			p.TakeProfits = []any{110}
		}, "sl", "below_entry_min"},
		{"LongTakeProfitAtEntryMax", func(p *models.SignalPayload) {
			p.Direction = models.DirectionLong
			p.StopLoss = 99
			p.TakeProfits = []any{120, 105}
		}, "tps", "above_entry_max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := short()
			tt.mutate(p)
			_, err := ValidateSignalPayload(p, rules)
			require.ErrorIs(t, err, domain.ErrInvalidPayload)
			var ipe *domain.InvalidPayloadError
			require.ErrorAs(t, err, &ipe)
			assert.Equal(t, tt.field, ipe.Field)
			assert.Equal(t, tt.rule, ipe.Rule)
		})
	}

	t.Run("ValidShortWithStrings", func(t *testing.T) {
		p := short()
		p.Entry.Min = "100.5"
		p.StopLoss = "106"
		p.TakeProfits = []any{"95", 90.5}
		sig, err := ValidateSignalPayload(p, rules)
		require.NoError(t, err)
		assert.Equal(t, 100.5, sig.Entry.Min)
		assert.Equal(t, 106.0, sig.StopLoss)
		assert.Equal(t, []float64{95, 90.5}, sig.TakeProfits)
	})

	t.Run("NilPayload", func(t *testing.T) {
		_, err := ValidateSignalPayload(nil, rules)
		assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	})
}

// mockRepository пропускает транзакцию и записывает обращения к хранилищу.
// Не замоканные методы паникуют на nil Repository.
type mockRepository struct {
	domain.Repository
	mock.Mock
}

func (m *mockRepository) InTx(ctx context.Context, fn func(domain.Store) error) error {
	return fn(m)
}

func (m *mockRepository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockRepository) LatestSignal(ctx context.Context) (*models.Signal, error) {
	args := m.Called(ctx)
	return args.Get(0).(*models.Signal), args.Error(1)
}

func (m *mockRepository) LatestSignalForSymbol(ctx context.Context, symbol string) (*models.Signal, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(*models.Signal), args.Error(1)
}

func (m *mockRepository) CountSignalsByAdminSince(ctx context.Context, adminID int64, since time.Time) (int, error) {
	args := m.Called(ctx, adminID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) CountSignalsBySymbolSince(ctx context.Context, symbol string, since time.Time) (int, error) {
	args := m.Called(ctx, symbol, since)
	return args.Int(0), args.Error(1)
}

func (m *mockRepository) RecentSignals(ctx context.Context, symbol, timeframe string, limit int) ([]*models.Signal, error) {
	args := m.Called(ctx, symbol, timeframe, limit)
	return args.Get(0).([]*models.Signal), args.Error(1)
}

func TestAdminCreateSignal_InvalidPayloadSkipsLimitReads(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetUserByID", mock.Anything, int64(1)).
		Return(&models.User{ID: 1, TgID: 1000, Role: models.RoleAdmin}, nil)

	svc := NewSignalService(repo, nil, events.NewEventBus(nil), config.DefaultSignalsConfig(), testLogger())

	p := longPayload("BTCUSDT", 100, 105)
	p.StopLoss = 100
	_, err := svc.AdminCreateSignal(context.Background(), p, models.ByUserID(1))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	repo.AssertExpectations(t)
	for _, method := range []string{"LatestSignal", "LatestSignalForSymbol", "CountSignalsByAdminSince", "CountSignalsBySymbolSince", "RecentSignals"} {
		assert.False(t, calledMethod(repo, method), method)
	}
}

func calledMethod(m *mockRepository, method string) bool {
	for _, call := range m.Calls {
		if call.Method == method {
			return true
		}
	}
	return false
}

func TestAdminCreateSignal_ConcurrentSubmissions(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	admin := models.ByUserID(env.createUser(t, 1000, models.RoleAdmin).ID)

	const workers = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		limited  int
	)
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "XRPUSDT", "ADAUSDT", "DOTUSDT"}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			_, err := env.signals.AdminCreateSignal(ctx, longPayload(symbol, 100, 105), admin)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case assert.ErrorIs(t, err, domain.ErrRateLimited):
				limited++
			}
		}(symbols[i])
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, workers-1, limited)

	all, err := env.db.ListSignals(ctx, models.SignalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSignalReads(t *testing.T) {
	env := newTestEnv(t, config.DefaultSignalsConfig())
	ctx := context.Background()
	now := env.clock.Now()
	admin := env.createUser(t, 1000, models.RoleAdmin)

	sig, err := env.signals.AdminCreateSignal(ctx, longPayload("BTCUSDT", 100, 105), models.ByUserID(admin.ID))
	require.NoError(t, err)

	guest := env.createUser(t, 3000, models.RoleGuest)
	subscriber := env.createUser(t, 3001, models.RoleSubscriber)
	env.createSub(t, subscriber.ID, models.SubscriptionActive, ptrTime(now.Add(-time.Hour)), ptrTime(now.Add(time.Hour)))

	t.Run("GuestDenied", func(t *testing.T) {
		_, err := env.signals.ListSignals(ctx, models.ByUserID(guest.ID), models.SignalFilter{})
		requireForbidden(t, err, domain.ReasonNoSubscription)
		_, err = env.signals.GetSignal(ctx, models.ByUserID(guest.ID), sig.ID)
		requireForbidden(t, err, domain.ReasonNoSubscription)
	})

	t.Run("SubscriberLists", func(t *testing.T) {
		list, err := env.signals.ListSignals(ctx, models.ByTgID(3001), models.SignalFilter{Symbol: "btcusdt", Limit: 1000})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, sig.ID, list[0].ID)

		list, err = env.signals.ListSignals(ctx, models.ByTgID(3001), models.SignalFilter{Symbol: "ETHUSDT"})
		require.NoError(t, err)
		assert.Empty(t, list)

		got, err := env.signals.GetSignal(ctx, models.ByUserID(subscriber.ID), sig.ID)
		require.NoError(t, err)
		assert.Equal(t, "BTCUSDT", got.Symbol)

		_, err = env.signals.GetSignal(ctx, models.ByUserID(subscriber.ID), 9999)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Export", func(t *testing.T) {
		list, err := env.signals.SignalsForExport(ctx, models.ByUserID(admin.ID), now.Add(-time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = env.signals.SignalsForExport(ctx, models.ByUserID(subscriber.ID), now.Add(-time.Hour), now.Add(time.Hour))
		requireForbidden(t, err, domain.ReasonNotAdmin)

		_, err = env.signals.SignalsForExport(ctx, models.ByUserID(admin.ID), now, now)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestAdmissionResult(t *testing.T) {
	assert.Equal(t, "accepted", admissionResult(nil))
	assert.Equal(t, "invalid_payload", admissionResult(domain.InvalidPayload("sl", "numeric")))
	assert.Equal(t, "rate_limited:symbol_daily", admissionResult(domain.RateLimited(domain.LimitSymbolDaily, time.Hour)))
	assert.Equal(t, "forbidden", admissionResult(domain.Forbidden(domain.ReasonNotAdmin)))
	assert.Equal(t, "duplicate", admissionResult(domain.ErrDuplicate))
	assert.Equal(t, "error", admissionResult(assert.AnError))
}
