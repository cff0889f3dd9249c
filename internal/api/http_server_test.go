package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/database"
	"signaldesk/internal/events"
	"signaldesk/internal/models"
	"signaldesk/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const adminTgID = 1000

type apiEnv struct {
	db  *database.DB
	ts  *httptest.Server
	svc Services
}

func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewEventBus(&logger)
	access := service.NewAccessService(db, bus, &logger)
	subs := service.NewSubscriptionService(db, bus, &logger)
	require.NoError(t, subs.SyncPlans(context.Background(), []models.Plan{
		{Code: "m1", Name: "1 месяц", Months: 1, Price: decimal.RequireFromString("19.99")},
	}))

	svc := Services{
		Users:         service.NewUserService(db, &config.Config{Admins: []int64{adminTgID}}, &logger),
		Access:        access,
		Signals:       service.NewSignalService(db, access, bus, config.DefaultSignalsConfig(), &logger),
		Subscriptions: subs,
		Deliveries:    service.NewDeliveryService(db, access, &logger),
		Payments:      service.NewPaymentService(db, bus, &logger),
		Notifications: service.NewNotificationService(db),
	}

	srv := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &apiEnv{db: db, ts: ts, svc: svc}
}

func openAPI() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func (e *apiEnv) register(t *testing.T, tgID int64) *models.User {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/users", map[string]any{"tg_id": tgID, "username": fmt.Sprintf("u%d", tgID)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var u models.User
	decodeBody(t, resp, &u)
	return &u
}

func (e *apiEnv) subscribe(t *testing.T, userID int64) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]any{"user_id": userID, "plan_code": "m1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

const signalJSON = `{"market":"futures","symbol":"btcusdt","direction":"long","tf":"H1",
	"entry":{"type":"zone","min":"100","max":105},"sl":"99","tps":[110,"115.5"]}`

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestUsers(t *testing.T) {
	env := newAPIEnv(t, openAPI())

	u := env.register(t, 42)
	assert.Equal(t, models.RoleGuest, u.Role)
	admin := env.register(t, adminTgID)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	t.Run("Me", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/users/me?tg_id=42", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var got models.User
		decodeBody(t, resp, &got)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("MeWithoutIdentity", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/users/me", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorBody
		decodeBody(t, resp, &body)
		assert.Equal(t, "invalid_request", body.Kind)
	})

	t.Run("MeBadNumber", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/users/me?user_id=abc", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("MeUnknown", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/users/me?user_id=999", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("RegisterWithoutTgID", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/users", map[string]any{"username": "x"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("RegisterUnknownField", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/users", `{"tg_id": 5, "role": "admin"}`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAccess(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	u := env.register(t, 42)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/access?user_id=%d", u.ID), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body errorBody
	decodeBody(t, resp, &body)
	assert.Equal(t, "forbidden", body.Kind)
	assert.Equal(t, "no_subscription", body.Reason)

	env.subscribe(t, u.ID)
	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/access?user_id=%d", u.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok struct {
		Allowed bool        `json:"allowed"`
		User    models.User `json:"user"`
	}
	decodeBody(t, resp, &ok)
	assert.True(t, ok.Allowed)
	assert.Equal(t, models.RoleSubscriber, ok.User.Role)
}

func TestAdminSignals(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	admin := env.register(t, adminTgID)
	viewer := env.register(t, 42)
	env.subscribe(t, viewer.ID)

	path := fmt.Sprintf("/api/v1/admin/signals?admin_id=%d", admin.ID)

	resp := env.do(t, http.MethodPost, path, signalJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sig models.Signal
	decodeBody(t, resp, &sig)
	assert.Equal(t, "BTCUSDT", sig.Symbol)
	assert.Equal(t, 99.0, sig.StopLoss)
	assert.Equal(t, []float64{110, 115.5}, sig.TakeProfits)

	t.Run("Cooldown", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, path, signalJSON)
		require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.NotEmpty(t, resp.Header.Get("Retry-After"))
		var body errorBody
		decodeBody(t, resp, &body)
		assert.Equal(t, "rate_limited", body.Kind)
		assert.Equal(t, "global_cooldown", body.Reason)
		assert.Positive(t, body.RetryAfter)
		assert.LessOrEqual(t, body.RetryAfter, 30)
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		bad := `{"market":"futures","symbol":"ETHUSDT","direction":"long","tf":"H1",
			"entry":{"type":"zone","min":105,"max":100},"sl":99,"tps":[110]}`
		resp := env.do(t, http.MethodPost, path, bad)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorBody
		decodeBody(t, resp, &body)
		assert.Equal(t, "invalid_payload", body.Kind)
		assert.Equal(t, "entry", body.Field)
		assert.Equal(t, "min_lt_max", body.Rule)
	})

	t.Run("NotAdmin", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/signals?admin_id=%d", viewer.ID), signalJSON)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		var body errorBody
		decodeBody(t, resp, &body)
		assert.Equal(t, "not_admin", body.Reason)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, path, "{")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ListAndGet", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signals?user_id=%d&symbol=btcusdt", viewer.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Signals []models.Signal `json:"signals"`
		}
		decodeBody(t, resp, &list)
		require.Len(t, list.Signals, 1)
		assert.Equal(t, sig.ID, list.Signals[0].ID)

		resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signals/%d?user_id=%d", sig.ID, viewer.ID), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signals/%d?user_id=%d", sig.ID+100, viewer.ID), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signals/abc?user_id=%d", viewer.ID), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("ListForbiddenForGuest", func(t *testing.T) {
		guest := env.register(t, 43)
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signals?user_id=%d", guest.ID), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Export", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/signals/export?admin_id=%d", admin.ID), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), ".xlsx")

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		f, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Сигналы")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("ExportForbidden", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/signals/export?admin_id=%d", viewer.ID), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("ExportBadRange", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/signals/export?admin_id=%d&from=2026-03-10&to=2026-03-01", admin.ID), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/signals/export?admin_id=%d&from=yesterday", admin.ID), nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestDeliveries(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	admin := env.register(t, adminTgID)
	viewer := env.register(t, 42)
	env.subscribe(t, viewer.ID)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/signals?admin_id=%d", admin.ID), signalJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var sig models.Signal
	decodeBody(t, resp, &sig)

	req := map[string]any{"signal_id": sig.ID, "user_id": viewer.ID}

	resp = env.do(t, http.MethodPost, "/api/v1/signal-deliveries/delivered", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first models.SignalDelivery
	decodeBody(t, resp, &first)
	require.NotNil(t, first.DeliveredAt)

	resp = env.do(t, http.MethodPost, "/api/v1/signal-deliveries/delivered", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second models.SignalDelivery
	decodeBody(t, resp, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.DeliveredAt.Equal(*second.DeliveredAt))

	resp = env.do(t, http.MethodPost, "/api/v1/signal-deliveries/seen", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/signal-deliveries/seen", map[string]any{"signal_id": sig.ID + 100, "user_id": viewer.ID})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/signal-deliveries/seen", map[string]any{"signal_id": sig.ID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/signal-deliveries/user/%d", viewer.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed struct {
		Deliveries []models.SignalDelivery `json:"deliveries"`
	}
	decodeBody(t, resp, &feed)
	require.Len(t, feed.Deliveries, 1)
	assert.NotNil(t, feed.Deliveries[0].SeenAt)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/notifications/%d", viewer.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Notifications []models.Notification `json:"notifications"`
	}
	decodeBody(t, resp, &list)
	require.NotEmpty(t, list.Notifications)
	assert.Equal(t, models.NotificationSignalDelivered, list.Notifications[0].Type)

	resp = env.do(t, http.MethodPost, "/api/v1/notifications/mark-read", map[string]any{"id": list.Notifications[0].ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var n models.Notification
	decodeBody(t, resp, &n)
	assert.True(t, n.IsRead)

	resp = env.do(t, http.MethodPost, "/api/v1/notifications/mark-read", map[string]any{"id": 9999})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscriptionsAndPlans(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	admin := env.register(t, adminTgID)
	u := env.register(t, 42)

	resp := env.do(t, http.MethodGet, "/api/v1/plans", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var plans struct {
		Plans []models.Plan `json:"plans"`
	}
	decodeBody(t, resp, &plans)
	require.Len(t, plans.Plans, 1)
	assert.True(t, decimal.RequireFromString("19.99").Equal(plans.Plans[0].Price))

	resp = env.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]any{"user_id": u.ID, "plan_code": "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/subscriptions/activate", map[string]any{
		"admin_id": admin.ID, "user_id": u.ID, "plan_code": "m1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sub models.Subscription
	decodeBody(t, resp, &sub)
	assert.Equal(t, models.SubscriptionActive, sub.Status)

	resp = env.do(t, http.MethodPost, "/api/v1/admin/subscriptions/activate", map[string]any{
		"admin_id": u.ID, "user_id": u.ID, "plan_code": "m1",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/subscriptions/%d", u.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var subs struct {
		Subscriptions []models.Subscription `json:"subscriptions"`
	}
	decodeBody(t, resp, &subs)
	assert.Len(t, subs.Subscriptions, 1)
}

func TestPaymentWebhook(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	u := env.register(t, 42)

	body := map[string]any{"tg_id": 42, "amount_cents": 1999, "currency": "USD", "provider": "stripe", "tx_id": "tx-1", "status": "pending"}
	resp := env.do(t, http.MethodPost, "/api/v1/payments/webhook", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var first models.Payment
	decodeBody(t, resp, &first)
	assert.Equal(t, u.ID, first.UserID)

	body["status"] = "paid"
	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var second models.Payment
	decodeBody(t, resp, &second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "paid", second.Status)

	// поля провайдера сверх схемы не мешают, повтор остается идемпотентным
	body["event_id"] = "evt_123"
	body["livemode"] = false
	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var third models.Payment
	decodeBody(t, resp, &third)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, "paid", third.Status)

	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", map[string]any{"provider": "stripe", "tx_id": "tx-2"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", map[string]any{"tg_id": 7, "provider": "stripe", "tx_id": "tx-3"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProfiles(t *testing.T) {
	env := newAPIEnv(t, openAPI())
	u := env.register(t, 42)
	path := fmt.Sprintf("/api/v1/profiles/%d", u.ID)

	resp := env.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, path, map[string]any{"favorites": []string{"BTCUSDT"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p models.Profile
	decodeBody(t, resp, &p)
	assert.Equal(t, []string{"BTCUSDT"}, p.Favorites)

	resp = env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	cfg := openAPI()
	cfg.Auth = config.APIAuthConfig{
		Enabled: true,
		APIKeys: []config.APIClientKey{
			{Key: "reader", Extra: "r-extra", Permissions: []string{PermReadUsers}},
			{Key: "root", Extra: "root-extra"},
		},
	}
	env := newAPIEnv(t, cfg)
	_, err := env.svc.Users.RegisterUser(context.Background(), &models.User{TgID: 42})
	require.NoError(t, err)

	call := func(method, path, key, extra string) int {
		req, err := http.NewRequest(method, env.ts.URL+path, nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set("X-API-Key", key)
			req.Header.Set("X-API-Extra", extra)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/healthz", "", ""))
	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/api/v1/users/me?tg_id=42", "", ""))
	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/api/v1/users/me?tg_id=42", "unknown", "x"))
	assert.Equal(t, http.StatusUnauthorized, call(http.MethodGet, "/api/v1/users/me?tg_id=42", "reader", "wrong"))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/v1/users/me?tg_id=42", "reader", "r-extra"))
	assert.Equal(t, http.StatusForbidden, call(http.MethodPost, "/api/v1/payments/webhook", "reader", "r-extra"))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/api/v1/users/me?tg_id=42", "root", "root-extra"))
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method, path, want string
	}{
		{http.MethodGet, "/api/v1/signals", PermReadSignals},
		{http.MethodGet, "/api/v1/access", PermReadSignals},
		{http.MethodPost, "/api/v1/admin/signals", PermWriteSignals},
		{http.MethodGet, "/api/v1/admin/signals/export", PermReadExport},
		{http.MethodPost, "/api/v1/signal-deliveries/seen", PermWriteSignals},
		{http.MethodGet, "/api/v1/signal-deliveries/user/1", PermReadSignals},
		{http.MethodPost, "/api/v1/subscriptions", PermWriteSubscriptions},
		{http.MethodGet, "/api/v1/subscriptions/1", PermReadUsers},
		{http.MethodPost, "/api/v1/admin/subscriptions/activate", PermWriteSubscriptions},
		{http.MethodPost, "/api/v1/payments/webhook", PermWritePayments},
		{http.MethodGet, "/api/v1/notifications/1", PermReadNotifications},
		{http.MethodPost, "/api/v1/notifications/mark-read", PermWriteNotifications},
		{http.MethodPut, "/api/v1/profiles/1", PermWriteUsers},
		{http.MethodGet, "/api/v1/users/me", PermReadUsers},
		{http.MethodGet, "/api/v1/plans", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.path, nil)
		assert.Equal(t, tt.want, requiredPermission(r), "%s %s", tt.method, tt.path)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := openAPI()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 2}
	env := newAPIEnv(t, cfg)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/plans", nil).StatusCode)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/plans", nil).StatusCode)
	resp := env.do(t, http.MethodGet, "/api/v1/plans", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestDescribeError(t *testing.T) {
	status, body := describeError(fmt.Errorf("wrap: %w", io.ErrUnexpectedEOF))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal error", body.Error)
}

func TestExportRange(t *testing.T) {
	now := time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	from, to, err := exportRange(r, now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -30), from)

	r = httptest.NewRequest(http.MethodGet, "/x?from=2026-03-01&to=2026-03-10", nil)
	from, to, err = exportRange(r, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), to)
}
