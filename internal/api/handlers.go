package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"signaldesk/internal/domain"
	"signaldesk/internal/export"
	"signaldesk/internal/logging"
	"signaldesk/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type registerRequest struct {
	TgID     int64  `json:"tg_id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Lang     string `json:"lang"`
	TZ       string `json:"tz"`
}

func (s *HTTPServer) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	user, err := s.svc.Users.RegisterUser(r.Context(), &models.User{
		TgID:     req.TgID,
		Username: req.Username,
		FullName: req.FullName,
		Email:    req.Email,
		Lang:     req.Lang,
		TZ:       req.TZ,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromQuery(r, "user_id", "tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	user, err := s.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *HTTPServer) handleAccess(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromQuery(r, "user_id", "tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	user, err := s.svc.Access.EnsureUserCanViewSignals(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"allowed": true, "user": user})
}

func (s *HTTPServer) handleListSignals(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromQuery(r, "user_id", "tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	q := r.URL.Query()
	filter := models.SignalFilter{
		Market:    strings.TrimSpace(q.Get("market")),
		Symbol:    strings.TrimSpace(q.Get("symbol")),
		Timeframe: strings.TrimSpace(q.Get("tf")),
		Limit:     limit,
	}

	signals, err := s.svc.Signals.ListSignals(r.Context(), id, filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": nonNil(signals)})
}

func (s *HTTPServer) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	signalID, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, err := identityFromQuery(r, "user_id", "tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	sig, err := s.svc.Signals.GetSignal(r.Context(), id, signalID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *HTTPServer) handleAdminCreateSignal(w http.ResponseWriter, r *http.Request) {
	admin, err := identityFromQuery(r, "admin_id", "admin_tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var payload models.SignalPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeDomainError(w, err)
		return
	}

	sig, err := s.svc.Signals.AdminCreateSignal(r.Context(), &payload, admin)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Info().Err(err).Int64("admin_id", admin.UserID).Msg("signal rejected")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sig)
}

func (s *HTTPServer) handleExportSignals(w http.ResponseWriter, r *http.Request) {
	admin, err := identityFromQuery(r, "admin_id", "admin_tg_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	from, to, err := exportRange(r, s.now().UTC())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	signals, err := s.svc.Signals.SignalsForExport(r.Context(), admin, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	data, err := export.SignalsReport(signals, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type deliveryRequest struct {
	SignalID int64      `json:"signal_id"`
	UserID   int64      `json:"user_id"`
	At       *time.Time `json:"at,omitempty"`
}

func (req deliveryRequest) validate() error {
	if req.SignalID <= 0 || req.UserID <= 0 {
		return fmt.Errorf("%w: signal_id and user_id are required", domain.ErrInvalidRequest)
	}
	return nil
}

func (s *HTTPServer) handleMarkDelivered(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	d, err := s.svc.Deliveries.MarkDelivered(r.Context(), req.SignalID, req.UserID, req.At)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *HTTPServer) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	var req deliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	d, err := s.svc.Deliveries.MarkSeen(r.Context(), req.SignalID, req.UserID, req.At)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *HTTPServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	feed, err := s.svc.Deliveries.Feed(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": nonNil(feed)})
}

func (s *HTTPServer) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.svc.Subscriptions.ListPlans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": nonNil(plans)})
}

type subscriptionRequest struct {
	AdminID   int64  `json:"admin_id,omitempty"`
	AdminTgID int64  `json:"admin_tg_id,omitempty"`
	UserID    int64  `json:"user_id"`
	PlanCode  string `json:"plan_code"`
}

func (s *HTTPServer) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	sub, err := s.svc.Subscriptions.CreateSubscription(r.Context(), req.UserID, req.PlanCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *HTTPServer) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	subs, err := s.svc.Subscriptions.ListSubscriptions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": nonNil(subs)})
}

func (s *HTTPServer) handleActivateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	admin := models.Identity{UserID: req.AdminID, TgID: req.AdminTgID}
	sub, err := s.svc.Subscriptions.ActivateSubscription(r.Context(), admin, req.UserID, req.PlanCode)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentWebhook
	if err := decodeWebhookJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.svc.Payments.HandleWebhook(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	list, err := s.svc.Notifications.List(r.Context(), userID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": nonNil(list)})
}

func (s *HTTPServer) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64 `json:"id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}
	if req.ID <= 0 {
		writeDomainError(w, fmt.Errorf("%w: id is required", domain.ErrInvalidRequest))
		return
	}
	n, err := s.svc.Notifications.MarkRead(r.Context(), req.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.svc.Users.GetProfile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.svc.Users.CreateProfile(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "user_id")
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var upd models.ProfileUpdate
	if err := decodeJSON(r, &upd); err != nil {
		writeDomainError(w, err)
		return
	}
	p, err := s.svc.Users.UpdateProfile(r.Context(), userID, &upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// identityFromQuery reads an internal id or a telegram id. Both absent is
// left to the service, which rejects it as an invalid request.
func identityFromQuery(r *http.Request, idKey, tgKey string) (models.Identity, error) {
	userID, err := intQuery(r, idKey)
	if err != nil {
		return models.Identity{}, err
	}
	tgID, err := intQuery(r, tgKey)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{UserID: int64(userID), TgID: int64(tgID)}, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidRequest, key)
	}
	return v, nil
}

func pathID(r *http.Request, key string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidRequest, key)
	}
	return v, nil
}

// exportRange: from/to как YYYY-MM-DD (to включительно) или RFC3339.
// По умолчанию последние 30 дней.
func exportRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	q := r.URL.Query()
	to := now
	from := now.AddDate(0, 0, -30)

	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, dateOnly, err := parseTimeParam(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: to: %v", domain.ErrInvalidRequest, err)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		to = t
		if q.Get("from") == "" {
			from = to.AddDate(0, 0, -30)
		}
	}
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, _, err := parseTimeParam(raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: from: %v", domain.ErrInvalidRequest, err)
		}
		from = t
	}
	return from, to, nil
}

func parseTimeParam(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// nonNil keeps empty lists as [] in JSON.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
