package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/logging"
	"signaldesk/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Services набор доменных сервисов, которые обслуживает HTTP API.
type Services struct {
	Users         domain.UserService
	Access        domain.AccessService
	Signals       domain.SignalService
	Subscriptions domain.SubscriptionService
	Deliveries    domain.DeliveryService
	Payments      domain.PaymentService
	Notifications domain.NotificationService
}

// HTTPServer exposes the REST surface over the domain services.
type HTTPServer struct {
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
	now    func() time.Time
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		svc:    svc,
		auth:   NewHTTPAuth(cfg),
		logger: logging.Component(logger, "http"),
		now:    time.Now,
	}

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /api/v1/users", s.handleRegisterUser)
	mux.HandleFunc("GET /api/v1/users/me", s.handleMe)
	mux.HandleFunc("GET /api/v1/access", s.handleAccess)

	mux.HandleFunc("GET /api/v1/signals", s.handleListSignals)
	mux.HandleFunc("GET /api/v1/signals/{id}", s.handleGetSignal)
	mux.HandleFunc("POST /api/v1/admin/signals", s.handleAdminCreateSignal)
	mux.HandleFunc("GET /api/v1/admin/signals/export", s.handleExportSignals)

	mux.HandleFunc("POST /api/v1/signal-deliveries/delivered", s.handleMarkDelivered)
	mux.HandleFunc("POST /api/v1/signal-deliveries/seen", s.handleMarkSeen)
	mux.HandleFunc("GET /api/v1/signal-deliveries/user/{user_id}", s.handleFeed)

	mux.HandleFunc("GET /api/v1/plans", s.handleListPlans)
	mux.HandleFunc("POST /api/v1/subscriptions", s.handleCreateSubscription)
	mux.HandleFunc("GET /api/v1/subscriptions/{user_id}", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/v1/admin/subscriptions/activate", s.handleActivateSubscription)

	mux.HandleFunc("POST /api/v1/payments/webhook", s.handlePaymentWebhook)

	mux.HandleFunc("GET /api/v1/notifications/{user_id}", s.handleListNotifications)
	mux.HandleFunc("POST /api/v1/notifications/mark-read", s.handleMarkNotificationRead)

	mux.HandleFunc("GET /api/v1/profiles/{user_id}", s.handleGetProfile)
	mux.HandleFunc("POST /api/v1/profiles/{user_id}", s.handleCreateProfile)
	mux.HandleFunc("PUT /api/v1/profiles/{user_id}", s.handleUpdateProfile)
}

// Handler returns the full middleware chain, used by tests and by
// processes that embed the API into another server.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		log := s.logger.With().Str("request_id", requestID).Logger()
		r = r.WithContext(log.WithContext(r.Context()))

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, recorder.status)

		event := log.Info()
		if recorder.status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
