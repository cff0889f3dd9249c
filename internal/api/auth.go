package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"signaldesk/internal/config"
)

// Права доступа api ключей.
const (
	PermReadSignals        = "read:signals"
	PermWriteSignals       = "write:signals"
	PermReadUsers          = "read:users"
	PermWriteUsers         = "write:users"
	PermWriteSubscriptions = "write:subscriptions"
	PermWritePayments      = "write:payments"
	PermReadNotifications  = "read:notifications"
	PermWriteNotifications = "write:notifications"
	PermReadExport         = "read:export"
)

var (
	errMissingKey       = errors.New("missing api key headers")
	errInvalidKey       = errors.New("invalid api key")
	errInvalidExtra     = errors.New("invalid extra header")
	errPermissionDenied = errors.New("permission denied")
	errRateLimit        = errors.New("rate limit exceeded")
)

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	enabled     bool
	headerKey   string
	headerExtra string
	clients     map[string]config.APIClientKey
	limiter     *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &HTTPAuth{
		enabled:     cfg.Auth.Enabled,
		headerKey:   headerName(cfg.Auth.HeaderAPIKey, "x-api-key"),
		headerExtra: headerName(cfg.Auth.HeaderExtra, "x-api-extra"),
		clients:     m,
		limiter:     newRateLimiter(cfg.RateLimit),
	}
}

func headerName(raw, fallback string) string {
	if h := strings.TrimSpace(strings.ToLower(raw)); h != "" {
		return h
	}
	return fallback
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if a.enabled {
			if err := a.checkAuth(r); err != nil {
				statusCode := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					statusCode = http.StatusForbidden
				}
				writeError(w, statusCode, err.Error())
				return
			}
		}

		if !a.limiter.Allow(a.clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errRateLimit.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkAuth(r *http.Request) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.headerKey))
	extra := strings.TrimSpace(r.Header.Get(a.headerExtra))
	if apiKey == "" || extra == "" {
		return errMissingKey
	}

	client, ok := a.clients[apiKey]
	if !ok {
		return errInvalidKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return errInvalidExtra
	}

	return checkPermissions(client, r)
}

// checkPermissions: пустой список прав у ключа разрешает все.
func checkPermissions(client config.APIClientKey, r *http.Request) error {
	required := requiredPermission(r)
	if required == "" || len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return nil
		}
	}
	return errPermissionDenied
}

func requiredPermission(r *http.Request) string {
	path := r.URL.Path
	write := r.Method != http.MethodGet && r.Method != http.MethodHead

	switch {
	case strings.HasPrefix(path, "/api/v1/admin/signals/export"):
		return PermReadExport
	case strings.HasPrefix(path, "/api/v1/admin/signals"):
		return PermWriteSignals
	case strings.HasPrefix(path, "/api/v1/admin/subscriptions"):
		return PermWriteSubscriptions
	case strings.HasPrefix(path, "/api/v1/signal-deliveries"):
		if write {
			return PermWriteSignals
		}
		return PermReadSignals
	case strings.HasPrefix(path, "/api/v1/signals"), strings.HasPrefix(path, "/api/v1/access"):
		return PermReadSignals
	case strings.HasPrefix(path, "/api/v1/subscriptions"):
		if write {
			return PermWriteSubscriptions
		}
		return PermReadUsers
	case strings.HasPrefix(path, "/api/v1/payments"):
		return PermWritePayments
	case strings.HasPrefix(path, "/api/v1/notifications"):
		if write {
			return PermWriteNotifications
		}
		return PermReadNotifications
	case strings.HasPrefix(path, "/api/v1/users"), strings.HasPrefix(path, "/api/v1/profiles"):
		if write {
			return PermWriteUsers
		}
		return PermReadUsers
	}
	return ""
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.headerKey)); apiKey != "" {
		return apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return "unknown"
}
