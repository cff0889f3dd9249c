package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"signaldesk/internal/domain"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// errorBody тело ответа при отказе, kind и детали позволяют клиенту
// показать осмысленное сообщение.
type errorBody struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
	Field      string `json:"field,omitempty"`
	Rule       string `json:"rule,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// writeDomainError maps the domain taxonomy onto status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	status, body := describeError(err)
	if body.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	}
	writeJSON(w, status, body)
}

func describeError(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var (
		forbidden *domain.ForbiddenError
		invalid   *domain.InvalidPayloadError
		limited   *domain.RateLimitedError
	)
	switch {
	case errors.As(err, &invalid):
		body.Kind, body.Field, body.Rule = "invalid_payload", invalid.Field, invalid.Rule
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrInvalidRequest):
		body.Kind = "invalid_request"
		return http.StatusBadRequest, body
	case errors.Is(err, domain.ErrNotFound):
		body.Kind = "not_found"
		return http.StatusNotFound, body
	case errors.As(err, &forbidden):
		body.Kind, body.Reason = "forbidden", string(forbidden.Reason)
		return http.StatusForbidden, body
	case errors.As(err, &limited):
		body.Kind, body.Reason, body.RetryAfter = "rate_limited", string(limited.Kind), limited.RetryAfterSeconds()
		return http.StatusTooManyRequests, body
	case errors.Is(err, domain.ErrDuplicate):
		body.Kind = "duplicate"
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrConflict):
		body.Kind = "conflict"
		return http.StatusConflict, body
	default:
		// внутренние детали наружу не отдаем
		return http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"}
	}
}

// decodeJSON reads a JSON body; numbers stay json.Number so numeric strings
// and numbers reach validation unchanged.
func decodeJSON(r *http.Request, dst any) error {
	return decodeRequest(r, dst, true)
}

// decodeWebhookJSON пропускает лишние поля: провайдеры платежей добавляют
// свои ключи в тело уведомления.
func decodeWebhookJSON(r *http.Request, dst any) error {
	return decodeRequest(r, dst, false)
}

func decodeRequest(r *http.Request, dst any, strict bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
