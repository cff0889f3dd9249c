package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrRateLimited    = errors.New("rate limited")
	ErrDuplicate      = errors.New("duplicate signal")
	ErrConflict       = errors.New("conflicting signal")
	ErrDataCorruption = errors.New("data corruption")
)

type ForbiddenReason string

const (
	ReasonBanned         ForbiddenReason = "banned"
	ReasonNoSubscription ForbiddenReason = "no_subscription"
	ReasonExpired        ForbiddenReason = "expired"
	ReasonNotAdmin       ForbiddenReason = "not_admin"
)

type ForbiddenError struct {
	Reason ForbiddenReason
}

func (e *ForbiddenError) Error() string {
	switch e.Reason {
	case ReasonBanned:
		return "forbidden: user is banned"
	case ReasonNoSubscription:
		return "forbidden: no active subscription"
	case ReasonExpired:
		return "forbidden: subscription expired"
	case ReasonNotAdmin:
		return "forbidden: not enough permissions"
	default:
		return "forbidden: " + string(e.Reason)
	}
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

func Forbidden(reason ForbiddenReason) error {
	return &ForbiddenError{Reason: reason}
}

// InvalidPayloadError names the field and the rule it broke.
type InvalidPayloadError struct {
	Field string
	Rule  string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid payload: %s: %s", e.Field, e.Rule)
}

func (e *InvalidPayloadError) Is(target error) bool { return target == ErrInvalidPayload }

func InvalidPayload(field, rule string) error {
	return &InvalidPayloadError{Field: field, Rule: rule}
}

type RateLimitKind string

const (
	LimitGlobalCooldown RateLimitKind = "global_cooldown"
	LimitSymbolCooldown RateLimitKind = "symbol_cooldown"
	LimitAdminDaily     RateLimitKind = "admin_daily"
	LimitSymbolDaily    RateLimitKind = "symbol_daily"
)

type RateLimitedError struct {
	Kind       RateLimitKind
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s, retry after %ds", e.Kind, e.RetryAfterSeconds())
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RetryAfterSeconds rounds up, so a positive wait is never reported as 0.
func (e *RateLimitedError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

func RateLimited(kind RateLimitKind, retryAfter time.Duration) error {
	return &RateLimitedError{Kind: kind, RetryAfter: retryAfter}
}
