package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionInactive SubscriptionStatus = "inactive"
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionBanned   SubscriptionStatus = "banned"
)

// ParseSubscriptionStatus returns false for values outside the closed set.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, bool) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionInactive, SubscriptionTrial, SubscriptionActive, SubscriptionExpired, SubscriptionBanned:
		return st, true
	default:
		return "", false
	}
}

// Live reports whether the status grants access while the period lasts.
func (s SubscriptionStatus) Live() bool {
	return s == SubscriptionActive || s == SubscriptionTrial
}

const (
	SourceManual    = "manual"
	SourceAutomated = "automated"
	SourcePromo     = "promotional"
)

type Subscription struct {
	ID        int64              `json:"id"`
	UserID    int64              `json:"user_id"`
	PlanID    *int64             `json:"plan_id,omitempty"`
	Status    SubscriptionStatus `json:"status"`
	StartAt   *time.Time         `json:"start_at,omitempty"`
	EndAt     *time.Time         `json:"end_at,omitempty"`
	Source    string             `json:"source"`
	CreatedAt time.Time          `json:"created_at"`
}

// Ended is true when the end timestamp has passed at now.
func (s *Subscription) Ended(now time.Time) bool {
	return s.EndAt != nil && s.EndAt.Before(now)
}
