package models

import "time"

const (
	NotificationNewSignal             = "new_signal"
	NotificationSignalDelivered       = "signal_delivered"
	NotificationSubscriptionActivated = "subscription_activated"
)

type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
