package models

import "time"

// SignalDelivery отметки доставки и просмотра сигнала пользователем.
type SignalDelivery struct {
	ID          int64      `json:"id"`
	SignalID    int64      `json:"signal_id"`
	UserID      int64      `json:"user_id"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	SeenAt      *time.Time `json:"seen_at,omitempty"`
	Signal      *Signal    `json:"signal,omitempty"`
}
