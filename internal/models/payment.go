package models

import "time"

// Payment уникален по паре (provider, tx_id).
type Payment struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Provider    string    `json:"provider"`
	TxID        string    `json:"tx_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type PaymentWebhook struct {
	UserID      int64  `json:"user_id,omitempty"`
	TgID        int64  `json:"tg_id,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Provider    string `json:"provider"`
	TxID        string `json:"tx_id"`
	Status      string `json:"status"`
}
