package models

import "time"

type Profile struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	ExchangeUIDs  map[string]string `json:"exchange_uids"`
	APIKeys       map[string]string `json:"api_keys"`
	Notifications map[string]bool   `json:"notifications"`
	Favorites     []string          `json:"favorites"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// ProfileUpdate nil fields are left untouched.
type ProfileUpdate struct {
	ExchangeUIDs  map[string]string `json:"exchange_uids,omitempty"`
	APIKeys       map[string]string `json:"api_keys,omitempty"`
	Notifications map[string]bool   `json:"notifications,omitempty"`
	Favorites     []string          `json:"favorites,omitempty"`
}
