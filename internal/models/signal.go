package models

import "time"

const (
	DirectionLong  = "long"
	DirectionShort = "short"

	EntryTypeZone = "zone"
)

// EntryZone зона входа {min, max}.
type EntryZone struct {
	Type string  `json:"type"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Overlaps treats touching bounds as overlap.
func (z EntryZone) Overlaps(o EntryZone) bool {
	if z.Type != EntryTypeZone || o.Type != EntryTypeZone {
		return false
	}
	return max(z.Min, o.Min) <= min(z.Max, o.Max)
}

type Signal struct {
	ID          int64          `json:"id"`
	Market      string         `json:"market"`
	Symbol      string         `json:"symbol"`
	Direction   string         `json:"direction"`
	Timeframe   string         `json:"tf"`
	Entry       EntryZone      `json:"entry"`
	StopLoss    float64        `json:"sl"`
	TakeProfits []float64      `json:"tps"`
	RiskRR      *float64       `json:"risk_rr,omitempty"`
	Leverage    *float64       `json:"leverage,omitempty"`
	RiskPct     *float64       `json:"risk_pct,omitempty"`
	Indicators  map[string]any `json:"indicators,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	CreatedBy   int64          `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SameContent compares everything the duplicate rule looks at.
// Take-profits are compared positionally.
func (s *Signal) SameContent(o *Signal) bool {
	if s.Market != o.Market || s.Symbol != o.Symbol || s.Timeframe != o.Timeframe || s.Direction != o.Direction {
		return false
	}
	if s.Entry.Type != EntryTypeZone || o.Entry.Type != EntryTypeZone {
		return false
	}
	if s.Entry.Min != o.Entry.Min || s.Entry.Max != o.Entry.Max {
		return false
	}
	if s.StopLoss != o.StopLoss {
		return false
	}
	if len(s.TakeProfits) == 0 || len(s.TakeProfits) != len(o.TakeProfits) {
		return false
	}
	for i := range s.TakeProfits {
		if s.TakeProfits[i] != o.TakeProfits[i] {
			return false
		}
	}
	return true
}

// SignalPayload входящий сигнал от администратора до валидации.
// Числовые поля принимают number или числовую строку.
type SignalPayload struct {
	Market      string         `json:"market"`
	Symbol      string         `json:"symbol"`
	Direction   string         `json:"direction"`
	Timeframe   string         `json:"tf"`
	Entry       *EntryPayload  `json:"entry"`
	StopLoss    any            `json:"sl"`
	TakeProfits []any          `json:"tps"`
	RiskRR      *float64       `json:"risk_rr,omitempty"`
	Leverage    *float64       `json:"leverage,omitempty"`
	RiskPct     *float64       `json:"risk_pct,omitempty"`
	Indicators  map[string]any `json:"indicators,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
}

type EntryPayload struct {
	Type string `json:"type"`
	Min  any    `json:"min"`
	Max  any    `json:"max"`
}

type SignalFilter struct {
	Market    string
	Symbol    string
	Timeframe string
	Limit     int
}
