package service

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"signaldesk/internal/config"
	"signaldesk/internal/domain"
	"signaldesk/internal/models"
)

// ValidateSignalPayload checks the payload structure and direction geometry
// and returns the normalized signal. All comparisons are strict.
func ValidateSignalPayload(p *models.SignalPayload, rules config.SignalsConfig) (*models.Signal, error) {
	if p == nil {
		return nil, domain.InvalidPayload("payload", "required")
	}

	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, domain.InvalidPayload("symbol", "required")
	}
	if !slices.Contains(rules.AllowedDirections, p.Direction) {
		return nil, domain.InvalidPayload("direction", "allowed")
	}
	if !slices.Contains(rules.AllowedTimeframes, p.Timeframe) {
		return nil, domain.InvalidPayload("tf", "allowed")
	}

	// entry
	if p.Entry == nil {
		return nil, domain.InvalidPayload("entry", "required")
	}
	if p.Entry.Type != models.EntryTypeZone {
		return nil, domain.InvalidPayload("entry.type", "zone_required")
	}
	entryMin, okMin := toNumber(p.Entry.Min)
	entryMax, okMax := toNumber(p.Entry.Max)
	if !okMin || !okMax {
		return nil, domain.InvalidPayload("entry", "numeric_bounds")
	}
	if entryMin >= entryMax {
		return nil, domain.InvalidPayload("entry", "min_lt_max")
	}

	// SL
	if p.StopLoss == nil {
		return nil, domain.InvalidPayload("sl", "required")
	}
	sl, ok := toNumber(p.StopLoss)
	if !ok {
		return nil, domain.InvalidPayload("sl", "numeric")
	}

	// TPs, порядок сохраняем
	if len(p.TakeProfits) == 0 {
		return nil, domain.InvalidPayload("tps", "required")
	}
	tps := make([]float64, 0, len(p.TakeProfits))
	for _, raw := range p.TakeProfits {
		v, ok := toNumber(raw)
		if !ok {
			return nil, domain.InvalidPayload("tps", "numeric")
		}
		tps = append(tps, v)
	}

	switch p.Direction {
	case models.DirectionLong:
		if sl >= entryMin {
			return nil, domain.InvalidPayload("sl", "below_entry_min")
		}
		if slices.Min(tps) <= entryMax {
			return nil, domain.InvalidPayload("tps", "above_entry_max")
		}
	case models.DirectionShort:
		if sl <= entryMax {
			return nil, domain.InvalidPayload("sl", "above_entry_max")
		}
		if slices.Max(tps) >= entryMin {
			return nil, domain.InvalidPayload("tps", "below_entry_min")
		}
	}

	return &models.Signal{
		Market:      strings.TrimSpace(p.Market),
		Symbol:      symbol,
		Direction:   p.Direction,
		Timeframe:   p.Timeframe,
		Entry:       models.EntryZone{Type: models.EntryTypeZone, Min: entryMin, Max: entryMax},
		StopLoss:    sl,
		TakeProfits: tps,
		RiskRR:      p.RiskRR,
		Leverage:    p.Leverage,
		RiskPct:     p.RiskPct,
		Indicators:  p.Indicators,
		Comment:     strings.TrimSpace(p.Comment),
		ImageURL:    strings.TrimSpace(p.ImageURL),
	}, nil
}

// toNumber принимает число из JSON (float64 или json.Number), целые и числовые строки.
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
