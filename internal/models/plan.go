package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrialDays длительность пробного периода при ручной активации.
const TrialDays = 7

// DaysPerMonth используется при расчёте окончания подписки.
const DaysPerMonth = 30

type Plan struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code" yaml:"code"`
	Name   string          `json:"name" yaml:"name"`
	Months int             `json:"months" yaml:"months"`
	Price  decimal.Decimal `json:"price" yaml:"price"`
	Trial  bool            `json:"trial" yaml:"trial"`
}

// PeriodEnd: 30 дней за месяц, пробный тариф без месяцев длится TrialDays.
// nil означает, что у тарифа нет срока и подписку по нему выдать нельзя.
func (p *Plan) PeriodEnd(start time.Time) *time.Time {
	var end time.Time
	switch {
	case p.Months > 0:
		end = start.AddDate(0, 0, DaysPerMonth*p.Months)
	case p.Trial:
		end = start.AddDate(0, 0, TrialDays)
	default:
		return nil
	}
	return &end
}

// ActivationEnd is used by admin activation: trials last TrialDays.
func (p *Plan) ActivationEnd(start time.Time) *time.Time {
	if p.Trial {
		end := start.AddDate(0, 0, TrialDays)
		return &end
	}
	return p.PeriodEnd(start)
}

func (p *Plan) InitialStatus() SubscriptionStatus {
	if p.Trial {
		return SubscriptionTrial
	}
	return SubscriptionActive
}
