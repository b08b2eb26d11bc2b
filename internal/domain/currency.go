package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate — запись курса: 1 Base = Rate Target. Записи только добавляются.
type ExchangeRate struct {
	ID         int64
	Base       string
	Target     string
	Rate       decimal.Decimal
	Source     string
	CapturedAt time.Time
}

// NormalizeCurrency приводит код валюты к верхнему регистру.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Pair возвращает пару в виде USD/HKD.
func (r ExchangeRate) Pair() string {
	return r.Base + "/" + r.Target
}
