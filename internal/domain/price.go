package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a timestamped INR price observation for a symbol.
type PriceQuote struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.ObservedAt)
}
