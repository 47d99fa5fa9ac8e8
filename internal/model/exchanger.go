package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchanger is a physical exchange office with admin-entered rates.
type Exchanger struct {
	ID       int64
	Name     string
	Address  string
	District string
	Phone    string
	Lat      float64
	Lon      float64
	Rates    map[Currency]ExchangerRate
}

// ExchangerRate is the last rate an admin entered for one currency.
type ExchangerRate struct {
	Buy       decimal.Decimal
	Sell      decimal.Decimal
	UpdatedAt time.Time
}
