package app

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the outcome a trade was placed on.
type Side string

const (
	SideYes     Side = "YES"
	SideNo      Side = "NO"
	SideUnknown Side = "UNKNOWN"
)

// TradeEvent is the canonical form every detector consumes, regardless of
// which feed shape the record arrived in.
type TradeEvent struct {
	Identity   string
	MarketID   string
	Wallet     string
	Side       Side
	Amount     decimal.Decimal
	Price      decimal.NullDecimal
	ExecutedAt time.Time
}
