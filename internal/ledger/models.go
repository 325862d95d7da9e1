// Package ledger is the book of record for simulated brokerage accounts. All
// cash is held as integer cents; share quantities are exact decimals. Trades
// mutate a wallet only inside a transaction that holds the wallet row lock,
// so every committed state is reachable by replaying the transaction log.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type Wallet struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	CashCents int64     `json:"cash_cents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Holding struct {
	ID       int64           `json:"id"`
	WalletID int64           `json:"wallet_id"`
	Ticker   string          `json:"ticker"`
	Quantity decimal.Decimal `json:"quantity"`
}

type Transaction struct {
	ID         int64           `json:"id"`
	WalletID   int64           `json:"wallet_id"`
	Ticker     string          `json:"ticker"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	PriceCents int64           `json:"price_cents"`
	TotalCents int64           `json:"total_cents"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TradeResult reports the outcome of a committed trade.
type TradeResult struct {
	Transaction Transaction `json:"transaction"`
	CashCents   int64       `json:"cash_cents"`
}

// HoldingValue is one position priced at the current market.
type HoldingValue struct {
	Ticker      string          `json:"ticker"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// Valuation is a point-in-time snapshot of a wallet priced at current
// quotes. Cash is exact; position values are informational and quantized to
// two decimal places.
type Valuation struct {
	WalletID  int64           `json:"wallet_id"`
	CashCents int64           `json:"cash_cents"`
	Cash      decimal.Decimal `json:"cash"`
	Holdings  []HoldingValue  `json:"holdings"`
	Total     decimal.Decimal `json:"total"`
}
