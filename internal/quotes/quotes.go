// Package quotes supplies live and historical market prices. The ledger
// treats a price lookup as a single synchronous call: no caching, no retries.
package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrPriceUnavailable = errors.New("price unavailable")

// Candle is one daily OHLCV bar. Candles feed the indicator pipeline only;
// they never participate in a balance computation, so float64 is acceptable
// here.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type Source interface {
	// GetPrice returns the latest known price for a ticker or fails with
	// ErrPriceUnavailable.
	GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error)
	// DailyCandles returns up to the last `days` daily bars, oldest first.
	DailyCandles(ctx context.Context, ticker string, days int) ([]Candle, error)
}
