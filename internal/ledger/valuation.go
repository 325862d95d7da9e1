package ledger

import (
	"context"
	"log/slog"

	"github.com/stackfin/paperbroker/internal/money"
	"github.com/stackfin/paperbroker/internal/quotes"
)

// Valuer prices wallets at current quotes. It never takes wallet locks: a
// valuation is a read-only snapshot and may race with in-flight trades.
type Valuer struct {
	store   Store
	source  quotes.Source
	logger  *slog.Logger
	metrics *Metrics
}

func NewValuer(store Store, source quotes.Source, logger *slog.Logger, metrics *Metrics) *Valuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Valuer{store: store, source: source, logger: logger, metrics: metrics}
}

// ValueWallet prices every open position and returns cash plus market value.
// If any position's price is unavailable the whole valuation fails; a partial
// total would be misleading.
func (v *Valuer) ValueWallet(ctx context.Context, userID int64) (Valuation, error) {
	wallet, err := v.store.WalletByUser(ctx, userID)
	if err != nil {
		v.metrics.observeValuation("error")
		return Valuation{}, err
	}

	holdings, err := v.store.Holdings(ctx, wallet.ID)
	if err != nil {
		v.metrics.observeValuation("error")
		return Valuation{}, err
	}

	cash := money.CentsToDollars(wallet.CashCents)
	valuation := Valuation{
		WalletID:  wallet.ID,
		CashCents: wallet.CashCents,
		Cash:      cash,
		Holdings:  make([]HoldingValue, 0, len(holdings)),
		Total:     cash,
	}

	for _, h := range holdings {
		price, err := v.source.GetPrice(ctx, h.Ticker)
		if err != nil {
			v.metrics.observeValuation("error")
			return Valuation{}, err
		}
		value := h.Quantity.Mul(price).Round(2)
		valuation.Holdings = append(valuation.Holdings, HoldingValue{
			Ticker:      h.Ticker,
			Quantity:    h.Quantity,
			Price:       price,
			MarketValue: value,
		})
		valuation.Total = valuation.Total.Add(value)
	}

	v.metrics.observeValuation("success")
	return valuation, nil
}
