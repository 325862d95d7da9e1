package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/stackfin/paperbroker/internal/quotes"
)

func TestValueWallet(t *testing.T) {
	exec, store, source := newTestExecutor(map[string]string{"AAPL": "150.00", "MSFT": "400.00"})
	ctx := context.Background()

	if _, err := exec.Buy(ctx, 1, "AAPL", decimal.RequireFromString("1.5")); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if _, err := exec.Buy(ctx, 1, "MSFT", decimal.RequireFromString("0.25")); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	// Prices move after the trades; valuation uses current quotes.
	source.setPrice("AAPL", "151.333")

	valuer := NewValuer(store, source, nil, nil)
	valuation, err := valuer.ValueWallet(ctx, 1)
	if err != nil {
		t.Fatalf("ValueWallet: %v", err)
	}

	// Cash: 1,000,000 - 22,500 (AAPL) - 10,000 (MSFT) = 967,500 cents.
	if valuation.CashCents != 967500 {
		t.Fatalf("cash = %d, want 967500", valuation.CashCents)
	}
	if len(valuation.Holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(valuation.Holdings))
	}

	// Holdings are ordered by ticker: AAPL then MSFT.
	aapl := valuation.Holdings[0]
	if aapl.Ticker != "AAPL" {
		t.Fatalf("expected AAPL first, got %s", aapl.Ticker)
	}
	// 1.5 x 151.333 = 226.9995, quantized to 227.00.
	if !aapl.MarketValue.Equal(decimal.RequireFromString("227.00")) {
		t.Fatalf("AAPL market value = %s, want 227.00", aapl.MarketValue)
	}
	msft := valuation.Holdings[1]
	// 0.25 x 400.00 = 100.00.
	if !msft.MarketValue.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("MSFT market value = %s, want 100.00", msft.MarketValue)
	}

	want := decimal.RequireFromString("9675.00").
		Add(decimal.RequireFromString("227.00")).
		Add(decimal.RequireFromString("100.00"))
	if !valuation.Total.Equal(want) {
		t.Fatalf("total = %s, want %s", valuation.Total, want)
	}
}

func TestValueWalletFailsWhenAnyPriceUnavailable(t *testing.T) {
	exec, store, source := newTestExecutor(map[string]string{"AAPL": "150.00", "MSFT": "400.00"})
	ctx := context.Background()

	if _, err := exec.Buy(ctx, 1, "AAPL", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Buy: %v", err)
	}
	if _, err := exec.Buy(ctx, 1, "MSFT", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("Buy: %v", err)
	}

	source.mu.Lock()
	delete(source.prices, "MSFT")
	source.mu.Unlock()

	valuer := NewValuer(store, source, nil, nil)
	if _, err := valuer.ValueWallet(ctx, 1); !errors.Is(err, quotes.ErrPriceUnavailable) {
		t.Fatalf("expected ErrPriceUnavailable, got %v", err)
	}
}

func TestValueWalletUnknownUser(t *testing.T) {
	store := NewMemoryStore()
	valuer := NewValuer(store, &stubSource{prices: map[string]string{}}, nil, nil)
	if _, err := valuer.ValueWallet(context.Background(), 99); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestValueWalletEmptyHoldings(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.GetOrCreateWallet(ctx, 1, 123456); err != nil {
		t.Fatalf("GetOrCreateWallet: %v", err)
	}

	valuer := NewValuer(store, &stubSource{prices: map[string]string{}}, nil, nil)
	valuation, err := valuer.ValueWallet(ctx, 1)
	if err != nil {
		t.Fatalf("ValueWallet: %v", err)
	}
	if !valuation.Total.Equal(decimal.RequireFromString("1234.56")) {
		t.Fatalf("total = %s, want 1234.56", valuation.Total)
	}
	if len(valuation.Holdings) != 0 {
		t.Fatalf("expected no holdings, got %+v", valuation.Holdings)
	}
}
