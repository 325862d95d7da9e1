package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stackfin/paperbroker/internal/money"
	"github.com/stackfin/paperbroker/internal/quotes"
	"github.com/stackfin/paperbroker/libs/kafka"
)

// Executor runs buy and sell orders against the ledger. A trade either
// commits fully (cash, holding, and transaction record together) or leaves
// the wallet untouched.
type Executor struct {
	store         Store
	source        quotes.Source
	publisher     kafka.Publisher
	logger        *slog.Logger
	metrics       *Metrics
	startingCents int64
	lockTimeout   time.Duration
}

type ExecutorOption func(*Executor)

func WithPublisher(pub kafka.Publisher) ExecutorOption {
	return func(e *Executor) { e.publisher = pub }
}

func WithMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

func WithLockTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.lockTimeout = d }
}

func NewExecutor(store Store, source quotes.Source, startingCents int64, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		store:         store,
		source:        source,
		logger:        logger,
		startingCents: startingCents,
		lockTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Buy purchases quantity shares of ticker at the current market price,
// debiting the wallet's cash. Rejected with ErrInsufficientFunds when cash
// cannot cover the total; rejections leave no trace in the ledger.
func (e *Executor) Buy(ctx context.Context, userID int64, ticker string, quantity decimal.Decimal) (TradeResult, error) {
	return e.execute(ctx, userID, ticker, quantity, SideBuy)
}

// Sell disposes of quantity shares of ticker at the current market price,
// crediting the wallet's cash. Rejected with ErrInsufficientHoldings when the
// position is absent or too small. Selling a position down to zero (or below
// the ledger's precision) deletes the holding row.
func (e *Executor) Sell(ctx context.Context, userID int64, ticker string, quantity decimal.Decimal) (TradeResult, error) {
	return e.execute(ctx, userID, ticker, quantity, SideSell)
}

func (e *Executor) execute(ctx context.Context, userID int64, ticker string, quantity decimal.Decimal, side Side) (TradeResult, error) {
	start := time.Now()
	result, err := e.run(ctx, userID, ticker, quantity, side)
	e.metrics.observeTrade(side, statusFor(err), time.Since(start).Seconds())
	if err != nil {
		return TradeResult{}, err
	}

	e.logger.Info("trade executed",
		"user_id", userID,
		"wallet_id", result.Transaction.WalletID,
		"ticker", ticker,
		"side", side,
		"quantity", quantity.String(),
		"price_cents", result.Transaction.PriceCents,
		"total_cents", result.Transaction.TotalCents,
	)
	e.publish(ctx, userID, result)
	return result, nil
}

func (e *Executor) run(ctx context.Context, userID int64, ticker string, quantity decimal.Decimal, side Side) (TradeResult, error) {
	if ticker == "" {
		return TradeResult{}, fmt.Errorf("%w: ticker is required", money.ErrInvalidAmount)
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return TradeResult{}, fmt.Errorf("%w: quantity must be positive", money.ErrInvalidAmount)
	}

	// Fetch the price before taking any locks; a slow quote source must not
	// extend lock hold time.
	price, err := e.source.GetPrice(ctx, ticker)
	if err != nil {
		return TradeResult{}, err
	}
	priceCents, err := money.ToCents(price)
	if err != nil {
		return TradeResult{}, err
	}
	totalCents := money.Total(priceCents, quantity)

	wallet, err := e.store.GetOrCreateWallet(ctx, userID, e.startingCents)
	if err != nil {
		return TradeResult{}, err
	}

	var result TradeResult
	err = e.store.WithWalletLock(ctx, wallet.ID, e.lockTimeout, func(tx Tx) error {
		locked, err := tx.Wallet(ctx)
		if err != nil {
			return err
		}

		switch side {
		case SideBuy:
			return e.applyBuy(ctx, tx, locked, ticker, quantity, priceCents, totalCents, &result)
		case SideSell:
			return e.applySell(ctx, tx, locked, ticker, quantity, priceCents, totalCents, &result)
		default:
			return fmt.Errorf("%w: unknown side %q", money.ErrInvalidAmount, side)
		}
	})
	if err != nil {
		return TradeResult{}, err
	}
	return result, nil
}

func (e *Executor) applyBuy(ctx context.Context, tx Tx, wallet Wallet, ticker string, quantity decimal.Decimal, priceCents, totalCents int64, result *TradeResult) error {
	if wallet.CashCents < totalCents {
		return fmt.Errorf("%w: have %d cents, need %d", ErrInsufficientFunds, wallet.CashCents, totalCents)
	}

	newCash := wallet.CashCents - totalCents
	if err := tx.UpdateCash(ctx, newCash); err != nil {
		return err
	}

	holding, err := tx.Holding(ctx, ticker)
	if err != nil {
		return err
	}
	newQty := quantity
	if holding != nil {
		newQty = holding.Quantity.Add(quantity)
	}
	if err := tx.UpsertHolding(ctx, Holding{WalletID: wallet.ID, Ticker: ticker, Quantity: newQty}); err != nil {
		return err
	}

	return e.record(ctx, tx, wallet.ID, ticker, SideBuy, quantity, priceCents, totalCents, newCash, result)
}

func (e *Executor) applySell(ctx context.Context, tx Tx, wallet Wallet, ticker string, quantity decimal.Decimal, priceCents, totalCents int64, result *TradeResult) error {
	holding, err := tx.Holding(ctx, ticker)
	if err != nil {
		return err
	}
	if holding == nil || holding.Quantity.LessThan(quantity) {
		have := decimal.Zero
		if holding != nil {
			have = holding.Quantity
		}
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientHoldings, have, quantity)
	}

	newCash := wallet.CashCents + totalCents
	if err := tx.UpdateCash(ctx, newCash); err != nil {
		return err
	}

	remaining := holding.Quantity.Sub(quantity)
	if remaining.LessThanOrEqual(decimal.Zero) {
		// Exhausted positions are removed entirely; a later re-buy starts a
		// fresh row.
		if err := tx.DeleteHolding(ctx, ticker); err != nil {
			return err
		}
	} else {
		if err := tx.UpsertHolding(ctx, Holding{WalletID: wallet.ID, Ticker: ticker, Quantity: remaining}); err != nil {
			return err
		}
	}

	return e.record(ctx, tx, wallet.ID, ticker, SideSell, quantity, priceCents, totalCents, newCash, result)
}

func (e *Executor) record(ctx context.Context, tx Tx, walletID int64, ticker string, side Side, quantity decimal.Decimal, priceCents, totalCents, newCash int64, result *TradeResult) error {
	record := Transaction{
		WalletID:   walletID,
		Ticker:     ticker,
		Side:       side,
		Quantity:   quantity,
		PriceCents: priceCents,
		TotalCents: totalCents,
	}
	if err := tx.AppendTransaction(ctx, &record); err != nil {
		return err
	}
	result.Transaction = record
	result.CashCents = newCash
	return nil
}

// publish emits a trade.executed event after commit. Failures are logged and
// swallowed: the ledger is the source of truth, not the event stream.
func (e *Executor) publish(ctx context.Context, userID int64, result TradeResult) {
	if e.publisher == nil {
		return
	}
	event, err := newTradeExecutedEvent(userID, result, correlationIDFrom(ctx))
	if err != nil {
		e.logger.Error("build trade event", "error", err)
		return
	}
	if err := publishTrade(ctx, e.publisher, event); err != nil {
		e.logger.Error("publish trade event",
			"error", err,
			"wallet_id", result.Transaction.WalletID,
			"transaction_id", result.Transaction.ID,
		)
	}
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return "committed"
	case isRejection(err):
		return "rejected"
	default:
		return "aborted"
	}
}

func isRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientHoldings) ||
		errors.Is(err, money.ErrInvalidAmount)
}
