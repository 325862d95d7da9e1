package ledger

import (
	"context"
	"strconv"

	"github.com/stackfin/paperbroker/libs/kafka"
)

const (
	TopicTrades        = "paperbroker.trades"
	EventTradeExecuted = "trade.executed"
)

type ctxKey int

const correlationKey ctxKey = iota

// ContextWithCorrelationID tags a context so events published for work done
// under it carry the originating request ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey, id)
}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey).(string)
	return id
}

// TradeExecutedEvent is published after a trade commits. Publishing is best
// effort; a broker outage never unwinds a committed trade.
type TradeExecutedEvent struct {
	kafka.Envelope
	WalletID   int64  `json:"wallet_id"`
	UserID     int64  `json:"user_id"`
	Ticker     string `json:"ticker"`
	Side       Side   `json:"side"`
	Quantity   string `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
	TotalCents int64  `json:"total_cents"`
	CashCents  int64  `json:"cash_cents"`
}

func newTradeExecutedEvent(userID int64, result TradeResult, correlationID string) (TradeExecutedEvent, error) {
	env, err := kafka.NewEnvelope(EventTradeExecuted, 1, correlationID)
	if err != nil {
		return TradeExecutedEvent{}, err
	}
	tx := result.Transaction
	return TradeExecutedEvent{
		Envelope:   env,
		WalletID:   tx.WalletID,
		UserID:     userID,
		Ticker:     tx.Ticker,
		Side:       tx.Side,
		Quantity:   tx.Quantity.String(),
		PriceCents: tx.PriceCents,
		TotalCents: tx.TotalCents,
		CashCents:  result.CashCents,
	}, nil
}

func publishTrade(ctx context.Context, pub kafka.Publisher, event TradeExecutedEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	// Key by wallet so a wallet's trades stay ordered within a partition.
	_, _, err := pub.PublishJSON(ctx, TopicTrades, strconv.FormatInt(event.WalletID, 10), event)
	return err
}
