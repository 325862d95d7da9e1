package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPublishTradeRejectsInvalidEnvelope(t *testing.T) {
	pub := &recordingPublisher{}

	// Zero envelope, as if the event skipped newTradeExecutedEvent.
	err := publishTrade(context.Background(), pub, TradeExecutedEvent{WalletID: 1})
	if err == nil {
		t.Fatal("expected validation error for empty envelope")
	}
	if len(pub.values) != 0 {
		t.Fatalf("invalid event was published: %+v", pub.values)
	}
}

func TestNewTradeExecutedEventIsValid(t *testing.T) {
	result := TradeResult{
		Transaction: Transaction{
			ID:         1,
			WalletID:   2,
			Ticker:     "AAPL",
			Side:       SideBuy,
			Quantity:   decimal.NewFromInt(1),
			PriceCents: 15000,
			TotalCents: 15000,
		},
		CashCents: 985000,
	}

	event, err := newTradeExecutedEvent(7, result, "req-123")
	if err != nil {
		t.Fatalf("newTradeExecutedEvent: %v", err)
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if event.CorrelationID != "req-123" {
		t.Fatalf("correlation_id = %q", event.CorrelationID)
	}
}
