package indicators

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stackfin/paperbroker/internal/quotes"
)

type stubHistory struct {
	candles map[string][]quotes.Candle
	calls   map[string]int
}

func (s *stubHistory) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	return decimal.Zero, fmt.Errorf("%w: %s", quotes.ErrPriceUnavailable, ticker)
}

func (s *stubHistory) DailyCandles(ctx context.Context, ticker string, days int) ([]quotes.Candle, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[ticker]++
	candles, ok := s.candles[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", quotes.ErrPriceUnavailable, ticker)
	}
	return candles, nil
}

func trendCandles(n int, growth float64) []quotes.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]quotes.Candle, n)
	for i := range candles {
		c := 100 * math.Pow(growth, float64(i))
		candles[i] = quotes.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 500_000,
		}
	}
	return candles
}

func TestRowsCachesPerTicker(t *testing.T) {
	source := &stubHistory{candles: map[string][]quotes.Candle{"AAPL": trendCandles(60, 1.01)}}
	svc := NewService(source, []string{"aapl"}, 60, time.Hour, nil)
	ctx := context.Background()

	if _, err := svc.Rows(ctx, "AAPL"); err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if _, err := svc.Rows(ctx, "aapl "); err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if source.calls["AAPL"] != 1 {
		t.Fatalf("expected 1 history fetch, got %d", source.calls["AAPL"])
	}

	svc.Invalidate()
	if _, err := svc.Rows(ctx, "AAPL"); err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if source.calls["AAPL"] != 2 {
		t.Fatalf("expected refetch after Invalidate, got %d calls", source.calls["AAPL"])
	}
}

func TestTodayScoresRefreshAfterCacheExpiry(t *testing.T) {
	candles := trendCandles(60, 1.01)
	source := &stubHistory{candles: map[string][]quotes.Candle{"AAPL": candles}}
	svc := NewService(source, []string{"AAPL"}, 60, 10*time.Minute, nil)

	clock := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	scores, err := svc.TodayScores(context.Background())
	if err != nil {
		t.Fatalf("TodayScores: %v", err)
	}
	firstDate := scores[0].Date

	// A new trading day lands upstream.
	last := candles[len(candles)-1]
	source.candles["AAPL"] = append(candles, quotes.Candle{
		Timestamp: last.Timestamp.AddDate(0, 0, 1),
		Open:      last.Close, High: last.Close * 1.02, Low: last.Close * 0.99, Close: last.Close * 1.01,
		Volume: 500_000,
	})

	// Within the TTL the cached series is served as is.
	scores, err = svc.TodayScores(context.Background())
	if err != nil {
		t.Fatalf("TodayScores: %v", err)
	}
	if source.calls["AAPL"] != 1 {
		t.Fatalf("expected cached series within TTL, got %d fetches", source.calls["AAPL"])
	}

	clock = clock.Add(11 * time.Minute)
	scores, err = svc.TodayScores(context.Background())
	if err != nil {
		t.Fatalf("TodayScores: %v", err)
	}
	if source.calls["AAPL"] != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", source.calls["AAPL"])
	}
	if scores[0].Date == firstDate {
		t.Fatalf("latest score still dated %s after a new trading day", scores[0].Date)
	}
}

func TestTodayScoresRanksAndSkipsFailures(t *testing.T) {
	source := &stubHistory{candles: map[string][]quotes.Candle{
		"UP":   trendCandles(100, 1.01),
		"DOWN": trendCandles(100, 0.99),
	}}
	svc := NewService(source, []string{"UP", "DOWN", "MISSING"}, 100, time.Hour, nil)

	scores, err := svc.TodayScores(context.Background())
	if err != nil {
		t.Fatalf("TodayScores: %v", err)
	}
	if len(scores) != 2 {
		t.Fatalf("expected 2 scores (MISSING skipped), got %d", len(scores))
	}
	if scores[0].Ticker != "UP" {
		t.Fatalf("expected UP ranked first, got %s", scores[0].Ticker)
	}
}

func TestIndicatorRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	source := &stubHistory{candles: map[string][]quotes.Candle{"AAPL": trendCandles(60, 1.01)}}
	svc := NewService(source, []string{"AAPL"}, 60, time.Hour, nil)
	r := gin.New()
	svc.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickers", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("tickers status = %d", w.Code)
	}
	var listing struct {
		Tickers []string `json:"tickers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode tickers: %v", err)
	}
	if len(listing.Tickers) != 1 || listing.Tickers[0] != "AAPL" {
		t.Fatalf("unexpected tickers: %v", listing.Tickers)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickers/AAPL/indicators", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("indicators status = %d, body %s", w.Code, w.Body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tickers/NOPE/indicators", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown ticker status = %d, want 404", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/today_bullish", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("today_bullish status = %d", w.Code)
	}
}
