package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/stackfin/paperbroker/internal/ledger"
	"github.com/stackfin/paperbroker/internal/quotes"
	"github.com/stackfin/paperbroker/libs/auth"
)

const (
	testSecret   = "wallet-test-secret"
	testStarting = 1_000_000
)

type stubSource struct {
	mu     sync.Mutex
	prices map[string]string
}

func (s *stubSource) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.prices[ticker]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", quotes.ErrPriceUnavailable, ticker)
	}
	return decimal.RequireFromString(raw), nil
}

func (s *stubSource) DailyCandles(ctx context.Context, ticker string, days int) ([]quotes.Candle, error) {
	return nil, fmt.Errorf("%w: %s", quotes.ErrPriceUnavailable, ticker)
}

func newTestRouter(prices map[string]string) (*gin.Engine, *ledger.MemoryStore) {
	gin.SetMode(gin.TestMode)
	store := ledger.NewMemoryStore()
	source := &stubSource{prices: prices}
	exec := ledger.NewExecutor(store, source, testStarting, nil, ledger.WithLockTimeout(time.Second))
	valuer := ledger.NewValuer(store, source, nil, nil)
	h := NewWalletHandler(exec, valuer, store, source, nil, testSecret)

	r := gin.New()
	h.RegisterRoutes(r)
	return r, store
}

func bearer(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.NewAccessToken(userID, []byte(testSecret), time.Hour, time.Now(), "test")
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	return "Bearer " + token
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBuyEndpoint(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "150.00"})
	token := bearer(t, 1)

	w := do(t, r, http.MethodPost, "/wallet/buy", token, gin.H{"ticker": "aapl", "quantity": "1.5"})
	if w.Code != http.StatusOK {
		t.Fatalf("buy status = %d, body %s", w.Code, w.Body)
	}
	var resp tradeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticker != "AAPL" {
		t.Fatalf("ticker not normalized: %s", resp.Ticker)
	}
	if resp.TotalCents != 22500 || resp.CashCents != testStarting-22500 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Cash != "9775.00" {
		t.Fatalf("cash = %s, want 9775.00", resp.Cash)
	}
}

func TestTradeRequiresAuth(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "150.00"})
	if w := do(t, r, http.MethodPost, "/wallet/buy", "", gin.H{"ticker": "AAPL", "quantity": "1"}); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestTradeErrorMapping(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "150.00"})
	token := bearer(t, 1)

	cases := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"malformed quantity", "/wallet/buy", gin.H{"ticker": "AAPL", "quantity": "abc"}, http.StatusBadRequest},
		{"zero quantity", "/wallet/buy", gin.H{"ticker": "AAPL", "quantity": "0"}, http.StatusBadRequest},
		{"missing fields", "/wallet/buy", gin.H{}, http.StatusBadRequest},
		{"insufficient funds", "/wallet/buy", gin.H{"ticker": "AAPL", "quantity": "100000"}, http.StatusUnprocessableEntity},
		{"insufficient holdings", "/wallet/sell", gin.H{"ticker": "AAPL", "quantity": "1"}, http.StatusUnprocessableEntity},
		{"price unavailable", "/wallet/buy", gin.H{"ticker": "NOPE", "quantity": "1"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		if w := do(t, r, http.MethodPost, tc.path, token, tc.body); w.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d (body %s)", tc.name, w.Code, tc.want, w.Body)
		}
	}
}

func TestValueEndpoint(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "150.00"})
	token := bearer(t, 1)

	if w := do(t, r, http.MethodGet, "/wallet/value", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("value before first trade status = %d, want 404", w.Code)
	}

	if w := do(t, r, http.MethodPost, "/wallet/buy", token, gin.H{"ticker": "AAPL", "quantity": "2"}); w.Code != http.StatusOK {
		t.Fatalf("buy status = %d", w.Code)
	}

	w := do(t, r, http.MethodGet, "/wallet/value", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("value status = %d, body %s", w.Code, w.Body)
	}
	var resp valueResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Cash != "7000.00" {
		t.Fatalf("cash = %s, want 7000.00", resp.Cash)
	}
	if len(resp.Holdings) != 1 || resp.Holdings[0].MarketValue != "300.00" {
		t.Fatalf("unexpected holdings: %+v", resp.Holdings)
	}
	if resp.Total != "7300.00" {
		t.Fatalf("total = %s, want 7300.00", resp.Total)
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "150.00"})
	token := bearer(t, 1)

	w := do(t, r, http.MethodGet, "/wallet/transactions", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transactions status = %d", w.Code)
	}
	var empty struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(empty.Transactions) != 0 {
		t.Fatalf("expected empty log, got %d", len(empty.Transactions))
	}

	do(t, r, http.MethodPost, "/wallet/buy", token, gin.H{"ticker": "AAPL", "quantity": "1"})
	do(t, r, http.MethodPost, "/wallet/sell", token, gin.H{"ticker": "AAPL", "quantity": "1"})

	w = do(t, r, http.MethodGet, "/wallet/transactions", token, nil)
	var resp struct {
		Transactions []ledger.Transaction `json:"transactions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Transactions) != 2 {
		t.Fatalf("expected 2 records, got %d", len(resp.Transactions))
	}
	if resp.Transactions[0].Side != ledger.SideBuy || resp.Transactions[1].Side != ledger.SideSell {
		t.Fatalf("records out of order: %+v", resp.Transactions)
	}
}

func TestLivePriceEndpoint(t *testing.T) {
	r, _ := newTestRouter(map[string]string{"AAPL": "189.955"})
	token := bearer(t, 1)

	w := do(t, r, http.MethodGet, "/wallet/live_price/aapl", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("live_price status = %d, body %s", w.Code, w.Body)
	}
	var resp struct {
		Ticker     string `json:"ticker"`
		Price      string `json:"price"`
		PriceCents int64  `json:"price_cents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticker != "AAPL" || resp.PriceCents != 18996 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if w := do(t, r, http.MethodGet, "/wallet/live_price/NOPE", token, nil); w.Code != http.StatusBadGateway {
		t.Fatalf("unknown ticker status = %d, want 502", w.Code)
	}
}
