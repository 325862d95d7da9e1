package indicators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stackfin/paperbroker/internal/quotes"
)

var ErrUnknownTicker = errors.New("unknown ticker")

const defaultCacheTTL = 15 * time.Minute

// Service computes indicator rows on demand for a fixed ticker universe.
// Computed series are cached per ticker and recomputed from fresh candles
// once they are older than the cache TTL, so rankings pick up new trading
// days without a fetch per request.
type Service struct {
	source  quotes.Source
	tickers []string
	history int
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	rows    []Row
	fetched time.Time
}

func NewService(source quotes.Source, tickers []string, historyDays int, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if historyDays <= 0 {
		historyDays = 365
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	normalized := make([]string, len(tickers))
	for i, t := range tickers {
		normalized[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	sort.Strings(normalized)
	return &Service{
		source:  source,
		tickers: normalized,
		history: historyDays,
		ttl:     cacheTTL,
		logger:  logger,
		now:     time.Now,
		cache:   map[string]cacheEntry{},
	}
}

func (s *Service) Tickers() []string {
	out := make([]string, len(s.tickers))
	copy(out, s.tickers)
	return out
}

func (s *Service) knows(ticker string) bool {
	for _, t := range s.tickers {
		if t == ticker {
			return true
		}
	}
	return false
}

// Rows returns the indicator series for one ticker, computing it from daily
// candles on first use and again once the cached series goes stale.
func (s *Service) Rows(ctx context.Context, ticker string) ([]Row, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !s.knows(ticker) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, ticker)
	}

	now := s.now()
	s.mu.Lock()
	e, ok := s.cache[ticker]
	s.mu.Unlock()
	if ok && now.Sub(e.fetched) < s.ttl {
		return e.rows, nil
	}

	candles, err := s.source.DailyCandles(ctx, ticker, s.history)
	if err != nil {
		return nil, err
	}
	rows := Compute(candles)

	s.mu.Lock()
	s.cache[ticker] = cacheEntry{rows: rows, fetched: now}
	s.mu.Unlock()
	return rows, nil
}

// Invalidate drops cached rows so the next read recomputes from fresh
// candles.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = map[string]cacheEntry{}
	s.mu.Unlock()
}

// TickerScore is the latest bullish score for one ticker.
type TickerScore struct {
	Ticker string `json:"ticker"`
	Row
}

// TodayScores returns the most recent score per ticker, highest first.
// Tickers whose history cannot be fetched are skipped with a log line rather
// than failing the whole ranking.
func (s *Service) TodayScores(ctx context.Context) ([]TickerScore, error) {
	scores := make([]TickerScore, 0, len(s.tickers))
	for _, ticker := range s.tickers {
		rows, err := s.Rows(ctx, ticker)
		if err != nil {
			s.logger.Warn("skipping ticker in ranking", "ticker", ticker, "error", err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		scores = append(scores, TickerScore{Ticker: ticker, Row: rows[len(rows)-1]})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].BullishScore > scores[j].BullishScore })
	return scores, nil
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/tickers", s.handleTickers)
	r.GET("/tickers/:ticker/indicators", s.handleIndicators)
	r.GET("/today_bullish", s.handleTodayBullish)
}

func (s *Service) handleTickers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tickers": s.Tickers()})
}

func (s *Service) handleIndicators(c *gin.Context) {
	rows, err := s.Rows(c.Request.Context(), c.Param("ticker"))
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownTicker):
			c.JSON(http.StatusNotFound, errorResponse{Code: "UNKNOWN_TICKER", Message: err.Error()})
		case errors.Is(err, quotes.ErrPriceUnavailable):
			c.JSON(http.StatusBadGateway, errorResponse{Code: "PRICE_UNAVAILABLE", Message: "history unavailable"})
		default:
			s.logger.Error("indicator computation failed", "error", err)
			c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": strings.ToUpper(c.Param("ticker")), "rows": rows})
}

func (s *Service) handleTodayBullish(c *gin.Context) {
	scores, err := s.TodayScores(c.Request.Context())
	if err != nil {
		s.logger.Error("ranking failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL_ERROR", Message: "internal error"})
		return
	}
	c.JSON(http.StatusOK, scores)
}
