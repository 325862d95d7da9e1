package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Client fetches quotes from a Yahoo-chart-shaped HTTP endpoint
// (GET {base}/v8/finance/chart/{ticker}).
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	RequestLatency prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quote_requests_total",
				Help: "Total quote source requests.",
			},
			[]string{"status"},
		),
		RequestLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quote_request_duration_seconds",
				Help:    "Quote source request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	registry.MustRegister(m.RequestsTotal, m.RequestLatency)
	return m
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// chartResponse mirrors the subset of the chart payload we read. Prices are
// decoded as json.Number so they reach decimal without a float64 round trip.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) GetPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	resp, err := c.fetchChart(ctx, ticker, "1d")
	if err != nil {
		return decimal.Zero, err
	}

	raw := resp.Chart.Result[0].Meta.RegularMarketPrice.String()
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: malformed price %q", ErrPriceUnavailable, ticker, raw)
	}
	if price.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: %s: non-positive price %s", ErrPriceUnavailable, ticker, price)
	}
	return price, nil
}

func (c *Client) DailyCandles(ctx context.Context, ticker string, days int) ([]Candle, error) {
	if days <= 0 {
		days = 365
	}
	resp, err := c.fetchChart(ctx, ticker, rangeForDays(days))
	if err != nil {
		return nil, err
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s: no quote series", ErrPriceUnavailable, ticker)
	}
	quote := result.Indicators.Quote[0]

	candles := make([]Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		candles = append(candles, Candle{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     quote.Close[i],
			Volume:    at(quote.Volume, i),
		})
	}
	if len(candles) > days {
		candles = candles[len(candles)-days:]
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s: empty history", ErrPriceUnavailable, ticker)
	}
	return candles, nil
}

func (c *Client) fetchChart(ctx context.Context, ticker, dataRange string) (*chartResponse, error) {
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", ErrPriceUnavailable)
	}

	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		c.baseURL, url.PathEscape(ticker), dataRange)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, ticker, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RequestLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.observe("error")
		return nil, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, ticker, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		c.observe("error")
		return nil, fmt.Errorf("%w: %s: status %d", ErrPriceUnavailable, ticker, httpResp.StatusCode)
	}

	dec := json.NewDecoder(httpResp.Body)
	dec.UseNumber()
	var resp chartResponse
	if err := dec.Decode(&resp); err != nil {
		c.observe("error")
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrPriceUnavailable, ticker, err)
	}

	if resp.Chart.Error != nil {
		c.observe("error")
		return nil, fmt.Errorf("%w: %s: %s", ErrPriceUnavailable, ticker, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		c.observe("error")
		return nil, fmt.Errorf("%w: %s: no data", ErrPriceUnavailable, ticker)
	}

	c.observe("success")
	return &resp, nil
}

func (c *Client) observe(status string) {
	if c.metrics != nil {
		c.metrics.RequestsTotal.WithLabelValues(status).Inc()
	}
}

func at(series []float64, i int) float64 {
	if i < len(series) {
		return series[i]
	}
	return 0
}

func rangeForDays(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 30:
		return "1mo"
	case days <= 90:
		return "3mo"
	case days <= 365:
		return "1y"
	default:
		return "2y"
	}
}
