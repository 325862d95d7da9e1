package ledger

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	TradesTotal     *prometheus.CounterVec
	TradeDuration   *prometheus.HistogramVec
	ValuationsTotal *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_trades_total",
				Help: "Trades by side and outcome.",
			},
			[]string{"side", "status"},
		),
		TradeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_trade_duration_seconds",
				Help:    "Trade execution latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"side"},
		),
		ValuationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_valuations_total",
				Help: "Wallet valuations by outcome.",
			},
			[]string{"status"},
		),
	}
	registry.MustRegister(m.TradesTotal, m.TradeDuration, m.ValuationsTotal)
	return m
}

func (m *Metrics) observeTrade(side Side, status string, seconds float64) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(string(side), status).Inc()
	m.TradeDuration.WithLabelValues(string(side)).Observe(seconds)
}

func (m *Metrics) observeValuation(status string) {
	if m == nil {
		return
	}
	m.ValuationsTotal.WithLabelValues(status).Inc()
}
