// Package indicators computes daily momentum indicators and a composite
// bullish score per ticker. Scores are analytics, not money: float64
// throughout.
package indicators

import (
	"math"
	"time"

	"github.com/stackfin/paperbroker/internal/quotes"
)

// Row is one day of normalized indicators for a ticker.
type Row struct {
	Date            string    `json:"date"`
	Timestamp       time.Time `json:"timestamp"`
	ROC10Norm       float64   `json:"roc_10_norm"`
	EMA50DistNorm   float64   `json:"ema50_dist_norm"`
	VolumeRatioNorm float64   `json:"volume_ratio_norm"`
	RSI14Norm       float64   `json:"rsi14_norm"`
	NewHigh50       int       `json:"new_high50"`
	ATRPctNorm      float64   `json:"atr_pct_norm"`
	BullishScore    float64   `json:"bullish_score"`
}

// Component weights of the composite score. ATR is penalized: high
// volatility drags the score down.
const (
	wROC  = 0.30
	wEMA  = 0.25
	wVol  = 0.15
	wRSI  = 0.10
	wHigh = 0.20
	wATR  = 0.10
)

// Compute derives indicator rows from daily candles, oldest first. Early rows
// whose lookback windows are not yet filled carry NaN-free zero components.
func Compute(candles []quotes.Candle) []Row {
	n := len(candles)
	if n == 0 {
		return nil
	}

	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}

	roc := roc10(closes)
	emaDist := ema50Distance(closes)
	volRatio := volumeRatio(volumes, 20)
	rsiNorm := rsi14Normalized(closes)
	newHigh := newHigh50(closes)
	atrPct := atrPercent(candles)

	rocNorm := percentileRank(roc)
	emaNorm := percentileRank(emaDist)
	volNorm := percentileRank(volRatio)
	atrNorm := percentileRank(atrPct)

	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{
			Date:            candles[i].Timestamp.Format("2006-01-02"),
			Timestamp:       candles[i].Timestamp,
			ROC10Norm:       rocNorm[i],
			EMA50DistNorm:   emaNorm[i],
			VolumeRatioNorm: volNorm[i],
			RSI14Norm:       rsiNorm[i],
			NewHigh50:       newHigh[i],
			ATRPctNorm:      atrNorm[i],
		}
		rows[i].BullishScore = wROC*rows[i].ROC10Norm +
			wEMA*rows[i].EMA50DistNorm +
			wVol*rows[i].VolumeRatioNorm +
			wRSI*rows[i].RSI14Norm +
			wHigh*float64(rows[i].NewHigh50) -
			wATR*rows[i].ATRPctNorm
	}
	return rows
}

// roc10 is the 10-day rate of change. NaN until the window fills.
func roc10(closes []float64) []float64 {
	out := nanSlice(len(closes))
	for i := 10; i < len(closes); i++ {
		if closes[i-10] != 0 {
			out[i] = (closes[i] - closes[i-10]) / closes[i-10]
		}
	}
	return out
}

// ema50Distance is the relative distance of close from its 50-day EMA
// (alpha = 2/51, seeded with the first close).
func ema50Distance(closes []float64) []float64 {
	out := nanSlice(len(closes))
	if len(closes) == 0 {
		return out
	}
	const alpha = 2.0 / 51.0
	ema := closes[0]
	for i, c := range closes {
		if i > 0 {
			ema = alpha*c + (1-alpha)*ema
		}
		if ema != 0 {
			out[i] = (c - ema) / ema
		}
	}
	return out
}

// volumeRatio is today's volume over its trailing average, capped at 3 so a
// single spike cannot dominate the score.
func volumeRatio(volumes []float64, window int) []float64 {
	out := nanSlice(len(volumes))
	var sum float64
	for i, v := range volumes {
		sum += v
		if i >= window {
			sum -= volumes[i-window]
		}
		if i >= window-1 {
			avg := sum / float64(window)
			if avg != 0 {
				out[i] = math.Min(v/avg, 3)
			}
		}
	}
	return out
}

// rsi14Normalized maps the 14-day RSI onto [0,1] across the 30..70 band.
func rsi14Normalized(closes []float64) []float64 {
	out := nanSlice(len(closes))
	const window = 14
	if len(closes) <= window {
		zeroNaN(out)
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > window {
			gainSum -= gains[i-window]
			lossSum -= losses[i-window]
		}
		if i >= window {
			avgGain := gainSum / float64(window)
			avgLoss := lossSum / float64(window)
			rsi := 100.0
			if avgLoss > 0 {
				rs := avgGain / avgLoss
				rsi = 100 - 100/(1+rs)
			}
			out[i] = clamp((rsi-30)/40, 0, 1)
		}
	}
	zeroNaN(out)
	return out
}

// newHigh50 flags closes at or above the trailing 50-day maximum.
func newHigh50(closes []float64) []int {
	out := make([]int, len(closes))
	for i := range closes {
		start := i - 49
		if start < 0 {
			start = 0
		}
		max := closes[start]
		for j := start + 1; j <= i; j++ {
			if closes[j] > max {
				max = closes[j]
			}
		}
		if closes[i] >= max {
			out[i] = 1
		}
	}
	return out
}

// atrPercent is the 14-day average true range relative to close.
func atrPercent(candles []quotes.Candle) []float64 {
	out := nanSlice(len(candles))
	const window = 14
	if len(candles) < 2 {
		return out
	}

	tr := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	var sum float64
	for i := 1; i < len(candles); i++ {
		sum += tr[i]
		if i > window {
			sum -= tr[i-window]
		}
		if i >= window && candles[i].Close != 0 {
			out[i] = (sum / float64(window)) / candles[i].Close
		}
	}
	return out
}

// percentileRank replaces each value with its percentile rank within the
// series (average rank for ties). NaN inputs come out as zero.
func percentileRank(values []float64) []float64 {
	out := make([]float64, len(values))
	var valid []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	total := float64(len(valid))
	if total == 0 {
		return out
	}

	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		var below, equal float64
		for _, w := range valid {
			switch {
			case w < v:
				below++
			case w == v:
				equal++
			}
		}
		// pandas rank(pct=True): average rank / count.
		out[i] = (below + (equal+1)/2) / total
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func zeroNaN(values []float64) {
	for i, v := range values {
		if math.IsNaN(v) {
			values[i] = 0
		}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
