package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stackfin/paperbroker/internal/quotes"
)

func syntheticCandles(n int, close func(i int) float64) []quotes.Candle {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]quotes.Candle, n)
	for i := range candles {
		c := close(i)
		candles[i] = quotes.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1_000_000,
		}
	}
	return candles
}

func TestComputeEmptyInput(t *testing.T) {
	if rows := Compute(nil); rows != nil {
		t.Fatalf("expected nil rows, got %d", len(rows))
	}
}

func TestComputeRowsAlignWithCandles(t *testing.T) {
	candles := syntheticCandles(100, func(i int) float64 { return 100 + float64(i) })
	rows := Compute(candles)
	if len(rows) != len(candles) {
		t.Fatalf("expected %d rows, got %d", len(candles), len(rows))
	}
	if rows[0].Date != "2026-01-01" {
		t.Fatalf("unexpected first date %s", rows[0].Date)
	}
	for i, row := range rows {
		for name, v := range map[string]float64{
			"roc":    row.ROC10Norm,
			"ema":    row.EMA50DistNorm,
			"volume": row.VolumeRatioNorm,
			"rsi":    row.RSI14Norm,
			"atr":    row.ATRPctNorm,
			"score":  row.BullishScore,
		} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("row %d: %s is not finite: %v", i, name, v)
			}
		}
	}
}

func TestSteadyUptrendScoresBullish(t *testing.T) {
	up := Compute(syntheticCandles(100, func(i int) float64 { return 100 * math.Pow(1.01, float64(i)) }))
	down := Compute(syntheticCandles(100, func(i int) float64 { return 100 * math.Pow(0.99, float64(i)) }))

	lastUp := up[len(up)-1]
	lastDown := down[len(down)-1]
	if lastUp.BullishScore <= lastDown.BullishScore {
		t.Fatalf("uptrend score %f should beat downtrend score %f", lastUp.BullishScore, lastDown.BullishScore)
	}
	if lastUp.NewHigh50 != 1 {
		t.Fatal("steady uptrend should be at a 50-day high")
	}
	if lastDown.NewHigh50 != 0 {
		t.Fatal("steady downtrend should not be at a 50-day high")
	}
	if lastUp.RSI14Norm != 1 {
		t.Fatalf("all-gain series should saturate RSI at 1, got %f", lastUp.RSI14Norm)
	}
	if lastDown.RSI14Norm != 0 {
		t.Fatalf("all-loss series should floor RSI at 0, got %f", lastDown.RSI14Norm)
	}
}

func TestVolumeRatioCapped(t *testing.T) {
	volumes := make([]float64, 30)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[29] = 1_000_000 // extreme spike

	ratios := volumeRatio(volumes, 20)
	if got := ratios[29]; got != 3 {
		t.Fatalf("spike ratio = %f, want cap of 3", got)
	}
}

func TestPercentileRank(t *testing.T) {
	ranks := percentileRank([]float64{10, 20, 30, 40})
	if ranks[3] != 1 {
		t.Fatalf("max value rank = %f, want 1", ranks[3])
	}
	if ranks[0] != 0.25 {
		t.Fatalf("min value rank = %f, want 0.25", ranks[0])
	}

	// NaN entries rank as zero and do not disturb the rest.
	withNaN := percentileRank([]float64{math.NaN(), 1, 2})
	if withNaN[0] != 0 {
		t.Fatalf("NaN rank = %f, want 0", withNaN[0])
	}
	if withNaN[2] != 1 {
		t.Fatalf("max rank = %f, want 1", withNaN[2])
	}
}
