package indicator

import (
	"fmt"
	"sort"

	"github.com/markcheno/go-talib"

	"contra/internal/market"
)

// Direction is the SuperTrend band state: green while price rides the lower
// band (uptrend), red while it rides the upper band.
type Direction string

const (
	DirGreen Direction = "green"
	DirRed   Direction = "red"
)

func (d Direction) Valid() bool { return d == DirGreen || d == DirRed }

// SuperTrend computes the TradingView-style SuperTrend on the candle series
// and returns the latest direction and band value. ATR uses Wilder's
// smoothing; the final bands only ratchet: the upper band moves down unless
// price closed above it, the lower band moves up unless price closed below.
//
// Candles are re-sorted ascending by open time before computation. At least
// period+1 candles are required.
func SuperTrend(candles []market.Candle, period int, multiplier float64) (Direction, float64, error) {
	if period <= 0 {
		return "", 0, fmt.Errorf("supertrend: period must be positive, got %d", period)
	}
	if multiplier <= 0 {
		return "", 0, fmt.Errorf("supertrend: multiplier must be positive, got %v", multiplier)
	}
	if len(candles) < period+1 {
		return "", 0, fmt.Errorf("supertrend: need at least %d candles, got %d", period+1, len(candles))
	}
	cs := sortedCopy(candles)
	if err := checkSeries(cs); err != nil {
		return "", 0, fmt.Errorf("supertrend: %w", err)
	}

	n := len(cs)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range cs {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}

	atr := talib.Atr(highs, lows, closes, period)

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := 0; i < n; i++ {
		hl2 := (highs[i] + lows[i]) / 2
		upper[i] = hl2 + multiplier*atr[i]
		lower[i] = hl2 - multiplier*atr[i]
	}

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	up := make([]bool, n)

	start := period
	finalUpper[start] = upper[start]
	finalLower[start] = lower[start]
	up[start] = closes[start] >= lower[start]

	for i := start + 1; i < n; i++ {
		if upper[i] < finalUpper[i-1] || closes[i-1] > finalUpper[i-1] {
			finalUpper[i] = upper[i]
		} else {
			finalUpper[i] = finalUpper[i-1]
		}
		if lower[i] > finalLower[i-1] || closes[i-1] < finalLower[i-1] {
			finalLower[i] = lower[i]
		} else {
			finalLower[i] = finalLower[i-1]
		}
		switch {
		case closes[i] > finalUpper[i-1]:
			up[i] = true
		case closes[i] < finalLower[i-1]:
			up[i] = false
		default:
			up[i] = up[i-1]
		}
	}

	last := n - 1
	if up[last] {
		return DirGreen, finalLower[last], nil
	}
	return DirRed, finalUpper[last], nil
}

func sortedCopy(candles []market.Candle) []market.Candle {
	out := make([]market.Candle, len(candles))
	copy(out, candles)
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime < out[j].OpenTime })
	return out
}

func checkSeries(candles []market.Candle) error {
	for i, c := range candles {
		if c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
			return fmt.Errorf("non-positive price at index %d (open_time=%d)", i, c.OpenTime)
		}
		if c.High < c.Low {
			return fmt.Errorf("high below low at index %d (open_time=%d)", i, c.OpenTime)
		}
	}
	return nil
}
