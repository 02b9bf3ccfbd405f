package strategy

import "contra/internal/indicator"

// Trend is the long-horizon regime classification.
type Trend string

const (
	TrendBullish Trend = "BULLISH"
	TrendBearish Trend = "BEARISH"
	TrendNeutral Trend = "NEUTRAL"
)

// DetectTrend classifies the regime from the long-horizon close, the EMA
// and the SuperTrend direction. Both signals must agree; anything mixed is
// NEUTRAL and blocks entries.
func DetectTrend(close, ema float64, st indicator.Direction) Trend {
	switch {
	case close > ema && st == indicator.DirGreen:
		return TrendBullish
	case close < ema && st == indicator.DirRed:
		return TrendBearish
	default:
		return TrendNeutral
	}
}
