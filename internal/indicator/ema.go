package indicator

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"contra/internal/market"
)

// EMA returns the latest exponential moving average of closes over period.
// Candles are re-sorted ascending; at least period candles are required.
func EMA(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("ema: period must be positive, got %d", period)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("ema: need at least %d candles, got %d", period, len(candles))
	}
	cs := sortedCopy(candles)
	if err := checkSeries(cs); err != nil {
		return 0, fmt.Errorf("ema: %w", err)
	}
	closes := make([]float64, len(cs))
	for i, c := range cs {
		closes[i] = c.Close
	}
	series := talib.Ema(closes, period)
	return series[len(series)-1], nil
}
