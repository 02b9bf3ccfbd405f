package market

import "time"

type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// OpenedAt returns the candle open time. Candle times are milliseconds
// since epoch.
func (c Candle) OpenedAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// ClosedBy reports whether the candle's interval has fully elapsed at now.
func (c Candle) ClosedBy(now time.Time, interval time.Duration) bool {
	if c.OpenTime <= 0 || interval <= 0 {
		return false
	}
	return now.UnixMilli() >= c.OpenTime+interval.Milliseconds()
}

// LastClosed returns the most recent candle that has already closed at now.
// Candles are expected in ascending open-time order.
func LastClosed(candles []Candle, interval time.Duration, now time.Time) (Candle, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].ClosedBy(now, interval) {
			return candles[i], true
		}
	}
	return Candle{}, false
}
