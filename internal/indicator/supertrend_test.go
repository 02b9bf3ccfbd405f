package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contra/internal/market"
)

func candleAt(i int, o, h, l, c float64) market.Candle {
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	open := base.Add(time.Duration(i) * time.Hour)
	return market.Candle{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(time.Hour).UnixMilli() - 1,
		Open:      o, High: h, Low: l, Close: c,
	}
}

func risingSeries(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out = append(out, candleAt(i, price, price+1.5, price-0.5, price+1))
		price += 1
	}
	return out
}

func fallingSeries(n int) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := 200.0
	for i := 0; i < n; i++ {
		out = append(out, candleAt(i, price, price+0.5, price-1.5, price-1))
		price -= 1
	}
	return out
}

func TestSuperTrendDirections(t *testing.T) {
	t.Run("uptrend is green with band below price", func(t *testing.T) {
		dir, band, err := SuperTrend(risingSeries(40), 10, 3.0)
		require.NoError(t, err)
		assert.Equal(t, DirGreen, dir)
		last := risingSeries(40)[39]
		assert.Less(t, band, last.Close)
	})

	t.Run("downtrend is red with band above price", func(t *testing.T) {
		dir, band, err := SuperTrend(fallingSeries(40), 10, 3.0)
		require.NoError(t, err)
		assert.Equal(t, DirRed, dir)
		last := fallingSeries(40)[39]
		assert.Greater(t, band, last.Close)
	})
}

func TestSuperTrendResortsDescendingInput(t *testing.T) {
	series := risingSeries(40)
	reversed := make([]market.Candle, len(series))
	for i, c := range series {
		reversed[len(series)-1-i] = c
	}
	dir, _, err := SuperTrend(reversed, 10, 3.0)
	require.NoError(t, err)
	assert.Equal(t, DirGreen, dir)
}

func TestSuperTrendValidation(t *testing.T) {
	t.Run("too few candles", func(t *testing.T) {
		_, _, err := SuperTrend(risingSeries(10), 10, 3.0)
		assert.ErrorContains(t, err, "at least 11 candles")
	})

	t.Run("bad period", func(t *testing.T) {
		_, _, err := SuperTrend(risingSeries(40), 0, 3.0)
		assert.ErrorContains(t, err, "period")
	})

	t.Run("non-positive price", func(t *testing.T) {
		series := risingSeries(40)
		series[5].Close = 0
		_, _, err := SuperTrend(series, 10, 3.0)
		assert.ErrorContains(t, err, "non-positive price")
	})
}

func TestEMA(t *testing.T) {
	t.Run("tracks a rising market from below", func(t *testing.T) {
		series := risingSeries(60)
		v, err := EMA(series, 20)
		require.NoError(t, err)
		last := series[len(series)-1].Close
		assert.Less(t, v, last)
		assert.Greater(t, v, series[0].Close)
	})

	t.Run("constant series converges to the constant", func(t *testing.T) {
		series := make([]market.Candle, 30)
		for i := range series {
			series[i] = candleAt(i, 50, 50, 50, 50)
		}
		v, err := EMA(series, 10)
		require.NoError(t, err)
		assert.InDelta(t, 50, v, 1e-9)
	})

	t.Run("insufficient candles", func(t *testing.T) {
		_, err := EMA(risingSeries(5), 20)
		assert.ErrorContains(t, err, "at least 20 candles")
	})
}
