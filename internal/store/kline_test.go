package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contra/internal/market"
)

func TestMemoryKlineStorePutMergesByOpenTime(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "BTCUSDT", "1h", []market.Candle{{OpenTime: 1000, Close: 1}}, 10))
	require.NoError(t, s.Put(ctx, "BTCUSDT", "1h", []market.Candle{{OpenTime: 1000, Close: 2}}, 10))
	require.NoError(t, s.Put(ctx, "BTCUSDT", "1h", []market.Candle{{OpenTime: 2000, Close: 3}}, 10))

	got, err := s.Get(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Close, "same open time must replace, not append")
	assert.Equal(t, 3.0, got[1].Close)
}

func TestMemoryKlineStorePutTrimsToMax(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, s.Put(ctx, "ETHUSDT", "4h", []market.Candle{{OpenTime: int64(i + 1), Close: float64(i)}}, 5))
	}
	got, err := s.Get(ctx, "ETHUSDT", "4h")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, int64(4), got[0].OpenTime)
}

func TestMemoryKlineStoreGetReturnsCopy(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "BTCUSDT", "1h", []market.Candle{{OpenTime: 1, Close: 1}}))
	got, err := s.Get(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	got[0].Close = 99

	again, err := s.Get(ctx, "BTCUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again[0].Close)
}

func TestMemoryKlineStoreValidation(t *testing.T) {
	s := NewMemoryKlineStore()
	ctx := context.Background()

	assert.Error(t, s.Put(ctx, "", "1h", []market.Candle{{OpenTime: 1}}, 5))
	assert.Error(t, s.Set(ctx, "BTCUSDT", "", nil))
}
