package store

import (
	"context"
	"errors"
	"sync"

	"contra/internal/market"
)

// MemoryKlineStore is a sharded in-memory candle cache keyed by
// symbol@interval. Put merges by open time so WS updates to the current
// candle replace instead of append.
type MemoryKlineStore struct {
	shards []klineShard
}

type klineShard struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

const defaultShardCount = 32

func NewMemoryKlineStore() *MemoryKlineStore {
	out := &MemoryKlineStore{shards: make([]klineShard, defaultShardCount)}
	for i := range out.shards {
		out.shards[i] = klineShard{data: make(map[string][]market.Candle)}
	}
	return out
}

func (s *MemoryKlineStore) shardFor(key string) *klineShard {
	idx := hashKey(key) % uint32(len(s.shards))
	return &s.shards[idx]
}

func key(symbol, interval string) string { return symbol + "@" + interval }

func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, ks []market.Candle, max int) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol and interval are required")
	}
	if len(ks) == 0 {
		return nil
	}
	if max <= 0 {
		max = 100
	}
	k := key(symbol, interval)
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur := sh.data[k]
	for _, candle := range ks {
		n := len(cur)
		if n > 0 && cur[n-1].OpenTime == candle.OpenTime {
			cur[n-1] = candle
			continue
		}
		cur = append(cur, candle)
	}
	if len(cur) > max {
		cur = cur[len(cur)-max:]
	}
	sh.data[k] = cur
	return nil
}

func (s *MemoryKlineStore) Set(ctx context.Context, symbol, interval string, ks []market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol and interval are required")
	}
	k := key(symbol, interval)
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	dst := make([]market.Candle, len(ks))
	copy(dst, ks)
	sh.data[k] = dst
	return nil
}

func (s *MemoryKlineStore) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	k := key(symbol, interval)
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur := sh.data[k]
	out := make([]market.Candle, len(cur))
	copy(out, cur)
	return out, nil
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
