package market

import (
	"sync"
	"time"
)

type pricePoint struct {
	price float64
	at    time.Time
}

// PriceCache keeps the latest traded price per symbol, fed by the tick
// stream. Readers never block the WS consumer.
type PriceCache struct {
	mu     sync.RWMutex
	latest map[string]pricePoint
}

func NewPriceCache() *PriceCache {
	return &PriceCache{latest: make(map[string]pricePoint)}
}

func (p *PriceCache) Update(symbol string, price float64, at time.Time) {
	if symbol == "" || price <= 0 {
		return
	}
	p.mu.Lock()
	p.latest[symbol] = pricePoint{price: price, at: at}
	p.mu.Unlock()
}

func (p *PriceCache) UpdateFromTick(tick TickEvent) {
	at := time.UnixMilli(tick.EventTime).UTC()
	p.Update(tick.Symbol, tick.Price, at)
}

// Latest returns the most recent price for symbol, false when no tick has
// been seen yet.
func (p *PriceCache) Latest(symbol string) (float64, time.Time, bool) {
	p.mu.RLock()
	point, ok := p.latest[symbol]
	p.mu.RUnlock()
	if !ok {
		return 0, time.Time{}, false
	}
	return point.price, point.at, true
}
