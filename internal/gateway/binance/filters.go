package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

// symbolFilters carries the lot size rules for one contract.
type symbolFilters struct {
	StepSize decimal.Decimal
	MinQty   decimal.Decimal
}

// filterCache lazily loads exchange info once and answers quantization
// lookups from memory.
type filterCache struct {
	client *futures.Client

	mu      sync.Mutex
	loaded  bool
	filters map[string]symbolFilters
}

func newFilterCache(client *futures.Client) *filterCache {
	return &filterCache{client: client, filters: make(map[string]symbolFilters)}
}

func (f *filterCache) get(ctx context.Context, symbol string) (symbolFilters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		if err := f.loadLocked(ctx); err != nil {
			return symbolFilters{}, err
		}
	}
	flt, ok := f.filters[strings.ToUpper(symbol)]
	if !ok {
		return symbolFilters{}, fmt.Errorf("no exchange filters for symbol %s", symbol)
	}
	return flt, nil
}

func (f *filterCache) loadLocked(ctx context.Context) error {
	info, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return classify(err)
	}
	for _, sym := range info.Symbols {
		flt := symbolFilters{}
		if lot := sym.LotSizeFilter(); lot != nil {
			flt.StepSize, _ = decimal.NewFromString(lot.StepSize)
			flt.MinQty, _ = decimal.NewFromString(lot.MinQuantity)
		}
		f.filters[strings.ToUpper(sym.Symbol)] = flt
	}
	f.loaded = true
	return nil
}

// quantizeQty floors qty to the symbol's step size. Flooring never rounds a
// reduce-only close above the held size.
func (flt symbolFilters) quantizeQty(qty float64) (string, error) {
	d := decimal.NewFromFloat(qty)
	if flt.StepSize.IsPositive() {
		d = d.Div(flt.StepSize).Floor().Mul(flt.StepSize)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("quantity %v vanishes after step quantization", qty)
	}
	if flt.MinQty.IsPositive() && d.LessThan(flt.MinQty) {
		return "", fmt.Errorf("quantity %s below exchange minimum %s", d, flt.MinQty)
	}
	return d.String(), nil
}
