package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contra/internal/config"
	"contra/internal/exchange"
	"contra/internal/market"
	"contra/internal/store"
	"contra/internal/store/statestore"
)

type placedOrder struct {
	Symbol     string
	Side       exchange.Side
	Quantity   float64
	ReduceOnly bool
}

type fakeExecution struct {
	mu sync.Mutex

	balance  exchange.Balance
	position *exchange.Position

	placed      []placedOrder
	closed      []string
	placeErr    error
	balanceErr  error
	fillPrice   float64
	balanceHits int
}

func (f *fakeExecution) PlaceMarketOrder(_ context.Context, symbol string, side exchange.Side, quantity float64, reduceOnly bool) (exchange.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return exchange.Fill{}, f.placeErr
	}
	f.placed = append(f.placed, placedOrder{Symbol: symbol, Side: side, Quantity: quantity, ReduceOnly: reduceOnly})
	return exchange.Fill{Symbol: symbol, Side: side, Quantity: quantity, AvgPrice: f.fillPrice}, nil
}

func (f *fakeExecution) ClosePosition(_ context.Context, symbol string) (exchange.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return exchange.Fill{}, &exchange.BenignError{Msg: "no open position"}
	}
	fill := exchange.Fill{
		Symbol:   symbol,
		Side:     f.position.Side.Opposite(),
		Quantity: f.position.Size,
		AvgPrice: f.fillPrice,
	}
	f.closed = append(f.closed, symbol)
	f.position = nil
	return fill, nil
}

func (f *fakeExecution) GetPosition(_ context.Context, symbol string) (*exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil || f.position.Symbol != symbol {
		return nil, nil
	}
	cp := *f.position
	return &cp, nil
}

func (f *fakeExecution) OpenPositions(context.Context) ([]exchange.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.position == nil {
		return nil, nil
	}
	return []exchange.Position{*f.position}, nil
}

func (f *fakeExecution) AvailableBalance(context.Context) (exchange.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceHits++
	if f.balanceErr != nil {
		return exchange.Balance{}, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeExecution) SetLeverage(context.Context, string, int) error { return nil }
func (f *fakeExecution) SetMarginMode(context.Context, string, exchange.MarginMode) error {
	return nil
}

func (f *fakeExecution) placedOrders() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]placedOrder, len(f.placed))
	copy(out, f.placed)
	return out
}

type fakeSource struct{}

func (fakeSource) FetchHistory(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, nil
}
func (fakeSource) Subscribe(context.Context, []string, []string, market.SubscribeOptions) (<-chan market.CandleEvent, error) {
	ch := make(chan market.CandleEvent)
	close(ch)
	return ch, nil
}
func (fakeSource) SubscribeTrades(context.Context, []string, market.SubscribeOptions) (<-chan market.TickEvent, error) {
	ch := make(chan market.TickEvent)
	close(ch)
	return ch, nil
}
func (fakeSource) Stats() market.SourceStats { return market.SourceStats{} }
func (fakeSource) Close() error              { return nil }

const testSymbol = "BTCUSDT"

func testConfig() *config.Config {
	return &config.Config{
		Trading: config.TradingConfig{
			Symbols:              []string{testSymbol},
			PositionSizeUSD:      100,
			Leverage:             20,
			MarginMode:           "ISOLATED",
			MarginBuffer:         1.5,
			MaxOpenPositions:     8,
			CheckIntervalSeconds: 300,
			ErrorBackoffSeconds:  60,
			BalanceRefreshCycles: 10,
			Enabled:              true,
			RoundTripFeeRate:     0.002,
			PartialTPRatio:       0.5,
		},
		Signals: config.SignalsConfig{
			TrendInterval:        "4h",
			TrendEMAPeriod:       5,
			TrendSTPeriod:        3,
			TrendSTMultiplier:    3.0,
			PullbackInterval:     "1h",
			PullbackSTPeriod:     3,
			PullbackSTMultiplier: 3.0,
			HistoryLimit:         60,
		},
	}
}

// series builds n closed candles ending just before at, stepping the close
// by step per candle. step > 0 rises, step < 0 falls.
func series(at time.Time, interval time.Duration, n int, start, step float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	price := start
	for i := 0; i < n; i++ {
		open := at.Add(-time.Duration(n-i) * interval)
		next := price + step
		high, low := price, next
		if high < low {
			high, low = low, high
		}
		out = append(out, market.Candle{
			OpenTime:  open.UnixMilli(),
			CloseTime: open.Add(interval).UnixMilli() - 1,
			Open:      price,
			High:      high + 0.5,
			Low:       low - 0.5,
			Close:     next,
		})
		price = next
	}
	return out
}

type testRig struct {
	engine *Engine
	exec   *fakeExecution
	klines *store.MemoryKlineStore
	prices *market.PriceCache
	now    time.Time
}

func newTestRig(t *testing.T, cfg *config.Config) *testRig {
	t.Helper()
	exec := &fakeExecution{
		balance:   exchange.Balance{Asset: "USDT", Available: 10000, Total: 10000},
		fillPrice: 0,
	}
	klines := store.NewMemoryKlineStore()
	prices := market.NewPriceCache()
	states, err := statestore.New(filepath.Join(t.TempDir(), "positions.json"))
	require.NoError(t, err)

	eng, err := New(Params{
		Config:     cfg,
		Execution:  exec,
		Source:     fakeSource{},
		Klines:     klines,
		Prices:     prices,
		StateStore: states,
	})
	require.NoError(t, err)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	eng.now = func() time.Time { return now }
	return &testRig{engine: eng, exec: exec, klines: klines, prices: prices, now: now}
}

// seedBullishDip loads a rising trend horizon and a falling pullback
// horizon, the long-entry configuration.
func (r *testRig) seedBullishDip(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.klines.Set(ctx, testSymbol, "4h", series(r.now, 4*time.Hour, 40, 100, 1)))
	require.NoError(t, r.klines.Set(ctx, testSymbol, "1h", series(r.now, time.Hour, 40, 160, -0.5)))
}

// seedBearishTrend loads a falling trend horizon and a rising pullback
// horizon. Against a long it is an immediate exit.
func (r *testRig) seedBearishTrend(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.klines.Set(ctx, testSymbol, "4h", series(r.now, 4*time.Hour, 40, 200, -1)))
	require.NoError(t, r.klines.Set(ctx, testSymbol, "1h", series(r.now, time.Hour, 40, 140, 0.5)))
}

func TestEngineOpensLongOnBullishDip(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)

	require.NoError(t, rig.engine.runCycle(context.Background()))

	placed := rig.exec.placedOrders()
	require.Len(t, placed, 1)
	assert.Equal(t, testSymbol, placed[0].Symbol)
	assert.Equal(t, exchange.SideLong, placed[0].Side)
	assert.False(t, placed[0].ReduceOnly)
	assert.InDelta(t, 100.0/placed[0].Quantity, rigLastPullbackClose(t, rig), 1e-6)

	state := rig.engine.states[testSymbol]
	require.True(t, state.HasPosition())
	assert.Equal(t, exchange.SideLong, state.Position.Side)
	assert.False(t, state.Position.PartialTPDone)
	// margin + round-trip fees on a 100 USDT position at 20x
	assert.InDelta(t, 5.2, state.Position.TargetProfit, 1e-9)
}

func rigLastPullbackClose(t *testing.T, rig *testRig) float64 {
	t.Helper()
	candles, err := rig.klines.Get(context.Background(), testSymbol, "1h")
	require.NoError(t, err)
	require.NotEmpty(t, candles)
	return candles[len(candles)-1].Close
}

func TestEngineIgnoresReplayedCandles(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	ctx := context.Background()

	require.NoError(t, rig.engine.runCycle(ctx))
	require.Len(t, rig.exec.placedOrders(), 1)

	// same candles again: markers do not advance, nothing is evaluated
	rig.exec.position = &exchange.Position{
		Symbol:     testSymbol,
		Side:       exchange.SideLong,
		Size:       rig.engine.states[testSymbol].Position.Size,
		EntryPrice: rig.engine.states[testSymbol].Position.EntryPrice,
	}
	require.NoError(t, rig.engine.runCycle(ctx))
	require.NoError(t, rig.engine.runCycle(ctx))

	assert.Len(t, rig.exec.placedOrders(), 1)
	assert.Empty(t, rig.exec.closed)
	assert.True(t, rig.engine.states[testSymbol].HasPosition())
}

func TestEngineSkipsEntryOnInsufficientBalance(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	rig.exec.balance = exchange.Balance{Asset: "USDT", Available: 5} // below 7.5 required

	require.NoError(t, rig.engine.runCycle(context.Background()))

	assert.Empty(t, rig.exec.placedOrders())
	assert.False(t, rig.engine.states[testSymbol].HasPosition())
	// a soft gate, not an execution failure
	assert.Zero(t, rig.engine.breaker.Failures())
}

func TestEngineSkipsEntryWhileTradingDisabled(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	rig.engine.SetTradingEnabled(false)

	require.NoError(t, rig.engine.runCycle(context.Background()))

	assert.Empty(t, rig.exec.placedOrders())
}

func TestEngineExitsWhenTrendOpposesPosition(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBearishTrend(t)

	// long already held; the exit fires on the first evaluation even
	// though no flip edge is observed
	state := rig.engine.states[testSymbol]
	require.NoError(t, state.Open(exchange.SideLong, 190, 0.5, rig.now.Add(-24*time.Hour), 5.2))
	rig.exec.position = &exchange.Position{
		Symbol: testSymbol, Side: exchange.SideLong, Size: 0.5, EntryPrice: 190,
	}
	rig.exec.fillPrice = 160

	require.NoError(t, rig.engine.runCycle(context.Background()))

	assert.Equal(t, []string{testSymbol}, rig.exec.closed)
	assert.False(t, state.HasPosition())
	assert.Equal(t, 1, state.Stats.Trades)
	assert.InDelta(t, (160.0-190.0)*0.5, state.Stats.TotalPnL, 1e-9)
}

func TestEngineExitRunsWhileTradingDisabled(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBearishTrend(t)
	rig.engine.SetTradingEnabled(false)

	state := rig.engine.states[testSymbol]
	require.NoError(t, state.Open(exchange.SideLong, 190, 0.5, rig.now.Add(-24*time.Hour), 5.2))
	rig.exec.position = &exchange.Position{
		Symbol: testSymbol, Side: exchange.SideLong, Size: 0.5, EntryPrice: 190,
	}
	rig.exec.fillPrice = 160

	require.NoError(t, rig.engine.runCycle(context.Background()))

	assert.Equal(t, []string{testSymbol}, rig.exec.closed)
	assert.False(t, state.HasPosition())
}

func TestEnginePartialTakeProfitFiresOnce(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	ctx := context.Background()

	require.NoError(t, rig.engine.runCycle(ctx))
	state := rig.engine.states[testSymbol]
	require.True(t, state.HasPosition())
	entry := state.Position.EntryPrice
	size := state.Position.Size

	rig.exec.position = &exchange.Position{
		Symbol: testSymbol, Side: exchange.SideLong, Size: size, EntryPrice: entry,
	}

	// profit well past margin + fees
	price := entry + 2*state.Position.TargetProfit/size
	rig.prices.Update(testSymbol, price, rig.now)
	rig.exec.fillPrice = price

	require.NoError(t, rig.engine.runCycle(ctx))

	placed := rig.exec.placedOrders()
	require.Len(t, placed, 2)
	tp := placed[1]
	assert.True(t, tp.ReduceOnly)
	assert.Equal(t, exchange.SideShort, tp.Side)
	assert.InDelta(t, size*0.5, tp.Quantity, 1e-9)

	require.True(t, state.HasPosition())
	assert.True(t, state.Position.PartialTPDone)
	assert.InDelta(t, size*0.5, state.Position.Size, 1e-9)

	// never fires a second time for the same position
	rig.exec.position.Size = state.Position.Size
	require.NoError(t, rig.engine.runCycle(ctx))
	assert.Len(t, rig.exec.placedOrders(), 2)
}

func TestEngineAdoptsExchangeOnReconcile(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	ctx := context.Background()

	require.NoError(t, rig.engine.runCycle(ctx))
	state := rig.engine.states[testSymbol]
	require.True(t, state.HasPosition())

	// exchange reports the position gone: local book follows
	rig.exec.position = nil
	require.NoError(t, rig.engine.runCycle(ctx))
	assert.False(t, state.HasPosition())
	assert.Zero(t, state.Stats.Trades)
}

func TestEngineGuardedTripsAndRejectsLocally(t *testing.T) {
	rig := newTestRig(t, testConfig())
	fatal := &exchange.FatalError{Code: -2010, Msg: "rejected"}

	for i := 0; i < breakerThreshold; i++ {
		err := rig.engine.guarded(func() error { return fatal })
		require.Error(t, err)
		assert.False(t, exchange.IsCircuitOpen(err))
	}

	called := false
	err := rig.engine.guarded(func() error { called = true; return nil })
	assert.True(t, exchange.IsCircuitOpen(err))
	assert.False(t, called, "tripped breaker must reject without dialing out")

	// benign results never feed the counter
	rig2 := newTestRig(t, testConfig())
	for i := 0; i < breakerThreshold*2; i++ {
		_ = rig2.engine.guarded(func() error { return &exchange.BenignError{Msg: "reduce-only noop"} })
	}
	assert.Zero(t, rig2.engine.breaker.Failures())
}

func TestEngineRefusesDoubleRun(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.engine.running.Store(true)
	err := rig.engine.Run(context.Background())
	assert.ErrorContains(t, err, "already running")
}

func TestEngineStatusSnapshot(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	require.NoError(t, rig.engine.runCycle(context.Background()))

	st := rig.engine.Status()
	assert.True(t, st.TradingEnabled)
	assert.False(t, st.CircuitTripped)
	assert.Equal(t, 1, st.OpenPositions)
	require.Len(t, st.Symbols, 1)
	assert.Equal(t, testSymbol, st.Symbols[0].Symbol)
	assert.Equal(t, "BULLISH", st.Symbols[0].Trend)
	require.NotNil(t, st.Symbols[0].Position)
	assert.Equal(t, "LONG", st.Symbols[0].Position.Side)
}

func TestEngineCloseAll(t *testing.T) {
	rig := newTestRig(t, testConfig())
	rig.seedBullishDip(t)
	ctx := context.Background()

	require.NoError(t, rig.engine.runCycle(ctx))
	state := rig.engine.states[testSymbol]
	require.True(t, state.HasPosition())
	rig.exec.position = &exchange.Position{
		Symbol: testSymbol, Side: exchange.SideLong,
		Size: state.Position.Size, EntryPrice: state.Position.EntryPrice,
	}
	rig.exec.fillPrice = state.Position.EntryPrice

	closed := rig.engine.CloseAll(ctx)
	assert.Equal(t, 1, closed)
	assert.False(t, state.HasPosition())
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{})
	assert.ErrorContains(t, err, "config")

	cfg := testConfig()
	cfg.Signals.TrendInterval = "nope"
	states, serr := statestore.New(filepath.Join(t.TempDir(), "positions.json"))
	require.NoError(t, serr)
	_, err = New(Params{
		Config:     cfg,
		Execution:  &fakeExecution{},
		Source:     fakeSource{},
		Klines:     store.NewMemoryKlineStore(),
		StateStore: states,
	})
	assert.ErrorContains(t, err, "trend interval")
}

func TestStartupTimeoutErrorMessage(t *testing.T) {
	err := &StartupTimeoutError{Phase: "position sync", Timeout: time.Minute}
	assert.Equal(t, `startup phase "position sync" timed out after 1m0s`, err.Error())
	var ste *StartupTimeoutError
	assert.True(t, errors.As(err, &ste))
}
