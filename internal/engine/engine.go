package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"contra/internal/config"
	"contra/internal/exchange"
	"contra/internal/logger"
	"contra/internal/market"
	"contra/internal/pkg/circuit"
	"contra/internal/scheduler"
	"contra/internal/store/statestore"
	"contra/internal/store/tradelog"
	"contra/internal/strategy"
)

const (
	breakerThreshold    = 5
	breakerCooldown     = 5 * time.Minute
	startupPhaseTimeout = 60 * time.Second
	shutdownGrace       = 2 * time.Second
	historySeedTimeout  = 30 * time.Second
)

// StartupTimeoutError reports a startup phase that exceeded its timeout.
type StartupTimeoutError struct {
	Phase   string
	Timeout time.Duration
}

func (e *StartupTimeoutError) Error() string {
	return fmt.Sprintf("startup phase %q timed out after %s", e.Phase, e.Timeout)
}

// Params carries the engine dependencies.
type Params struct {
	Config     *config.Config
	Execution  exchange.Execution
	Source     market.Source
	Klines     market.KlineStore
	Prices     *market.PriceCache
	StateStore *statestore.Store
	TradeLog   *tradelog.Store // optional
}

// Engine runs the trading cycle over all configured symbols sequentially.
//
// Lock ordering: entryMu before stateMu. The entry lock is held across the
// balance check, the order and the state commit so two entries can never
// race the shared balance; stateMu alone guards the state map for reads,
// exits and persistence.
type Engine struct {
	cfg    *config.Config
	exec   exchange.Execution
	source market.Source
	klines market.KlineStore
	prices *market.PriceCache

	stateStore *statestore.Store
	trades     *tradelog.Store

	breaker *circuit.Breaker

	trendDur    time.Duration
	pullbackDur time.Duration

	stateMu sync.Mutex
	states  map[string]*strategy.SymbolState

	entryMu sync.Mutex

	markerMu sync.Mutex
	markers  map[string]int64

	tradingMu sync.RWMutex
	trading   config.TradingConfig

	balanceMu sync.RWMutex
	balance   exchange.Balance

	tradingEnabled atomic.Bool
	running        atomic.Bool
	cycles         atomic.Int64

	updater *market.WSUpdater

	now func() time.Time
}

func New(p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, errors.New("engine: config is required")
	}
	if p.Execution == nil {
		return nil, errors.New("engine: execution port is required")
	}
	if p.Source == nil {
		return nil, errors.New("engine: market source is required")
	}
	if p.Klines == nil {
		return nil, errors.New("engine: kline store is required")
	}
	if p.StateStore == nil {
		return nil, errors.New("engine: state store is required")
	}
	if p.Prices == nil {
		p.Prices = market.NewPriceCache()
	}

	trendDur, ok := scheduler.ParseIntervalDuration(p.Config.Signals.TrendInterval)
	if !ok {
		return nil, fmt.Errorf("engine: bad trend interval %q", p.Config.Signals.TrendInterval)
	}
	pullbackDur, ok := scheduler.ParseIntervalDuration(p.Config.Signals.PullbackInterval)
	if !ok {
		return nil, fmt.Errorf("engine: bad pullback interval %q", p.Config.Signals.PullbackInterval)
	}

	e := &Engine{
		cfg:         p.Config,
		exec:        p.Execution,
		source:      p.Source,
		klines:      p.Klines,
		prices:      p.Prices,
		stateStore:  p.StateStore,
		trades:      p.TradeLog,
		breaker:     circuit.NewBreaker("execution", breakerThreshold, breakerCooldown),
		trendDur:    trendDur,
		pullbackDur: pullbackDur,
		states:      make(map[string]*strategy.SymbolState, len(p.Config.Trading.Symbols)),
		markers:     make(map[string]int64),
		trading:     p.Config.Trading,
		now:         time.Now,
	}
	for _, sym := range p.Config.Trading.Symbols {
		e.states[sym] = strategy.NewSymbolState(sym)
	}
	e.tradingEnabled.Store(p.Config.Trading.Enabled)
	return e, nil
}

// Run starts the engine and blocks until ctx is cancelled or startup fails.
func (e *Engine) Run(ctx context.Context) error {
	if e.running.Swap(true) {
		return errors.New("engine already running")
	}
	defer e.running.Store(false)

	if err := e.startup(ctx); err != nil {
		return err
	}
	defer e.shutdown()

	trading := e.tradingCfg()
	ticker := time.NewTicker(trading.CheckInterval())
	defer ticker.Stop()

	logger.Infof("engine started: %d symbols, cycle every %s, trading_enabled=%v",
		len(e.states), trading.CheckInterval(), e.tradingEnabled.Load())

	for {
		if err := e.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorf("cycle failed: %v, backing off %s", err, trading.ErrorBackoff())
			if !sleepWithContext(ctx, trading.ErrorBackoff()) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// shutdown drains pending state to disk within the grace window.
func (e *Engine) shutdown() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := e.persist(); err != nil {
			logger.Errorf("final persist failed: %v", err)
		}
		if e.updater != nil {
			e.updater.Close()
		}
	}()
	select {
	case <-done:
		logger.Infof("engine stopped, state persisted")
	case <-time.After(shutdownGrace):
		logger.Warnf("engine stopped, shutdown grace of %s exceeded", shutdownGrace)
	}
}

// SetTradingEnabled gates future entry decisions only. Orders already
// dispatched are never aborted and exits keep running while disabled.
func (e *Engine) SetTradingEnabled(enabled bool) {
	prev := e.tradingEnabled.Swap(enabled)
	if prev != enabled {
		logger.Infof("trading enabled set to %v", enabled)
	}
}

func (e *Engine) TradingEnabled() bool { return e.tradingEnabled.Load() }

// ApplyTradingUpdate takes a hot-reloaded trading section. Sizing and loop
// parameters take effect on the next decision; the symbol set is fixed for
// the life of the process.
func (e *Engine) ApplyTradingUpdate(t config.TradingConfig) {
	e.tradingMu.Lock()
	prev := e.trading
	prevSymbols := prev.Symbols
	t.Symbols = prevSymbols
	e.trading = t
	e.tradingMu.Unlock()

	e.tradingEnabled.Store(t.Enabled)
	if prev.PositionSizeUSD != t.PositionSizeUSD {
		logger.Infof("position size updated %v -> %v USD", prev.PositionSizeUSD, t.PositionSizeUSD)
	}
	if prev.Leverage != t.Leverage {
		logger.Infof("leverage updated %dx -> %dx, re-applying to symbols", prev.Leverage, t.Leverage)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, sym := range prevSymbols {
			if err := e.guarded(func() error { return e.exec.SetLeverage(ctx, sym, t.Leverage) }); err != nil {
				logger.Warnf("leverage update for %s failed: %v", sym, err)
			}
		}
	}
}

func (e *Engine) tradingCfg() config.TradingConfig {
	e.tradingMu.RLock()
	defer e.tradingMu.RUnlock()
	return e.trading
}

func (e *Engine) setBalance(b exchange.Balance) {
	e.balanceMu.Lock()
	e.balance = b
	e.balanceMu.Unlock()
}

func (e *Engine) Balance() exchange.Balance {
	e.balanceMu.RLock()
	defer e.balanceMu.RUnlock()
	return e.balance
}

// guarded routes an execution call through the circuit breaker. Benign
// rejections and local circuit rejections feed neither side of the counter.
func (e *Engine) guarded(call func() error) error {
	if !e.breaker.Allow() {
		return &exchange.CircuitOpenError{Until: e.breaker.TrippedUntil()}
	}
	err := call()
	switch {
	case err == nil:
		e.breaker.RecordSuccess()
	case exchange.IsBenign(err):
	case exchange.IsCircuitOpen(err):
	default:
		e.breaker.RecordFailure()
	}
	return err
}

func (e *Engine) symbols() []string {
	out := make([]string, 0, len(e.states))
	for sym := range e.states {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
