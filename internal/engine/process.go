package engine

import (
	"context"
	"fmt"
	"time"

	"contra/internal/indicator"
	"contra/internal/logger"
	"contra/internal/market"
)

// runCycle processes all symbols sequentially. Sequential on purpose: every
// entry draws from the same account balance, and the entry lock discipline
// only stays simple if one symbol decides at a time.
func (e *Engine) runCycle(ctx context.Context) error {
	cycle := e.cycles.Add(1)
	trading := e.tradingCfg()

	if cycle == 1 || cycle%int64(trading.BalanceRefreshCycles) == 0 {
		if err := e.refreshBalance(ctx); err != nil {
			logger.Warnf("balance refresh failed: %v", err)
		}
	}

	for _, sym := range e.symbols() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.processSymbol(ctx, sym); err != nil {
			logger.Errorf("%s: processing failed: %v", sym, err)
		}
	}
	return ctx.Err()
}

func (e *Engine) processSymbol(ctx context.Context, sym string) error {
	state := e.states[sym]
	now := e.now()

	if state.HasPosition() {
		if err := e.reconcilePosition(ctx, sym); err != nil {
			logger.Warnf("%s: position reconcile failed: %v", sym, err)
		}
	}

	trendCandle, pullbackCandle, err := e.latestClosedCandles(ctx, sym, now)
	if err != nil {
		return err
	}

	newTrend := e.markerAdvances(sym, e.cfg.Signals.TrendInterval, trendCandle)
	newPullback := e.markerAdvances(sym, e.cfg.Signals.PullbackInterval, pullbackCandle)

	if newTrend {
		if err := e.refreshTrend(ctx, sym, now); err != nil {
			return err
		}
	}
	if newPullback {
		if err := e.refreshPullback(ctx, sym); err != nil {
			return err
		}
	}

	// take-profit tracks the live price, not candle closes
	if state.HasPosition() {
		e.checkPartialTakeProfit(ctx, sym)
	}

	if !newTrend && !newPullback {
		logger.Debugf("%s: no new closed candle, skipping transition evaluation", sym)
		return nil
	}
	// markers already advanced above, before any evaluation: a replay of
	// these candles after a feed reconnect is a no-op

	if state.HasPosition() {
		e.checkExit(ctx, sym)
	} else {
		e.checkEntry(ctx, sym)
	}
	return nil
}

// latestClosedCandles returns the newest fully closed candle per horizon.
func (e *Engine) latestClosedCandles(ctx context.Context, sym string, now time.Time) (market.Candle, market.Candle, error) {
	trendRaw, err := e.klines.Get(ctx, sym, e.cfg.Signals.TrendInterval)
	if err != nil {
		return market.Candle{}, market.Candle{}, fmt.Errorf("read %s candles: %w", e.cfg.Signals.TrendInterval, err)
	}
	pullbackRaw, err := e.klines.Get(ctx, sym, e.cfg.Signals.PullbackInterval)
	if err != nil {
		return market.Candle{}, market.Candle{}, fmt.Errorf("read %s candles: %w", e.cfg.Signals.PullbackInterval, err)
	}
	trendCandle, _ := market.LastClosed(trendRaw, e.trendDur, now)
	pullbackCandle, _ := market.LastClosed(pullbackRaw, e.pullbackDur, now)
	return trendCandle, pullbackCandle, nil
}

// markerAdvances reports whether candle is newer than the per-symbol,
// per-horizon marker, advancing the marker when it is. Advancing before
// evaluation is what makes duplicate candle replays idempotent.
func (e *Engine) markerAdvances(sym, interval string, candle market.Candle) bool {
	if candle.OpenTime <= 0 {
		return false
	}
	key := sym + "@" + interval
	e.markerMu.Lock()
	defer e.markerMu.Unlock()
	if candle.OpenTime <= e.markers[key] {
		return false
	}
	e.markers[key] = candle.OpenTime
	return true
}

func (e *Engine) closedCandles(ctx context.Context, sym, interval string, dur time.Duration) ([]market.Candle, error) {
	raw, err := e.klines.Get(ctx, sym, interval)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := raw
	for len(out) > 0 && !out[len(out)-1].ClosedBy(now, dur) {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (e *Engine) refreshTrend(ctx context.Context, sym string, now time.Time) error {
	candles, err := e.closedCandles(ctx, sym, e.cfg.Signals.TrendInterval, e.trendDur)
	if err != nil {
		return fmt.Errorf("trend candles: %w", err)
	}
	sig := e.cfg.Signals
	ema, err := indicator.EMA(candles, sig.TrendEMAPeriod)
	if err != nil {
		return fmt.Errorf("trend ema: %w", err)
	}
	dir, value, err := indicator.SuperTrend(candles, sig.TrendSTPeriod, sig.TrendSTMultiplier)
	if err != nil {
		return fmt.Errorf("trend supertrend: %w", err)
	}
	close := candles[len(candles)-1].Close

	e.stateMu.Lock()
	state := e.states[sym]
	state.UpdateTrend(close, ema, dir, value, now)
	trend := state.Trend
	e.stateMu.Unlock()

	logger.Debugf("%s: trend=%s close=%.6g ema=%.6g st=%s(%.6g)", sym, trend, close, ema, dir, value)
	return nil
}

func (e *Engine) refreshPullback(ctx context.Context, sym string) error {
	candles, err := e.closedCandles(ctx, sym, e.cfg.Signals.PullbackInterval, e.pullbackDur)
	if err != nil {
		return fmt.Errorf("pullback candles: %w", err)
	}
	sig := e.cfg.Signals
	dir, value, err := indicator.SuperTrend(candles, sig.PullbackSTPeriod, sig.PullbackSTMultiplier)
	if err != nil {
		return fmt.Errorf("pullback supertrend: %w", err)
	}

	e.stateMu.Lock()
	e.states[sym].UpdatePullback(dir, value)
	e.stateMu.Unlock()

	logger.Debugf("%s: pullback st=%s(%.6g)", sym, dir, value)
	return nil
}

// markPrice prefers the live tick, falling back to the last closed
// pullback candle when no trade has streamed yet.
func (e *Engine) markPrice(ctx context.Context, sym string) (float64, bool) {
	if price, _, ok := e.prices.Latest(sym); ok {
		return price, true
	}
	candles, err := e.closedCandles(ctx, sym, e.cfg.Signals.PullbackInterval, e.pullbackDur)
	if err != nil || len(candles) == 0 {
		return 0, false
	}
	return candles[len(candles)-1].Close, true
}
