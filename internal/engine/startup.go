package engine

import (
	"context"
	"errors"
	"fmt"

	"contra/internal/exchange"
	"contra/internal/logger"
	"contra/internal/market"
	"contra/internal/store/statestore"
)

// startup: load persisted state, set leverage/margin per symbol, reconcile
// positions against the exchange, seed candle history and open the streams.
// The leverage and sync phases are each bounded by a hard 60s timeout.
func (e *Engine) startup(ctx context.Context) error {
	records, err := e.stateStore.Load()
	if err != nil {
		return fmt.Errorf("load persisted state: %w", err)
	}
	logger.Infof("loaded %d persisted position(s)", len(records))

	if err := e.runPhase(ctx, "leverage setup", e.setupSymbols); err != nil {
		return err
	}
	if err := e.runPhase(ctx, "position sync", func(ctx context.Context) error {
		return e.syncPositions(ctx, records)
	}); err != nil {
		return err
	}
	if err := e.seedHistory(ctx); err != nil {
		return err
	}
	if err := e.startStreams(ctx); err != nil {
		return err
	}
	if err := e.refreshBalance(ctx); err != nil {
		logger.Warnf("initial balance fetch failed: %v", err)
	}
	return e.persist()
}

func (e *Engine) runPhase(ctx context.Context, phase string, fn func(context.Context) error) error {
	phaseCtx, cancel := context.WithTimeout(ctx, startupPhaseTimeout)
	defer cancel()
	err := fn(phaseCtx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return &StartupTimeoutError{Phase: phase, Timeout: startupPhaseTimeout}
	}
	return fmt.Errorf("startup phase %q: %w", phase, err)
}

func (e *Engine) setupSymbols(ctx context.Context) error {
	trading := e.tradingCfg()
	for _, sym := range e.symbols() {
		if err := e.exec.SetLeverage(ctx, sym, trading.Leverage); err != nil {
			return fmt.Errorf("set leverage %s: %w", sym, err)
		}
		if err := e.exec.SetMarginMode(ctx, sym, trading.Margin()); err != nil {
			return fmt.Errorf("set margin mode %s: %w", sym, err)
		}
		logger.Debugf("%s: leverage=%dx margin=%s", sym, trading.Leverage, trading.Margin())
	}
	return nil
}

// syncPositions reconciles persisted local state with the exchange. The
// exchange is authoritative: local-only records are dropped, exchange-only
// positions adopted at the exchange entry price.
func (e *Engine) syncPositions(ctx context.Context, records map[string]statestore.Record) error {
	open, err := e.exec.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("list open positions: %w", err)
	}
	remote := make(map[string]exchange.Position, len(open))
	for _, pos := range open {
		remote[pos.Symbol] = pos
	}

	trading := e.tradingCfg()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	for sym, state := range e.states {
		rec, hasLocal := records[sym]
		pos, hasRemote := remote[sym]

		switch {
		case hasRemote && hasLocal:
			state.AdoptPosition(pos, rec.TargetProfit)
			state.Position.OpenedAt = rec.OpenedAt
			state.Position.PartialTPDone = rec.PartialTPDone
			logger.Infof("%s: restored %s position size=%v entry=%v", sym, pos.Side, pos.Size, pos.EntryPrice)
		case hasRemote:
			target := trading.RequiredMargin() + trading.PositionSizeUSD*trading.RoundTripFeeRate
			state.AdoptPosition(pos, target)
			logger.Warnf("%s: exchange reports untracked %s position size=%v, adopting it", sym, pos.Side, pos.Size)
		case hasLocal:
			logger.Warnf("%s: persisted %s position no longer on exchange, dropping local record", sym, rec.Side)
		}
	}
	for sym := range remote {
		if _, tracked := e.states[sym]; !tracked {
			logger.Warnf("%s: open position on exchange but symbol is not configured, leaving it alone", sym)
		}
	}
	return nil
}

func (e *Engine) seedHistory(ctx context.Context) error {
	limit := e.cfg.Signals.HistoryLimit
	intervals := []string{e.cfg.Signals.TrendInterval, e.cfg.Signals.PullbackInterval}
	for _, sym := range e.symbols() {
		for _, interval := range intervals {
			fetchCtx, cancel := context.WithTimeout(ctx, historySeedTimeout)
			candles, err := e.source.FetchHistory(fetchCtx, sym, interval, limit)
			cancel()
			if err != nil {
				return fmt.Errorf("seed history %s %s: %w", sym, interval, err)
			}
			if err := e.klines.Set(ctx, sym, interval, candles); err != nil {
				return fmt.Errorf("store history %s %s: %w", sym, interval, err)
			}
			logger.Debugf("%s %s: seeded %d candles", sym, interval, len(candles))
		}
	}
	return nil
}

func (e *Engine) startStreams(ctx context.Context) error {
	symbols := e.symbols()
	intervals := []string{e.cfg.Signals.TrendInterval, e.cfg.Signals.PullbackInterval}

	e.updater = market.NewWSUpdater(e.klines, e.cfg.Signals.HistoryLimit, e.source,
		market.WithWSCallbacks(
			func() { logger.Infof("[ws] candle stream connected") },
			func(err error) { logger.Warnf("[ws] candle stream disconnected: %v", err) },
		),
	)
	if err := e.updater.Start(ctx, symbols, intervals); err != nil {
		return fmt.Errorf("start candle stream: %w", err)
	}

	ticks, err := e.source.SubscribeTrades(ctx, symbols, market.SubscribeOptions{})
	if err != nil {
		return fmt.Errorf("start trade stream: %w", err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case tick, ok := <-ticks:
				if !ok {
					return
				}
				e.prices.UpdateFromTick(tick)
			}
		}
	}()
	return nil
}

func (e *Engine) refreshBalance(ctx context.Context) error {
	var balance exchange.Balance
	err := e.guarded(func() error {
		var callErr error
		balance, callErr = e.exec.AvailableBalance(ctx)
		return callErr
	})
	if err != nil {
		return err
	}
	e.setBalance(balance)
	logger.Debugf("balance refreshed: %.2f %s available", balance.Available, balance.Asset)
	if e.trades != nil {
		if err := e.trades.AddEquityPoint(ctx, e.now(), balance.Total); err != nil {
			logger.Warnf("equity point write failed: %v", err)
		}
	}
	return nil
}

// persist snapshots all open positions to the state store. Failures are
// surfaced but never stop trading; the next state change retries.
func (e *Engine) persist() error {
	e.stateMu.Lock()
	records := make(map[string]statestore.Record)
	for sym, state := range e.states {
		pos := state.Position
		if pos == nil {
			continue
		}
		records[sym] = statestore.Record{
			Symbol:        sym,
			Side:          pos.Side,
			EntryPrice:    pos.EntryPrice,
			Size:          pos.Size,
			OpenedAt:      pos.OpenedAt,
			PartialTPDone: pos.PartialTPDone,
			TargetProfit:  pos.TargetProfit,
			UpdatedAt:     e.now().UTC(),
		}
	}
	e.stateMu.Unlock()

	if err := e.stateStore.Save(records); err != nil {
		logger.Errorf("state persist failed: %v", err)
		return err
	}
	return nil
}
