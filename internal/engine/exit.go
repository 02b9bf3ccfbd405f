package engine

import (
	"context"
	"time"

	"contra/internal/exchange"
	"contra/internal/logger"
	"contra/internal/pkg/trading"
	"contra/internal/store/tradelog"
	"contra/internal/strategy"
)

// reconcilePosition checks the exchange against the local book for one open
// symbol. The exchange is authoritative: a position it no longer reports is
// dropped locally, a different size is adopted.
func (e *Engine) reconcilePosition(ctx context.Context, sym string) error {
	var remote *exchange.Position
	err := e.guarded(func() error {
		p, err := e.exec.GetPosition(ctx, sym)
		if err != nil {
			return err
		}
		remote = p
		return nil
	})
	if err != nil {
		return err
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	state := e.states[sym]
	local := state.Position
	if local == nil {
		return nil
	}
	switch {
	case remote == nil:
		logger.Warnf("%s: exchange reports no position, dropping local %s %.8g",
			sym, local.Side, local.Size)
		state.ForceFlat()
	case remote.Side != local.Side:
		logger.Warnf("%s: exchange side %s differs from local %s, adopting exchange",
			sym, remote.Side, local.Side)
		state.AdoptPosition(*remote, local.TargetProfit)
	case remote.Size != local.Size:
		logger.Infof("%s: exchange size %.8g differs from local %.8g, adopting exchange",
			sym, remote.Size, local.Size)
		partial := local.PartialTPDone
		opened := local.OpenedAt
		state.AdoptPosition(*remote, local.TargetProfit)
		state.Position.PartialTPDone = partial
		state.Position.OpenedAt = opened
	}
	return nil
}

// checkPartialTakeProfit closes half the position once unrealized profit
// covers margin plus round-trip fees. Fires at most once per position.
func (e *Engine) checkPartialTakeProfit(ctx context.Context, sym string) {
	e.stateMu.Lock()
	state := e.states[sym]
	pos := state.Position
	if pos == nil || pos.PartialTPDone {
		e.stateMu.Unlock()
		return
	}
	side := pos.Side
	size := pos.Size
	entry := pos.EntryPrice
	target := pos.TargetProfit
	e.stateMu.Unlock()

	price, ok := e.markPrice(ctx, sym)
	if !ok || price <= 0 {
		return
	}
	pnl := (&strategy.Position{Side: side, EntryPrice: entry, Size: size}).UnrealizedPnL(price)
	if pnl < target {
		return
	}

	trading := e.tradingCfg()
	closeQty := tradingCloseAmount(size, trading.PartialTPRatio)
	if closeQty <= 0 || closeQty >= size {
		return
	}

	var fill exchange.Fill
	err := e.guarded(func() error {
		f, err := e.exec.PlaceMarketOrder(ctx, sym, side.Opposite(), closeQty, true)
		if err != nil {
			return err
		}
		fill = f
		return nil
	})
	if err != nil {
		logger.Warnf("%s: partial take-profit order failed: %v", sym, err)
		return
	}

	exitPrice := fill.AvgPrice
	if exitPrice <= 0 {
		exitPrice = price
	}

	e.stateMu.Lock()
	realized, rerr := state.ReducePartial(fill.Quantity, exitPrice)
	e.stateMu.Unlock()
	if rerr != nil {
		logger.Errorf("%s: partial take-profit state commit failed: %v", sym, rerr)
		return
	}

	logger.Infof("%s: partial take-profit closed %.8g @ %.6g, realized %.2f USDT (target %.2f)",
		sym, fill.Quantity, exitPrice, realized, target)
	e.logTrade(ctx, sym, side, entry, exitPrice, fill.Quantity, realized, true, "partial take-profit")
	if err := e.persist(); err != nil {
		logger.Warnf("%s: persist after partial take-profit failed: %v", sym, err)
	}
}

// checkExit closes the position when the long-horizon SuperTrend no longer
// supports it. The opposing direction alone suffices; exits run even while
// trading is disabled.
func (e *Engine) checkExit(ctx context.Context, sym string) {
	e.stateMu.Lock()
	state := e.states[sym]
	pos := state.Position
	if pos == nil {
		e.stateMu.Unlock()
		return
	}
	side := pos.Side
	trendST := state.TrendST
	prevTrendST := state.PrevTrendST
	e.stateMu.Unlock()

	exit, reason := strategy.ExitSignal(side, trendST, prevTrendST)
	if !exit {
		return
	}
	e.exitPosition(ctx, sym, reason)
}

// exitPosition closes the full remaining position at market.
func (e *Engine) exitPosition(ctx context.Context, sym, reason string) {
	e.stateMu.Lock()
	state := e.states[sym]
	pos := state.Position
	if pos == nil {
		e.stateMu.Unlock()
		return
	}
	side := pos.Side
	size := pos.Size
	entry := pos.EntryPrice
	e.stateMu.Unlock()

	var fill exchange.Fill
	err := e.guarded(func() error {
		f, err := e.exec.ClosePosition(ctx, sym)
		if err != nil {
			return err
		}
		fill = f
		return nil
	})
	if err != nil {
		if exchange.IsBenign(err) {
			logger.Warnf("%s: exchange already flat, dropping local position: %v", sym, err)
			e.stateMu.Lock()
			state.ForceFlat()
			e.stateMu.Unlock()
			if perr := e.persist(); perr != nil {
				logger.Warnf("%s: persist after force-flat failed: %v", sym, perr)
			}
		} else {
			logger.Errorf("%s: close order failed: %v", sym, err)
		}
		return
	}

	exitPrice := fill.AvgPrice
	if exitPrice <= 0 {
		exitPrice, _ = e.markPrice(ctx, sym)
	}

	e.stateMu.Lock()
	pnl, cerr := state.Close(exitPrice)
	e.stateMu.Unlock()
	if cerr != nil {
		logger.Errorf("%s: close state commit failed: %v", sym, cerr)
		return
	}

	logger.Infof("%s: closed %s %.8g @ %.6g, pnl %.2f USDT (%s)",
		sym, side, size, exitPrice, pnl, reason)
	e.logTrade(ctx, sym, side, entry, exitPrice, size, pnl, false, reason)
	if err := e.persist(); err != nil {
		logger.Warnf("%s: persist after close failed: %v", sym, err)
	}
}

// CloseAll flattens every open position at market. Used by the manual
// close-all endpoint; the reason is recorded on each trade.
func (e *Engine) CloseAll(ctx context.Context) int {
	closed := 0
	for _, sym := range e.symbols() {
		e.stateMu.Lock()
		open := e.states[sym].HasPosition()
		e.stateMu.Unlock()
		if !open {
			continue
		}
		e.exitPosition(ctx, sym, "manual close-all")
		e.stateMu.Lock()
		if !e.states[sym].HasPosition() {
			closed++
		}
		e.stateMu.Unlock()
	}
	return closed
}

func (e *Engine) logTrade(ctx context.Context, sym string, side exchange.Side, entry, exit, size, pnl float64, partial bool, reason string) {
	if e.trades == nil {
		return
	}
	pnlPct := 0.0
	if notional := entry * size; notional > 0 {
		pnlPct = pnl / notional * 100
	}
	rec := tradelog.TradeModel{
		Symbol:     sym,
		Side:       string(side),
		EntryPrice: entry,
		ExitPrice:  exit,
		Size:       size,
		PnL:        pnl,
		PnLPct:     pnlPct,
		Partial:    partial,
		Reason:     reason,
		ClosedAt:   e.now(),
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.trades.RecordTrade(cctx, rec); err != nil {
		logger.Warnf("%s: trade log write failed: %v", sym, err)
	}
}

func tradingCloseAmount(size, ratio float64) float64 {
	return trading.CalcCloseAmount(size, ratio)
}
