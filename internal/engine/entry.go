package engine

import (
	"context"

	"contra/internal/exchange"
	"contra/internal/logger"
	sizing "contra/internal/pkg/trading"
	"contra/internal/strategy"
)

// checkEntry evaluates the contrarian entry for a flat symbol and opens a
// position when all gates pass. The entry lock is held from the balance
// check to the state commit so a second symbol cannot spend the same
// margin.
func (e *Engine) checkEntry(ctx context.Context, sym string) {
	if !e.tradingEnabled.Load() {
		logger.Debugf("%s: trading disabled, entry skipped", sym)
		return
	}

	e.stateMu.Lock()
	state := e.states[sym]
	trend := state.Trend
	pullback := state.PullbackST
	e.stateMu.Unlock()

	side, ok := strategy.EntrySignal(trend, pullback)
	if !ok {
		return
	}

	price, ok := e.markPrice(ctx, sym)
	if !ok || price <= 0 {
		logger.Warnf("%s: no price available, entry skipped", sym)
		return
	}

	trading := e.tradingCfg()

	e.entryMu.Lock()
	defer e.entryMu.Unlock()

	if e.openPositionCount() >= trading.MaxOpenPositions {
		logger.Debugf("%s: max open positions (%d) reached, entry skipped", sym, trading.MaxOpenPositions)
		return
	}

	var bal exchange.Balance
	if err := e.guarded(func() error {
		b, err := e.exec.AvailableBalance(ctx)
		if err != nil {
			return err
		}
		bal = b
		return nil
	}); err != nil {
		logger.Warnf("%s: balance check failed, entry skipped: %v", sym, err)
		return
	}
	e.setBalance(bal)

	required := trading.RequiredMargin() * trading.MarginBuffer
	if bal.Available < required {
		logger.Warnf("%s: insufficient balance %.2f < %.2f USDT, entry skipped",
			sym, bal.Available, required)
		return
	}

	quantity := sizing.CalcQuantity(trading.PositionSizeUSD, price)
	if quantity <= 0 {
		logger.Warnf("%s: computed zero quantity at price %.6g, entry skipped", sym, price)
		return
	}

	var fill exchange.Fill
	err := e.guarded(func() error {
		f, err := e.exec.PlaceMarketOrder(ctx, sym, side, quantity, false)
		if err != nil {
			return err
		}
		fill = f
		return nil
	})
	if err != nil {
		if exchange.IsBenign(err) {
			logger.Warnf("%s: entry order rejected as benign: %v", sym, err)
		} else {
			logger.Errorf("%s: entry order failed: %v", sym, err)
		}
		return
	}

	entryPrice := fill.AvgPrice
	if entryPrice <= 0 {
		entryPrice = price
	}
	targetProfit := trading.RequiredMargin() + trading.PositionSizeUSD*trading.RoundTripFeeRate

	e.stateMu.Lock()
	err = state.Open(side, entryPrice, fill.Quantity, e.now(), targetProfit)
	e.stateMu.Unlock()
	if err != nil {
		logger.Errorf("%s: state commit after fill failed: %v", sym, err)
		return
	}

	logger.Infof("%s: opened %s %.8g @ %.6g (trend=%s, pullback=%s, target=%.2f USDT)",
		sym, side, fill.Quantity, entryPrice, trend, pullback, targetProfit)

	if err := e.persist(); err != nil {
		logger.Warnf("%s: persist after entry failed: %v", sym, err)
	}
}

func (e *Engine) openPositionCount() int {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	n := 0
	for _, s := range e.states {
		if s.HasPosition() {
			n++
		}
	}
	return n
}
