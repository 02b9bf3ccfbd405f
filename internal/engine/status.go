package engine

import "time"

// Status is the engine snapshot served by the status endpoint.
type Status struct {
	Running         bool           `json:"running"`
	TradingEnabled  bool           `json:"trading_enabled"`
	CircuitTripped  bool           `json:"circuit_tripped"`
	CircuitFailures int            `json:"circuit_failures"`
	CircuitUntil    *time.Time     `json:"circuit_until,omitempty"`
	Balance         float64        `json:"balance_available"`
	BalanceAsset    string         `json:"balance_asset,omitempty"`
	OpenPositions   int            `json:"open_positions"`
	Cycle           int64          `json:"cycle"`
	Symbols         []SymbolStatus `json:"symbols"`
}

type SymbolStatus struct {
	Symbol         string          `json:"symbol"`
	Trend          string          `json:"trend"`
	TrendST        string          `json:"trend_supertrend,omitempty"`
	PullbackST     string          `json:"pullback_supertrend,omitempty"`
	TrendUpdatedAt *time.Time      `json:"trend_updated_at,omitempty"`
	Position       *PositionStatus `json:"position,omitempty"`
	Trades         int             `json:"trades"`
	Wins           int             `json:"wins"`
	TotalPnL       float64         `json:"total_pnl"`
}

type PositionStatus struct {
	Side          string    `json:"side"`
	EntryPrice    float64   `json:"entry_price"`
	Size          float64   `json:"size"`
	OpenedAt      time.Time `json:"opened_at"`
	PartialTPDone bool      `json:"partial_tp_done"`
	TargetProfit  float64   `json:"target_profit"`
	UnrealPnL     float64   `json:"unrealized_pnl"`
	MarkPrice     float64   `json:"mark_price,omitempty"`
}

// Status snapshots the engine for the HTTP API.
func (e *Engine) Status() Status {
	bal := e.Balance()
	st := Status{
		Running:         e.running.Load(),
		TradingEnabled:  e.tradingEnabled.Load(),
		CircuitTripped:  e.breaker.Tripped(),
		CircuitFailures: e.breaker.Failures(),
		Balance:         bal.Available,
		BalanceAsset:    bal.Asset,
		Cycle:           e.cycles.Load(),
	}
	if until := e.breaker.TrippedUntil(); !until.IsZero() && st.CircuitTripped {
		st.CircuitUntil = &until
	}

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	for _, sym := range e.symbols() {
		state := e.states[sym]
		ss := SymbolStatus{
			Symbol:     sym,
			Trend:      string(state.Trend),
			TrendST:    string(state.TrendST),
			PullbackST: string(state.PullbackST),
			Trades:     state.Stats.Trades,
			Wins:       state.Stats.Wins,
			TotalPnL:   state.Stats.TotalPnL,
		}
		if !state.TrendUpdatedAt.IsZero() {
			at := state.TrendUpdatedAt
			ss.TrendUpdatedAt = &at
		}
		if pos := state.Position; pos != nil {
			ps := &PositionStatus{
				Side:          string(pos.Side),
				EntryPrice:    pos.EntryPrice,
				Size:          pos.Size,
				OpenedAt:      pos.OpenedAt,
				PartialTPDone: pos.PartialTPDone,
				TargetProfit:  pos.TargetProfit,
			}
			if price, _, ok := e.prices.Latest(sym); ok {
				ps.MarkPrice = price
				ps.UnrealPnL = pos.UnrealizedPnL(price)
			}
			ss.Position = ps
			st.OpenPositions++
		}
		st.Symbols = append(st.Symbols, ss)
	}
	return st
}
