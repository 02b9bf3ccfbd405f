package strategy

import (
	"fmt"
	"time"

	"contra/internal/exchange"
	"contra/internal/indicator"
)

// Position is the locally tracked open position for one symbol.
type Position struct {
	Side          exchange.Side `json:"side"`
	EntryPrice    float64       `json:"entry_price"`
	Size          float64       `json:"size"`
	OpenedAt      time.Time     `json:"opened_at"`
	PartialTPDone bool          `json:"partial_tp_done"`
	TargetProfit  float64       `json:"target_profit"`
}

// UnrealizedPnL values the position at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p == nil || price <= 0 {
		return 0
	}
	if p.Side == exchange.SideLong {
		return (price - p.EntryPrice) * p.Size
	}
	return (p.EntryPrice - price) * p.Size
}

type Stats struct {
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	TotalPnL float64 `json:"total_pnl"`
}

// SymbolState is the per-symbol state machine. FLAT when Position is nil,
// otherwise open on Position.Side. The engine serializes all access; the
// struct itself carries no lock.
type SymbolState struct {
	Symbol string

	Trend        Trend
	TrendEMA     float64
	TrendClose   float64
	TrendST      indicator.Direction
	PrevTrendST  indicator.Direction
	TrendSTValue float64

	PullbackST      indicator.Direction
	PrevPullbackST  indicator.Direction
	PullbackSTValue float64

	Position *Position
	Stats    Stats

	TrendUpdatedAt time.Time
}

func NewSymbolState(symbol string) *SymbolState {
	return &SymbolState{Symbol: symbol, Trend: TrendNeutral}
}

// UpdateTrend records fresh long-horizon signals. The first update seeds the
// previous direction with the current one so a restart never reads a phantom
// flip.
func (s *SymbolState) UpdateTrend(close, ema float64, st indicator.Direction, stValue float64, at time.Time) {
	if s.TrendST.Valid() {
		s.PrevTrendST = s.TrendST
	} else {
		s.PrevTrendST = st
	}
	s.TrendST = st
	s.TrendSTValue = stValue
	s.TrendClose = close
	s.TrendEMA = ema
	s.Trend = DetectTrend(close, ema, st)
	s.TrendUpdatedAt = at
}

func (s *SymbolState) UpdatePullback(st indicator.Direction, stValue float64) {
	if s.PullbackST.Valid() {
		s.PrevPullbackST = s.PullbackST
	} else {
		s.PrevPullbackST = st
	}
	s.PullbackST = st
	s.PullbackSTValue = stValue
}

func (s *SymbolState) HasPosition() bool { return s.Position != nil }

// Open transitions FLAT -> OPEN. Opening over an existing position is a
// programming error and is refused.
func (s *SymbolState) Open(side exchange.Side, entryPrice, size float64, at time.Time, targetProfit float64) error {
	if s.Position != nil {
		return fmt.Errorf("%s: position already open (%s)", s.Symbol, s.Position.Side)
	}
	if !side.Valid() {
		return fmt.Errorf("%s: invalid side %q", s.Symbol, side)
	}
	if entryPrice <= 0 || size <= 0 {
		return fmt.Errorf("%s: invalid entry price=%v size=%v", s.Symbol, entryPrice, size)
	}
	s.Position = &Position{
		Side:         side,
		EntryPrice:   entryPrice,
		Size:         size,
		OpenedAt:     at,
		TargetProfit: targetProfit,
	}
	return nil
}

// ReducePartial shrinks the open position after a partial take-profit fill
// and marks the one-shot flag. Returns the realized part of the PnL.
func (s *SymbolState) ReducePartial(closedSize, exitPrice float64) (float64, error) {
	if s.Position == nil {
		return 0, fmt.Errorf("%s: no open position", s.Symbol)
	}
	if closedSize <= 0 || closedSize >= s.Position.Size {
		return 0, fmt.Errorf("%s: partial size %v out of range (0, %v)", s.Symbol, closedSize, s.Position.Size)
	}
	pnl := (&Position{Side: s.Position.Side, EntryPrice: s.Position.EntryPrice, Size: closedSize}).UnrealizedPnL(exitPrice)
	s.Position.Size -= closedSize
	s.Position.PartialTPDone = true
	s.Stats.TotalPnL += pnl
	return pnl, nil
}

// Close transitions OPEN -> FLAT, returning the realized PnL of the
// remaining size. partialTakeProfitDone dies with the position.
func (s *SymbolState) Close(exitPrice float64) (float64, error) {
	if s.Position == nil {
		return 0, fmt.Errorf("%s: no open position", s.Symbol)
	}
	pnl := s.Position.UnrealizedPnL(exitPrice)
	s.Stats.Trades++
	if pnl > 0 {
		s.Stats.Wins++
	}
	s.Stats.TotalPnL += pnl
	s.Position = nil
	return pnl, nil
}

// ForceFlat drops the local position without touching stats. Used when the
// exchange reports the position gone during reconcile.
func (s *SymbolState) ForceFlat() {
	s.Position = nil
}

// AdoptPosition replaces local position state with what the exchange
// reports. Used at startup reconcile; the exchange is authoritative.
func (s *SymbolState) AdoptPosition(p exchange.Position, targetProfit float64) {
	s.Position = &Position{
		Side:         p.Side,
		EntryPrice:   p.EntryPrice,
		Size:         p.Size,
		OpenedAt:     p.UpdatedAt,
		TargetProfit: targetProfit,
	}
}
