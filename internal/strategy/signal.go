package strategy

import (
	"contra/internal/exchange"
	"contra/internal/indicator"
)

// EntrySignal applies the contrarian rule: enter against the short-horizon
// pullback, with the long-horizon trend. A red pullback inside a bullish
// regime is a dip to buy; a green pullback inside a bearish regime is a
// rally to sell.
func EntrySignal(trend Trend, pullback indicator.Direction) (exchange.Side, bool) {
	switch {
	case trend == TrendBullish && pullback == indicator.DirRed:
		return exchange.SideLong, true
	case trend == TrendBearish && pullback == indicator.DirGreen:
		return exchange.SideShort, true
	default:
		return "", false
	}
}

// ExitSignal reports whether an open position must close given the current
// and previous long-horizon SuperTrend directions. The current direction
// being opposite to the position is sufficient on its own; no flip edge is
// required, so a direction that turned against the position while the
// process was down still exits on the first evaluation.
func ExitSignal(side exchange.Side, trendST, prevTrendST indicator.Direction) (bool, string) {
	opposing := opposingDirection(side)
	if trendST == opposing {
		if prevTrendST.Valid() && prevTrendST != trendST {
			return true, "trend supertrend flipped against position"
		}
		return true, "trend supertrend opposes position"
	}
	return false, ""
}

func opposingDirection(side exchange.Side) indicator.Direction {
	if side == exchange.SideLong {
		return indicator.DirRed
	}
	return indicator.DirGreen
}
