package exchange

import "time"

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the closing direction for a held side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

type MarginMode string

const (
	MarginIsolated MarginMode = "ISOLATED"
	MarginCrossed  MarginMode = "CROSSED"
)

// Position is an open futures position as reported by the exchange.
type Position struct {
	Symbol     string
	Side       Side
	Size       float64
	EntryPrice float64
	MarkPrice  float64
	UnrealPnL  float64
	Leverage   int
	UpdatedAt  time.Time
}

type Balance struct {
	Asset     string
	Available float64
	Total     float64
	UpdatedAt time.Time
}

// Fill is the observed result of a filled market order.
type Fill struct {
	Symbol   string
	Side     Side
	Quantity float64
	AvgPrice float64
	OrderID  int64
	ClientID string
	FilledAt time.Time
}
