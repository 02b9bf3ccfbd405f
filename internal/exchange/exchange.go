package exchange

import "context"

// Execution is the order/account port the engine trades through. Market
// data flows through market.Source instead.
type Execution interface {
	// PlaceMarketOrder opens or reduces a position. side is the order
	// direction, not the held side: closing a LONG sends a SHORT order
	// with reduceOnly set.
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, quantity float64, reduceOnly bool) (Fill, error)

	// ClosePosition market-closes the full remaining size of the open
	// position on symbol. Returns the closing fill.
	ClosePosition(ctx context.Context, symbol string) (Fill, error)

	GetPosition(ctx context.Context, symbol string) (*Position, error)

	OpenPositions(ctx context.Context) ([]Position, error)

	AvailableBalance(ctx context.Context) (Balance, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error
}
