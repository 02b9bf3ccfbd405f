package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"

	"contra/internal/exchange"
	"contra/internal/logger"
)

// ExecutionClient implements exchange.Execution on Binance USDT-M futures.
// One-way position mode is assumed.
type ExecutionClient struct {
	cfg     Config
	client  *futures.Client
	filters *filterCache
}

func NewExecutionClient(cfg Config) (*ExecutionClient, error) {
	final := cfg.withDefaults()
	if strings.TrimSpace(final.APIKey) == "" || strings.TrimSpace(final.APISecret) == "" {
		return nil, fmt.Errorf("binance execution: api key and secret are required")
	}
	if final.Testnet {
		futures.UseTestnet = true
	}
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient, err := buildHTTPClient(final)
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	return &ExecutionClient{
		cfg:     final,
		client:  client,
		filters: newFilterCache(client),
	}, nil
}

// doWithRetry runs call, retrying classified-retryable failures with a
// linear backoff. The classified error of the final attempt is returned.
func (e *ExecutionClient) doWithRetry(ctx context.Context, what string, call func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}
		lastErr = classify(err)
		if !exchange.IsRetryable(lastErr) || attempt >= e.cfg.MaxRetries {
			return lastErr
		}
		backoff := time.Duration(attempt+1) * e.cfg.RetryBackoff
		logger.Warnf("[binance] %s failed (attempt %d/%d), retrying in %s: %v",
			what, attempt+1, e.cfg.MaxRetries+1, backoff, lastErr)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &exchange.RetryableError{Msg: "cancelled during retry backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (e *ExecutionClient) PlaceMarketOrder(ctx context.Context, symbol string, side exchange.Side, quantity float64, reduceOnly bool) (exchange.Fill, error) {
	if !side.Valid() {
		return exchange.Fill{}, &exchange.FatalError{Msg: fmt.Sprintf("invalid order side %q", side)}
	}
	flt, err := e.filters.get(ctx, symbol)
	if err != nil {
		return exchange.Fill{}, err
	}
	qty, err := flt.quantizeQty(quantity)
	if err != nil {
		return exchange.Fill{}, &exchange.FatalError{Msg: err.Error()}
	}
	orderSide := futures.SideTypeBuy
	if side == exchange.SideShort {
		orderSide = futures.SideTypeSell
	}
	clientID := "contra-" + uuid.NewString()[:18]

	var res *futures.CreateOrderResponse
	err = e.doWithRetry(ctx, "create order "+symbol, func() error {
		svc := e.client.NewCreateOrderService().
			Symbol(symbol).
			Side(orderSide).
			Type(futures.OrderTypeMarket).
			Quantity(qty).
			NewClientOrderID(clientID).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)
		if reduceOnly {
			svc = svc.ReduceOnly(true)
		}
		var callErr error
		res, callErr = svc.Do(ctx)
		return callErr
	})
	if err != nil {
		return exchange.Fill{}, err
	}

	fill := exchange.Fill{
		Symbol:   symbol,
		Side:     side,
		Quantity: parseFloat(res.ExecutedQuantity),
		AvgPrice: parseFloat(res.AvgPrice),
		OrderID:  res.OrderID,
		ClientID: res.ClientOrderID,
		FilledAt: time.UnixMilli(res.UpdateTime).UTC(),
	}
	if fill.Quantity <= 0 || fill.AvgPrice <= 0 {
		// RESULT responses occasionally lag the fill; the position is the
		// source of truth.
		if pos, perr := e.GetPosition(ctx, symbol); perr == nil && pos != nil {
			if fill.AvgPrice <= 0 {
				fill.AvgPrice = pos.EntryPrice
			}
			if fill.Quantity <= 0 {
				fill.Quantity = parseFloat(qty)
			}
		}
	}
	logger.Infof("[binance] %s %s qty=%s avg=%.8g reduceOnly=%v order=%d",
		symbol, side, qty, fill.AvgPrice, reduceOnly, fill.OrderID)
	return fill, nil
}

func (e *ExecutionClient) ClosePosition(ctx context.Context, symbol string) (exchange.Fill, error) {
	pos, err := e.GetPosition(ctx, symbol)
	if err != nil {
		return exchange.Fill{}, err
	}
	if pos == nil || pos.Size <= 0 {
		return exchange.Fill{}, &exchange.BenignError{Msg: fmt.Sprintf("no open position on %s", symbol)}
	}
	return e.PlaceMarketOrder(ctx, symbol, pos.Side.Opposite(), pos.Size, true)
}

func (e *ExecutionClient) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	var risks []*futures.PositionRisk
	err := e.doWithRetry(ctx, "position risk "+symbol, func() error {
		var callErr error
		risks, callErr = e.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	for _, risk := range risks {
		if risk == nil {
			continue
		}
		if pos, ok := convertPositionRisk(risk); ok {
			return &pos, nil
		}
	}
	return nil, nil
}

func (e *ExecutionClient) OpenPositions(ctx context.Context) ([]exchange.Position, error) {
	var risks []*futures.PositionRisk
	err := e.doWithRetry(ctx, "position risk", func() error {
		var callErr error
		risks, callErr = e.client.NewGetPositionRiskService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Position, 0, len(risks))
	for _, risk := range risks {
		if risk == nil {
			continue
		}
		if pos, ok := convertPositionRisk(risk); ok {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (e *ExecutionClient) AvailableBalance(ctx context.Context) (exchange.Balance, error) {
	var balances []*futures.Balance
	err := e.doWithRetry(ctx, "balance", func() error {
		var callErr error
		balances, callErr = e.client.NewGetBalanceService().Do(ctx)
		return callErr
	})
	if err != nil {
		return exchange.Balance{}, err
	}
	for _, b := range balances {
		if b == nil || b.Asset != "USDT" {
			continue
		}
		return exchange.Balance{
			Asset:     b.Asset,
			Available: parseFloat(b.AvailableBalance),
			Total:     parseFloat(b.Balance),
			UpdatedAt: time.Now().UTC(),
		}, nil
	}
	return exchange.Balance{}, &exchange.FatalError{Msg: "no USDT balance in futures account"}
}

func (e *ExecutionClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return e.doWithRetry(ctx, "set leverage "+symbol, func() error {
		_, err := e.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
		return err
	})
}

func (e *ExecutionClient) SetMarginMode(ctx context.Context, symbol string, mode exchange.MarginMode) error {
	marginType := futures.MarginTypeIsolated
	if mode == exchange.MarginCrossed {
		marginType = futures.MarginTypeCrossed
	}
	err := e.doWithRetry(ctx, "set margin mode "+symbol, func() error {
		return e.client.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(ctx)
	})
	if err != nil {
		var fatal *exchange.FatalError
		// -4046: already on the requested margin type
		if errors.As(err, &fatal) && fatal.Code == -4046 {
			return nil
		}
		return err
	}
	return nil
}

func convertPositionRisk(risk *futures.PositionRisk) (exchange.Position, bool) {
	amt := parseFloat(risk.PositionAmt)
	if amt == 0 {
		return exchange.Position{}, false
	}
	side := exchange.SideLong
	size := amt
	if amt < 0 {
		side = exchange.SideShort
		size = -amt
	}
	leverage, _ := strconv.Atoi(strings.TrimSpace(risk.Leverage))
	// PositionRisk carries no update timestamp; stamp the query time.
	return exchange.Position{
		Symbol:     strings.ToUpper(risk.Symbol),
		Side:       side,
		Size:       size,
		EntryPrice: parseFloat(risk.EntryPrice),
		MarkPrice:  parseFloat(risk.MarkPrice),
		UnrealPnL:  parseFloat(risk.UnRealizedProfit),
		Leverage:   leverage,
		UpdatedAt:  time.Now().UTC(),
	}, true
}
