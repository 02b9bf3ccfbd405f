package binance

import (
	"context"
	"errors"
	"net"

	"github.com/adshao/go-binance/v2/common"

	"contra/internal/exchange"
)

// Closed classification table for Binance futures API error codes. Anything
// not listed is fatal: retrying an order the exchange has declared invalid
// only burns rate limit.
var (
	retryableCodes = map[int64]struct{}{
		-1000: {}, // UNKNOWN
		-1001: {}, // DISCONNECTED
		-1003: {}, // TOO_MANY_REQUESTS
		-1007: {}, // TIMEOUT
		-1008: {}, // SERVER_BUSY
		-1021: {}, // INVALID_TIMESTAMP (clock skew, recvWindow)
	}
	benignCodes = map[int64]struct{}{
		-2019: {}, // MARGIN_INSUFFICIENT: expected on entry attempts, soft skip
		-2022: {}, // REDUCE_ONLY_REJECT: position already gone
	}
)

// classify maps a raw client error onto the exchange error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		if _, ok := benignCodes[apiErr.Code]; ok {
			return &exchange.BenignError{Code: apiErr.Code, Msg: apiErr.Message, Err: err}
		}
		if _, ok := retryableCodes[apiErr.Code]; ok {
			return &exchange.RetryableError{Code: apiErr.Code, Msg: apiErr.Message, Err: err}
		}
		return &exchange.FatalError{Code: apiErr.Code, Msg: apiErr.Message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &exchange.RetryableError{Msg: "request deadline exceeded", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &exchange.RetryableError{Msg: netErr.Error(), Err: err}
	}
	// transport level failures we cannot attribute are worth one more try
	return &exchange.RetryableError{Msg: err.Error(), Err: err}
}
