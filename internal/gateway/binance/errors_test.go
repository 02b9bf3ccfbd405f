package binance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/stretchr/testify/assert"

	"contra/internal/exchange"
)

func TestClassifyAPIErrors(t *testing.T) {
	cases := []struct {
		name      string
		code      int64
		retryable bool
		benign    bool
		fatal     bool
	}{
		{"rate limit is retryable", -1003, true, false, false},
		{"timeout is retryable", -1007, true, false, false},
		{"clock skew is retryable", -1021, true, false, false},
		{"insufficient margin is benign", -2019, false, true, false},
		{"reduce-only reject is benign", -2022, false, true, false},
		{"bad param is fatal", -1102, false, false, true},
		{"unknown symbol is fatal", -1121, false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(&common.APIError{Code: tc.code, Message: "x"})
			assert.Equal(t, tc.retryable, exchange.IsRetryable(err))
			assert.Equal(t, tc.benign, exchange.IsBenign(err))
			assert.Equal(t, tc.fatal, exchange.IsFatal(err))
		})
	}
}

func TestClassifyWrappedAPIError(t *testing.T) {
	err := classify(fmt.Errorf("request failed: %w", &common.APIError{Code: -2019, Message: "Margin is insufficient."}))
	assert.True(t, exchange.IsBenign(err))

	var benign *exchange.BenignError
	assert.True(t, errors.As(err, &benign))
	assert.Equal(t, int64(-2019), benign.Code)
}

func TestClassifyTransportErrors(t *testing.T) {
	assert.True(t, exchange.IsRetryable(classify(context.DeadlineExceeded)))
	assert.True(t, exchange.IsRetryable(classify(errors.New("connection reset by peer"))))
	assert.NoError(t, classify(nil))
}
