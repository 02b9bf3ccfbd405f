package exchange

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError marks a transient exchange failure (timeouts, rate limits,
// 5xx). The gateway retries these a bounded number of times; if they still
// surface, the engine counts them against the circuit breaker.
type RetryableError struct {
	Code int64
	Msg  string
	Err  error
}

func (e *RetryableError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("retryable exchange error %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("retryable exchange error: %s", e.Msg)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// FatalError marks a request the exchange will never accept (bad params,
// permissions, unknown symbol). Never retried, counted as a breaker failure.
type FatalError struct {
	Code int64
	Msg  string
	Err  error
}

func (e *FatalError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("fatal exchange error %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("fatal exchange error: %s", e.Msg)
}

func (e *FatalError) Unwrap() error { return e.Err }

// BenignError marks rejections that are expected in normal operation, like
// insufficient margin on an entry attempt. Neither a breaker failure nor a
// success; the engine soft-skips.
type BenignError struct {
	Code int64
	Msg  string
	Err  error
}

func (e *BenignError) Error() string {
	return fmt.Sprintf("benign exchange rejection %d: %s", e.Code, e.Msg)
}

func (e *BenignError) Unwrap() error { return e.Err }

// CircuitOpenError is returned locally while the breaker rejects calls.
// It never reaches the exchange and never feeds back into the breaker.
type CircuitOpenError struct {
	Until time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open until %s", e.Until.Format(time.RFC3339))
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func IsBenign(err error) bool {
	var be *BenignError
	return errors.As(err, &be)
}

func IsCircuitOpen(err error) bool {
	var ce *CircuitOpenError
	return errors.As(err, &ce)
}
