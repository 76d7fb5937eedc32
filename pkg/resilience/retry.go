// SPDX-License-Identifier: Apache-2.0
// Package resilience wraps AI service calls with retry, timeout and
// circuit breaker policies.
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/jllopis/semkernel/pkg/errors"
)

// RetryConfig controls retries with exponential backoff.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below one mean one.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier defaults to 2.
	Multiplier float64
	// Jitter in [0,1) randomizes each delay by that fraction.
	Jitter float64
	// IsRecoverable decides whether an error is retried. Nil uses the
	// kernel error classification.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig is the policy applied to AI clients when retries are
// enabled without explicit settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2,
		Jitter:        0.1,
		IsRecoverable: isRecoverableDefault,
	}
}

// NoRetry performs a single attempt.
func NoRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

func (rc RetryConfig) WithMaxAttempts(n int) RetryConfig {
	rc.MaxAttempts = n
	return rc
}

func (rc RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	rc.InitialDelay = d
	return rc
}

func (rc RetryConfig) WithMaxDelay(d time.Duration) RetryConfig {
	rc.MaxDelay = d
	return rc
}

func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// Do is Retry for calls without a result.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	_, err := Retry(ctx, rc, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (rc RetryConfig) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     rc.InitialDelay,
		RandomizationFactor: rc.Jitter,
		Multiplier:          rc.Multiplier,
		MaxInterval:         rc.MaxDelay,
	}
	if b.InitialInterval <= 0 {
		b.InitialInterval = backoff.DefaultInitialInterval
	}
	if b.Multiplier <= 0 {
		b.Multiplier = 2
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = max(b.InitialInterval, backoff.DefaultMaxInterval)
	}
	return b
}

// Retry runs fn until it succeeds, fails with an unrecoverable error or
// runs out of attempts, and returns the last error. Cancellation while
// waiting between attempts yields a CodeTimeout error.
func Retry[T any](ctx context.Context, rc RetryConfig, fn func() (T, error)) (T, error) {
	attempts := max(rc.MaxAttempts, 1)
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = isRecoverableDefault
	}

	var lastErr error
	tries := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		tries++
		v, err := fn()
		lastErr = err
		if err != nil && !recoverable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(rc.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		return v, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && lastErr != nil && !stderrors.Is(lastErr, ctxErr) {
		var zero T
		return zero, errors.New(errors.CodeTimeout, "context canceled during retry", ctxErr).
			WithContext("attempt", tries).
			WithContext("max_attempts", attempts).
			WithContext("last_error", lastErr.Error())
	}
	return v, err
}

// isRecoverableDefault retries everything except cancellation and kernel
// errors that are explicitly marked as not recoverable.
func isRecoverableDefault(err error) bool {
	if err == nil || stderrors.Is(err, context.Canceled) {
		return false
	}
	var ke *errors.KernelError
	if !stderrors.As(err, &ke) {
		return true
	}
	switch ke.Code {
	case errors.CodeConfiguration, errors.CodeInvalidInput, errors.CodeInvalidFunctionType:
		return false
	case errors.CodeRateLimit, errors.CodeTimeout:
		return true
	}
	return ke.Recoverable
}
