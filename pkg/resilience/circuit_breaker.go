// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jllopis/semkernel/pkg/errors"
)

// CircuitBreakerState is the breaker position.
type CircuitBreakerState string

const (
	StateClosed   CircuitBreakerState = "closed"
	StateOpen     CircuitBreakerState = "open"
	StateHalfOpen CircuitBreakerState = "half-open"
)

// CircuitBreakerConfig configures a circuit breaker. Zero values take the
// defaults applied by NewCircuitBreaker.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	Name    string
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// CircuitBreaker stops calling an AI service that keeps failing.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu sync.RWMutex
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold < 1 {
		config.SuccessThreshold = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "ai_service"
	}
	b := &CircuitBreaker{config: config}
	b.cb = b.newBreaker()
	return b
}

func (b *CircuitBreaker) newBreaker() *gobreaker.CircuitBreaker {
	cfg := b.config
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, stateOf(from), stateOf(to))
		}
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// Call runs fn unless the breaker is open. A rejected call returns a
// recoverable CodeLLMError without running fn.
func (b *CircuitBreaker) Call(_ context.Context, fn func() error) error {
	b.mu.RLock()
	cb := b.cb
	b.mu.RUnlock()

	_, err := cb.Execute(func() (any, error) { return nil, fn() })
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.New(errors.CodeLLMError, "circuit breaker open", err).
			WithAttribute("breaker", b.config.Name).
			WithRecoverable(true)
	}
	return err
}

// State returns the current position.
func (b *CircuitBreaker) State() CircuitBreakerState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return stateOf(b.cb.State())
}

// Name returns the configured breaker name.
func (b *CircuitBreaker) Name() string { return b.config.Name }

// Reset closes the breaker and forgets its counts.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = b.newBreaker()
}

func stateOf(s gobreaker.State) CircuitBreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
