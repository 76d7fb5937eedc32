// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// HealthStatus is the health state of a component.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// HealthResult is the outcome of one check.
type HealthResult struct {
	Component string        `json:"component"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message,omitempty"`
	Duration  time.Duration `json:"duration"`
	LastCheck time.Time     `json:"last_check"`
}

// HealthChecker checks one component: a memory store, an MCP server, the
// audit store.
type HealthChecker interface {
	Check(ctx context.Context) HealthResult
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) HealthResult

// Check calls f.
func (f HealthCheckFunc) Check(ctx context.Context) HealthResult { return f(ctx) }

// CheckError is a HealthChecker that is unhealthy when fn fails.
func CheckError(fn func(ctx context.Context) error) HealthChecker {
	return HealthCheckFunc(func(ctx context.Context) HealthResult {
		if err := fn(ctx); err != nil {
			return HealthResult{Status: HealthUnhealthy, Message: err.Error()}
		}
		return HealthResult{Status: HealthHealthy}
	})
}

// HealthRegistry runs the registered checks. Results are cached for the
// TTL so frequent health checks do not hit remote components on every call.
type HealthRegistry struct {
	timeout time.Duration
	ttl     time.Duration

	mu       sync.Mutex
	checkers map[string]HealthChecker
	cache    map[string]HealthResult
}

// NewHealthRegistry returns a registry bounding each check by timeout.
// A zero ttl disables caching.
func NewHealthRegistry(timeout, ttl time.Duration) *HealthRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthRegistry{
		timeout:  timeout,
		ttl:      ttl,
		checkers: make(map[string]HealthChecker),
		cache:    make(map[string]HealthResult),
	}
}

// Register adds or replaces the checker of component.
func (r *HealthRegistry) Register(component string, checker HealthChecker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[component] = checker
	delete(r.cache, component)
}

// Components returns the registered component names, sorted.
func (r *HealthRegistry) Components() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every check concurrently and returns the results sorted by
// component with the overall status: unhealthy if any check is, degraded
// if any check is, healthy otherwise.
func (r *HealthRegistry) CheckAll(ctx context.Context) ([]HealthResult, HealthStatus) {
	names := r.Components()
	results := make([]HealthResult, len(names))

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = r.check(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	overall := HealthHealthy
	for _, res := range results {
		switch res.Status {
		case HealthUnhealthy:
			overall = HealthUnhealthy
		case HealthDegraded:
			if overall == HealthHealthy {
				overall = HealthDegraded
			}
		}
	}
	return results, overall
}

func (r *HealthRegistry) check(ctx context.Context, name string) HealthResult {
	r.mu.Lock()
	checker := r.checkers[name]
	cached, ok := r.cache[name]
	r.mu.Unlock()
	if ok && r.ttl > 0 && time.Since(cached.LastCheck) < r.ttl {
		return cached
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	res := checker.Check(cctx)
	if res.Status == "" {
		res.Status = HealthHealthy
	}
	if cctx.Err() != nil && res.Status == HealthHealthy {
		res = HealthResult{Status: HealthUnhealthy, Message: cctx.Err().Error()}
	}
	res.Component = name
	res.Duration = time.Since(start)
	res.LastCheck = time.Now()

	r.mu.Lock()
	r.cache[name] = res
	r.mu.Unlock()
	return res
}
