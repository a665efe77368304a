// Package health provides readiness checks for the service and the external
// dependencies it publishes to.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 2 * time.Second

// Checker reports whether a dependency is usable.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f(ctx).
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

// Result is the outcome of one named check.
type Result struct {
	Name  string
	Error error
}

// OK reports whether the check passed.
func (r Result) OK() bool {
	return r.Error == nil
}

// Registry runs a fixed set of named checks.
type Registry struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewRegistry creates an empty registry. A non-positive timeout selects
// DefaultTimeout.
func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		checkers: make(map[string]Checker),
		timeout:  timeout,
	}
}

// Register adds or replaces the check under name. Nil checkers are ignored.
func (r *Registry) Register(name string, c Checker) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = c
}

// Run executes every check concurrently and returns the results sorted by
// name.
func (r *Registry) Run(ctx context.Context) []Result {
	r.mu.RLock()
	names := make([]string, 0, len(r.checkers))
	for name := range r.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	checkers := make([]Checker, len(names))
	for i, name := range names {
		checkers[i] = r.checkers[name]
	}
	r.mu.RUnlock()

	results := make([]Result, len(names))
	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			results[i] = Result{Name: names[i], Error: checkers[i].HealthCheck(checkCtx)}
		}(i)
	}
	wg.Wait()
	return results
}

// Healthy reports whether every result passed.
func Healthy(results []Result) bool {
	for _, res := range results {
		if !res.OK() {
			return false
		}
	}
	return true
}
