package resilience

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errNilOperation = errors.New("resilience: operation callback is nil")

// Observer receives retry and breaker events, typically to export metrics.
type Observer interface {
	ObserveRetry(operation string, attempt int)
	ObserveBreakerState(operation string, state string)
}

// Executor retries classified failures and keeps one breaker per operation
// name. The zero breaker map is filled lazily.
type Executor struct {
	cfg      Config
	observer Observer

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: map[string]*gobreaker.CircuitBreaker[struct{}]{},
	}
}

// WithObserver attaches o and returns the executor.
func (e *Executor) WithObserver(o Observer) *Executor {
	e.observer = o
	return e
}

// Run executes fn through e, or directly when e is nil. Adapters hold an
// optional executor and call Run unconditionally.
func Run(ctx context.Context, e *Executor, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if e != nil {
		return e.Execute(ctx, operation, fn, classifier)
	}
	if fn == nil {
		return errNilOperation
	}
	return fn(ctx)
}

// State reports the breaker state of operation, or "closed" when no call
// has gone through it yet.
func (e *Executor) State(operation string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if breaker, ok := e.breakers[operation]; ok {
		return breaker.State().String()
	}
	return gobreaker.StateClosed.String()
}

func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classifier ErrorClassifier) error {
	if fn == nil {
		return errNilOperation
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	attempt := func() error { return e.retry(ctx, op, fn, classifier) }
	if !e.cfg.BreakerEnabled {
		return attempt()
	}
	_, err := e.breaker(op, classifier).Execute(func() (struct{}, error) {
		return struct{}{}, attempt()
	})
	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classifier ErrorClassifier) error {
	backoff := e.cfg.schedule()
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= e.cfg.RetryMaxAttempts || !classifier(err).Retryable {
			return err
		}

		wait := backoff.wait()
		slog.Warn("retry_attempt",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.cfg.RetryMaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err,
		)
		if e.observer != nil {
			e.observer.ObserveRetry(op, attempt)
		}
		if !sleep(ctx, wait) {
			return err
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Executor) breaker(op string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.breakers[op]; ok {
		return existing
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMaxCalls,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: e.tripRule,
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: e.stateChanged,
	})
	e.breakers[op] = cb
	return cb
}

func (e *Executor) tripRule(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < e.cfg.BreakerMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
}

func (e *Executor) stateChanged(name string, from, to gobreaker.State) {
	slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
	if e.observer != nil {
		e.observer.ObserveBreakerState(name, to.String())
	}
}
