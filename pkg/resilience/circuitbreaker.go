package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrCircuitOpen is returned when the breaker short-circuits a call
var ErrCircuitOpen = errors.New("circuit open")

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "external_circuit_state",
		Help: "Circuit state per external dependency: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "external_circuit_transitions_total",
		Help: "Circuit state changes per external dependency",
	}, []string{"name", "state"})
)

// CircuitBreakerState represents the current state of a circuit breaker
type CircuitBreakerState string

const (
	// StateClosed lets every call through
	StateClosed CircuitBreakerState = "closed"
	// StateOpen short-circuits calls until the retry timeout passes
	StateOpen CircuitBreakerState = "open"
	// StateHalfOpen lets probe calls through until SuccessThreshold of them succeed
	StateHalfOpen CircuitBreakerState = "half-open"
)

func (s CircuitBreakerState) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	}
	return 0
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	// Name labels logs and metrics, e.g. "anthropic" or "whatsapp"
	Name             string
	FailureThreshold uint
	SuccessThreshold uint
	// Timeout bounds each call made through ExecuteContext
	Timeout      time.Duration
	RetryTimeout time.Duration
	// IsFailure decides which errors count against the breaker. Defaults to IsRetryable.
	IsFailure func(error) bool
}

// DefaultCircuitBreakerConfig returns a default circuit breaker configuration
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		RetryTimeout:     60 * time.Second,
	}
}

// CircuitBreaker stops calling an external dependency after repeated transient failures
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log *logger.Logger

	mu          sync.Mutex
	state       CircuitBreakerState
	failures    uint
	probes      uint
	nextAttempt time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg CircuitBreakerConfig, log *logger.Logger) *CircuitBreaker {
	if cfg.IsFailure == nil {
		cfg.IsFailure = IsRetryable
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	breakerState.WithLabelValues(cfg.Name).Set(StateClosed.gauge())
	return &CircuitBreaker{cfg: cfg, log: log, state: StateClosed}
}

// ExecuteContext runs fn with the breaker's per-call timeout applied to ctx.
// Errors rejected by IsFailure are returned without counting against the breaker.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, fn func(ctx context.Context) error) error {
	if !cb.allow() {
		cb.log.Warn("Circuit open, call skipped", "name", cb.cfg.Name)
		return &CallError{Op: cb.cfg.Name, Retryable: true, Err: ErrCircuitOpen}
	}

	if cb.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cb.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	if err != nil && cb.cfg.IsFailure(err) {
		cb.log.Warn("External call failed", "name", cb.cfg.Name, "error", err.Error(), "duration", time.Since(start).String())
		cb.record(false)
		return err
	}
	cb.record(true)
	return err
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Now().Before(cb.nextAttempt) {
			return false
		}
		cb.probes = 0
		cb.transition(StateHalfOpen)
		return true
	case StateHalfOpen:
		return cb.probes < cb.cfg.SuccessThreshold
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case ok && cb.state == StateHalfOpen:
		cb.probes++
		if cb.probes >= cb.cfg.SuccessThreshold {
			cb.failures = 0
			cb.transition(StateClosed)
		}
	case ok:
		cb.failures = 0
	case cb.state == StateHalfOpen:
		cb.open()
	default:
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.open()
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.nextAttempt = time.Now().Add(cb.cfg.RetryTimeout)
	cb.transition(StateOpen)
	cb.log.Warn("Circuit opened", "name", cb.cfg.Name, "failures", cb.failures, "retry_at", cb.nextAttempt.Format(time.RFC3339))
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to CircuitBreakerState) {
	if cb.state == to {
		return
	}
	cb.state = to
	breakerState.WithLabelValues(cb.cfg.Name).Set(to.gauge())
	breakerTransitions.WithLabelValues(cb.cfg.Name, string(to)).Inc()
	if to != StateOpen {
		cb.log.Info("Circuit state changed", "name", cb.cfg.Name, "state", string(to))
	}
}
