package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

// CircuitState describes the circuit breaker position.
type CircuitState string

const (
	// CircuitClosed means requests flow through normally.
	CircuitClosed CircuitState = "CLOSED"
	// CircuitOpen means requests fail fast without reaching the data service.
	CircuitOpen CircuitState = "OPEN"
	// CircuitHalfOpen means the next request probes whether the service recovered.
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// ErrCircuitOpen is reported when the breaker rejects a request without
// calling the data service.
var ErrCircuitOpen = errors.New("circuit breaker open: data service marked unavailable")

// Default breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
)

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns a BreakerConfig with default settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// Breaker wraps a Client with a circuit breaker. While the circuit is open,
// Resolve fails fast with ErrCircuitOpen instead of letting every job wait
// out the full retry schedule against a dead service.
type Breaker struct {
	inner  Client
	config BreakerConfig
	logger *slog.Logger

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// NewBreaker wraps inner with circuit breaking.
func NewBreaker(inner Client, config BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Breaker{
		inner:  inner,
		config: config,
		logger: logger.With("component", "circuit-breaker"),
		state:  CircuitClosed,
	}
}

// Resolve passes the call through when the circuit allows it and records the
// outcome.
func (b *Breaker) Resolve(ctx context.Context, groupID string) ([]string, error) {
	if !b.allow() {
		return nil, &UnavailableError{GroupID: groupID, Err: ErrCircuitOpen}
	}

	ids, err := b.inner.Resolve(ctx, groupID)
	if err != nil {
		b.recordFailure()
		return nil, err
	}

	b.recordSuccess()
	return ids, nil
}

// Healthy delegates to the wrapped client. Health probes bypass the circuit
// so a recovery can be observed while it is open.
func (b *Breaker) Healthy(ctx context.Context) error {
	return b.inner.Healthy(ctx)
}

// State returns the current circuit position.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// ForceClose resets the circuit to closed. The periodic health check calls
// this as soon as the data service answers again, so recovery does not wait
// for the next scheduled probe.
func (b *Breaker) ForceClose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitClosed {
		b.logger.Info("circuit breaker force-closed")
	}
	b.state = CircuitClosed
	b.failures = 0
	b.lastFailure = time.Time{}
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if time.Since(b.lastFailure) >= b.config.Cooldown {
			b.state = CircuitHalfOpen
			b.logger.Info("circuit breaker half-open, probing data service")
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != CircuitClosed {
		b.logger.Info("circuit breaker closed")
	}
	b.state = CircuitClosed
	b.failures = 0
	b.lastFailure = time.Time{}
}

// recordFailure stamps the failure time even while the circuit is already
// open, so a still-failing service keeps pushing the cooldown out.
func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case CircuitClosed:
		if b.failures >= b.config.FailureThreshold {
			b.state = CircuitOpen
			b.logger.Warn("circuit breaker opened",
				"failures", b.failures,
				"cooldown", b.config.Cooldown)
		}
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.logger.Warn("circuit breaker reopened after failed probe")
	}
}
