package roster

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// Default health check settings.
const (
	DefaultHealthInterval = 10 * time.Second
	DefaultHealthTimeout  = 5 * time.Second
)

// HealthConfig holds health check tuning.
type HealthConfig struct {
	// Interval is how often the data service is probed.
	Interval time.Duration

	// Timeout bounds a single probe.
	Timeout time.Duration
}

// DefaultHealthConfig returns a HealthConfig with default settings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		Interval: DefaultHealthInterval,
		Timeout:  DefaultHealthTimeout,
	}
}

// HealthCheck periodically probes the data service and force-closes the
// circuit breaker as soon as the service answers again. Without it, recovery
// would wait for the next job to trip the half-open probe.
type HealthCheck struct {
	breaker *Breaker
	config  HealthConfig
	logger  *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHealthCheck creates a health check for the given breaker.
func NewHealthCheck(breaker *Breaker, config HealthConfig, logger *slog.Logger) *HealthCheck {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &HealthCheck{
		breaker: breaker,
		config:  config,
		logger:  logger.With("component", "health-check"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the probe loop until ctx is canceled or Stop is called.
func (h *HealthCheck) Start(ctx context.Context) error {
	h.logger.Info("health check started", "interval", h.config.Interval)

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(h.doneCh)
			return ctx.Err()
		case <-h.stopCh:
			close(h.doneCh)
			return nil
		case <-ticker.C:
			if err := h.Tick(ctx); err != nil {
				h.logger.Warn("health check failed", "error", err)
			}
		}
	}
}

// Stop signals the loop to stop and waits for it to finish.
func (h *HealthCheck) Stop() {
	h.logger.Info("health check stopping")
	close(h.stopCh)
	<-h.doneCh
}

// Tick performs a single probe. A failed probe counts as a breaker failure,
// so a dead data service opens the circuit even when no jobs are running.
func (h *HealthCheck) Tick(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	if err := h.breaker.Healthy(ctx); err != nil {
		h.breaker.recordFailure()
		return err
	}

	h.breaker.ForceClose()
	return nil
}
