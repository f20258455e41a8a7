// Package monitor provides the adapter that runs the monitor tick loop.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/observability/metrics"
	"github.com/audiencelab/scrapewatch/internal/observability/statsd"
	"github.com/audiencelab/scrapewatch/internal/service"
)

// Runner drives MonitorService.Tick at a fixed interval. When a tick
// lock is configured, a tick held by another instance is skipped rather
// than queued; the next interval tries again.
type Runner struct {
	monitor  *service.MonitorService
	lock     core.TickLock
	interval time.Duration
	logger   *slog.Logger
	metrics  statsd.Sink
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Monitor  *service.MonitorService // Required: the tick orchestrator
	Lock     core.TickLock           // Optional: cross-instance tick serialization
	Interval time.Duration           // Required: tick cadence
	Logger   *slog.Logger            // Optional: structured logger
	Metrics  statsd.Sink             // Optional: metrics sink (StatsD-compatible)
}

// NewRunner creates a new monitor runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Monitor == nil {
		return nil, errors.New("MonitorService is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "monitor_runner")
	}

	return &Runner{
		monitor:  opts.Monitor,
		lock:     opts.Lock,
		interval: opts.Interval,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the tick loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting monitor runner", "interval", r.interval)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// First tick fires immediately so a fresh deploy does not sit idle
	// for a whole interval.
	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("monitor runner stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if r.lock != nil {
		acquired, err := r.lock.TryAcquire(ctx)
		if err != nil {
			if r.logger != nil {
				r.logger.WarnContext(ctx, "tick lock unavailable, skipping tick", "error", err)
			}
			metrics.EmitTickLifecycle(r.metrics, metrics.TickMetric{Result: metrics.ResultError, Err: err})
			return
		}
		if !acquired {
			metrics.EmitTickLifecycle(r.metrics, metrics.TickMetric{Result: metrics.ResultSkipped})
			return
		}
		defer func() {
			if err := r.lock.Release(ctx); err != nil && r.logger != nil {
				r.logger.WarnContext(ctx, "tick lock release failed", "error", err)
			}
		}()
	}

	start := time.Now()
	result, err := r.monitor.Tick(ctx, r.monitor.DefaultTickOptions())
	elapsed := time.Since(start)

	if err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "tick failed", "error", err)
		}
		metrics.EmitTickLifecycle(r.metrics, metrics.TickMetric{
			Result:   metrics.ResultError,
			Duration: elapsed,
			Err:      err,
		})
		return
	}

	tickResult := metrics.ResultSuccess
	if result.Checked == 0 {
		tickResult = metrics.ResultNoop
	}

	metrics.EmitTickLifecycle(r.metrics, metrics.TickMetric{
		Result:      tickResult,
		Duration:    elapsed,
		Checked:     result.Checked,
		Updated:     result.Updated,
		Completed:   result.Completed,
		Resurrected: result.Resurrected,
		DataSaved:   result.DataSaved,
	})
}
