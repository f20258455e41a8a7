package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

// RecoveryServiceOptions groups dependencies for RecoveryService.
type RecoveryServiceOptions struct {
	Runs     core.RunRepository  // Required: run repository
	Platform core.PlatformClient // Required: scrape platform API client
	Logger   *slog.Logger        // Optional: structured logger
}

// RecoveryService resumes runs that ended in a recoverable terminal
// state (failed or timed out). Each run carries a resurrect budget of
// model.MaxResurrectAttempts; once it is spent the run stays terminal
// until an operator resets the counter.
type RecoveryService struct {
	runs     core.RunRepository
	platform core.PlatformClient
	logger   *slog.Logger
}

// RecoveryResult reports the outcome of one recovery attempt.
type RecoveryResult struct {
	// Resumed is true when the platform accepted the resume request and
	// the run was moved back to running.
	Resumed bool
	// Reason explains a non-resumed outcome in operator terms.
	Reason string
}

// NewRecoveryService constructs a new RecoveryService.
func NewRecoveryService(opts RecoveryServiceOptions) (*RecoveryService, error) {
	if opts.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Platform == nil {
		return nil, errors.New("PlatformClient is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "recovery_service")
	}

	return &RecoveryService{
		runs:     opts.Runs,
		platform: opts.Platform,
		logger:   logger,
	}, nil
}

// Attempt tries to resume one run. A run outside the recoverable states
// or out of resurrect budget is a no-op, not an error. A platform
// failure leaves the stored run untouched; the next tick can retry.
func (s *RecoveryService) Attempt(ctx context.Context, run *model.Run) RecoveryResult {
	if !run.Status.Recoverable() {
		return RecoveryResult{Reason: "run is not in a recoverable state"}
	}
	if run.ResurrectCount >= model.MaxResurrectAttempts {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "resurrect budget exhausted, leaving run terminal",
				"run_id", run.ID,
				"resurrect_count", run.ResurrectCount,
			)
		}
		return RecoveryResult{Reason: "max resurrect attempts reached"}
	}

	externalStatus, err := s.platform.Resurrect(ctx, run.ExternalJobID)
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "platform rejected resurrect request",
				"run_id", run.ID,
				"external_job_id", run.ExternalJobID,
				"error", err,
			)
		}
		return RecoveryResult{Reason: err.Error()}
	}

	marked, err := s.runs.MarkResurrected(ctx, run.ID)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "failed to record resurrect",
				"run_id", run.ID,
				"error", err,
			)
		}
		return RecoveryResult{Reason: err.Error()}
	}
	if !marked {
		// Lost a race with another writer; the guarded UPDATE refused.
		return RecoveryResult{Reason: "max resurrect attempts reached"}
	}

	run.Status = model.RunStatusRunning
	run.ResurrectCount++
	run.ErrorMessage = nil
	run.FinishedAt = nil

	if s.logger != nil {
		s.logger.InfoContext(ctx, "run resurrected",
			"run_id", run.ID,
			"external_job_id", run.ExternalJobID,
			"external_status", externalStatus,
			"resurrect_count", run.ResurrectCount,
		)
	}

	return RecoveryResult{Resumed: true}
}
