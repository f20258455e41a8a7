package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

// ReconcileServiceOptions groups dependencies for ReconcileService.
type ReconcileServiceOptions struct {
	Members core.MemberRepository // Required: audience member repository
	Config  config.MonitorConfig  // Required: batch sizing
	Logger  *slog.Logger          // Optional: structured logger
}

// ReconcileService merges extracted audience members into the canonical
// table. Writes go through batched upserts keyed on the composite
// member identity, so replaying the same dataset refreshes rows instead
// of duplicating them.
type ReconcileService struct {
	members core.MemberRepository
	config  config.MonitorConfig
	logger  *slog.Logger
}

// NewReconcileService constructs a new ReconcileService.
func NewReconcileService(opts ReconcileServiceOptions) (*ReconcileService, error) {
	if opts.Members == nil {
		return nil, errors.New("MemberRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reconcile_service")
	}

	return &ReconcileService{
		members: opts.Members,
		config:  opts.Config,
		logger:  logger,
	}, nil
}

// Write persists the given members in batches and reports how many rows
// were created versus refreshed. A failed batch is logged and skipped;
// the remaining batches still get written.
func (s *ReconcileService) Write(ctx context.Context, members []*model.AudienceMember) model.ReconcileResult {
	result := model.ReconcileResult{}
	if len(members) == 0 {
		return result
	}

	// Scraped datasets repeat entities; a batch binding the same identity
	// twice would be rejected whole by the upsert's conflict clause.
	members = dedupeByIdentity(members)

	identities := make([]model.MemberIdentity, 0, len(members))
	for _, m := range members {
		identities = append(identities, m.Identity())
	}

	existing, err := s.members.CountExisting(ctx, identities)
	if err != nil {
		// Without the pre-count the new-vs-updated split would be a
		// guess, and a failing store is about to fail the writes too.
		result.Error = apperrors.Wrap(err, apperrors.ErrCodeStoreWrite, "failed to count existing members")
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "reconcile aborted before write", "error", err)
		}
		return result
	}

	batchSize := s.config.ReconcileBatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var firstBatchErr error
	for start := 0; start < len(members); start += batchSize {
		end := start + batchSize
		if end > len(members) {
			end = len(members)
		}

		written, err := s.members.UpsertBatch(ctx, core.UpsertMembersParams{
			Members: members[start:end],
		})
		if err != nil {
			result.FailedBatches++
			if firstBatchErr == nil {
				firstBatchErr = err
			}
			if s.logger != nil {
				s.logger.ErrorContext(ctx, "member batch write failed",
					"batch_start", start,
					"batch_size", end-start,
					"error", err,
				)
			}
			continue
		}
		result.Saved += written
	}

	if firstBatchErr != nil {
		result.Error = apperrors.Wrap(firstBatchErr, apperrors.ErrCodeStoreWrite, "one or more member batches failed")
	}

	// The pre-count covered every candidate identity. When batches fail
	// the split is clamped so updated never exceeds what was written.
	result.UpdatedCount = existing
	if result.UpdatedCount > result.Saved {
		result.UpdatedCount = result.Saved
	}
	result.NewCount = result.Saved - result.UpdatedCount

	if s.logger != nil {
		s.logger.InfoContext(ctx, "members reconciled",
			"saved", result.Saved,
			"new", result.NewCount,
			"updated", result.UpdatedCount,
			"failed_batches", result.FailedBatches,
		)
	}

	return result
}

// dedupeByIdentity collapses repeated composite identities, keeping the
// most recent occurrence while preserving first-seen order.
func dedupeByIdentity(members []*model.AudienceMember) []*model.AudienceMember {
	seen := make(map[model.MemberIdentity]int, len(members))
	out := make([]*model.AudienceMember, 0, len(members))
	for _, m := range members {
		id := m.Identity()
		if idx, ok := seen[id]; ok {
			out[idx] = m
			continue
		}
		seen[id] = len(out)
		out = append(out, m)
	}
	return out
}
