package core

import (
	"context"
	"time"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
)

// This file contains repository and client interface definitions (ports in
// hexagonal architecture). These interfaces define the contracts between
// the service layer and the data/platform layers. Service implementations
// should depend on these interfaces, not concrete implementations.

// RunRepository defines the interface for persisted run data operations.
type RunRepository interface {
	GetByID(ctx context.Context, id string) (*model.Run, error)
	// ListNeedingAttention returns all non-terminal runs plus terminal
	// succeeded runs whose items count is zero (finished but never
	// reconciled, a repair target).
	ListNeedingAttention(ctx context.Context, limit int) ([]*model.Run, error)
	UpdateStatus(ctx context.Context, id string, update model.RunStatusUpdate) (bool, error)
	// MarkResurrected resets a terminal run back to running, clearing its
	// error and finish timestamp and consuming one resurrect attempt. It
	// returns false when the run's resurrect budget was already exhausted;
	// the read-check-increment is a single guarded UPDATE.
	MarkResurrected(ctx context.Context, id string) (bool, error)
	ResetResurrectCount(ctx context.Context, id string) (bool, error)
	UpdateItemsCount(ctx context.Context, id string, itemsCount int) (bool, error)
	Summary(ctx context.Context) (*model.RunSummary, error)
}

// UpsertMembersParams groups parameters for MemberRepository.UpsertBatch.
type UpsertMembersParams struct {
	Members []*model.AudienceMember
}

// MemberRepository defines the interface for canonical audience member
// data operations. The composite (producer_kind, source_identifier,
// entity_id) identity is the sole deduplication key.
type MemberRepository interface {
	// CountExisting returns how many of the given identities already have
	// rows, establishing the new-vs-updated split before a write.
	CountExisting(ctx context.Context, identities []model.MemberIdentity) (int, error)
	// UpsertBatch writes one batch, refreshing existing rows on conflict,
	// and returns the number of rows written.
	UpsertBatch(ctx context.Context, params UpsertMembersParams) (int, error)
	CountBySource(ctx context.Context, kind model.ProducerKind, sourceIdentifier string) (int, error)
}

// ExternalRunStatus is the platform's view of one run.
type ExternalRunStatus struct {
	Status       string
	ItemCount    int
	StartedAt    *time.Time
	FinishedAt   *time.Time
	ErrorMessage string
	DatasetRef   string
}

// DatasetPage is one page of a run's result listing.
type DatasetPage struct {
	Items []map[string]any
	Total int
}

// ListItemsParams groups parameters for PlatformClient.ListItems.
type ListItemsParams struct {
	DatasetRef string
	Limit      int
	Offset     int
}

// PlatformClient is the outbound port to the external batch-job platform.
// Implementations are stateless and injected; every call is blocking I/O
// bounded by the client's timeout.
type PlatformClient interface {
	GetStatus(ctx context.Context, externalJobID string) (*ExternalRunStatus, error)
	ListItems(ctx context.Context, params ListItemsParams) (*DatasetPage, error)
	// Resurrect asks the platform to resume a terminally failed/timed-out
	// run from where it stopped and returns the new external status.
	Resurrect(ctx context.Context, externalJobID string) (string, error)
	// Abort is relayed on behalf of the presentation layer; the monitor
	// itself never aborts runs.
	Abort(ctx context.Context, externalJobID string) (string, error)
}

// SummaryCache caches the runs summary for dashboard reads.
type SummaryCache interface {
	Get(ctx context.Context) (*model.RunSummary, bool, error)
	Set(ctx context.Context, summary *model.RunSummary) error
}

// TickLock serializes monitor ticks across instances so the per-run
// read-check-increment of the resurrect counter never interleaves.
type TickLock interface {
	// TryAcquire returns false without blocking when another holder owns the lock.
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
