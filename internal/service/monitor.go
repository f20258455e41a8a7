package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/extract"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	runpolicy "github.com/audiencelab/scrapewatch/internal/domain/run"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

// MonitorDeps groups the outbound ports MonitorService talks to.
type MonitorDeps struct {
	Runs     core.RunRepository  // Required: run repository
	Platform core.PlatformClient // Required: scrape platform API client
	Cache    core.SummaryCache   // Optional: runs summary cache
}

// MonitorParts groups the collaborating services MonitorService drives.
type MonitorParts struct {
	Recovery  *RecoveryService   // Required: bounded resume of failed runs
	Dataset   *DatasetService    // Required: paged dataset retrieval
	Reconcile *ReconcileService  // Required: member merge into the canonical table
	Extractor *extract.Extractor // Required: raw item to member mapping
}

// MonitorServiceOptions groups dependencies for MonitorService.
type MonitorServiceOptions struct {
	Deps   MonitorDeps          // Required: repositories and clients
	Parts  MonitorParts         // Required: collaborating services
	Config config.MonitorConfig // Required: tick sizing and feature toggles
	Logger *slog.Logger         // Optional: structured logger
}

// MonitorService is the tick-driven orchestrator. Each tick loads every
// run needing attention, refreshes its status from the platform,
// resumes recoverable failures, and reconciles the datasets of newly
// completed runs. One misbehaving run never blocks the rest of a tick.
type MonitorService struct {
	deps   MonitorDeps
	parts  MonitorParts
	config config.MonitorConfig
	logger *slog.Logger
}

// TickOptions toggles the side-effecting stages of one tick. The zero
// value checks statuses only.
type TickOptions struct {
	// AutoReconcile fetches and merges datasets of newly succeeded runs.
	AutoReconcile bool
	// AutoResurrect resumes failed and timed out runs within budget.
	AutoResurrect bool
}

// RunTickReport describes what happened to one run during a tick.
type RunTickReport struct {
	RunID         string          `json:"run_id"`
	ExternalJobID string          `json:"external_job_id"`
	Status        model.RunStatus `json:"status"`
	ItemsCount    int             `json:"items_count"`
	DataSaved     int             `json:"data_saved"`
	Resurrected   bool            `json:"resurrected"`
	Error         string          `json:"error,omitempty"`
}

// TickResult aggregates one tick's work.
type TickResult struct {
	Checked     int             `json:"checked"`
	Updated     int             `json:"updated"`
	Completed   int             `json:"completed"`
	Resurrected int             `json:"resurrected"`
	DataSaved   int             `json:"data_saved"`
	Runs        []RunTickReport `json:"runs"`
}

// SyncResult reports a single-run on-demand sync.
type SyncResult struct {
	RunID      string          `json:"run_id"`
	Status     model.RunStatus `json:"status"`
	Success    bool            `json:"success"`
	ItemsCount int             `json:"items_count"`
	DataSaved  int             `json:"data_saved"`
	Error      string          `json:"error,omitempty"`
}

// NewMonitorService constructs a new MonitorService.
func NewMonitorService(opts MonitorServiceOptions) (*MonitorService, error) {
	if opts.Deps.Runs == nil {
		return nil, errors.New("RunRepository is required")
	}
	if opts.Deps.Platform == nil {
		return nil, errors.New("PlatformClient is required")
	}
	if opts.Parts.Recovery == nil {
		return nil, errors.New("RecoveryService is required")
	}
	if opts.Parts.Dataset == nil {
		return nil, errors.New("DatasetService is required")
	}
	if opts.Parts.Reconcile == nil {
		return nil, errors.New("ReconcileService is required")
	}
	if opts.Parts.Extractor == nil {
		return nil, errors.New("Extractor is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "monitor_service")
		logger.Debug("MonitorService initialized",
			"run_batch_limit", opts.Config.RunBatchLimit,
			"auto_reconcile", opts.Config.AutoReconcile,
			"auto_resurrect", opts.Config.AutoResurrect,
		)
	}

	return &MonitorService{
		deps:   opts.Deps,
		parts:  opts.Parts,
		config: opts.Config,
		logger: logger,
	}, nil
}

// DefaultTickOptions returns the toggles from configuration.
func (s *MonitorService) DefaultTickOptions() TickOptions {
	return TickOptions{
		AutoReconcile: s.config.AutoReconcile,
		AutoResurrect: s.config.AutoResurrect,
	}
}

// Tick performs one monitoring pass. An error is returned only when the
// run listing itself fails; per-run failures are isolated into the
// result so the rest of the batch still advances.
func (s *MonitorService) Tick(ctx context.Context, opts TickOptions) (*TickResult, error) {
	runs, err := s.deps.Runs.ListNeedingAttention(ctx, s.config.RunBatchLimit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list runs needing attention")
	}

	result := &TickResult{}
	if len(runs) == 0 {
		return result, nil
	}

	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		report := s.checkRun(ctx, run, opts, result)
		result.Checked++
		result.Runs = append(result.Runs, report)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "tick finished",
			"checked", result.Checked,
			"updated", result.Updated,
			"completed", result.Completed,
			"resurrected", result.Resurrected,
			"data_saved", result.DataSaved,
		)
	}

	return result, nil
}

// checkRun advances one run through status refresh, recovery, and
// reconciliation. Failures are captured in the report, never returned.
func (s *MonitorService) checkRun(ctx context.Context, run *model.Run, opts TickOptions, agg *TickResult) RunTickReport {
	report := RunTickReport{
		RunID:         run.ID,
		ExternalJobID: run.ExternalJobID,
		Status:        run.Status,
		ItemsCount:    run.ItemsCount,
	}

	external, err := s.deps.Platform.GetStatus(ctx, run.ExternalJobID)
	if err != nil {
		report.Error = err.Error()
		if s.logger != nil {
			s.logger.WarnContext(ctx, "status check failed, leaving run as-is",
				"run_id", run.ID,
				"external_job_id", run.ExternalJobID,
				"error", err,
			)
		}
		return report
	}

	newStatus := runpolicy.TranslateStatus(external.Status)
	update := model.RunStatusUpdate{
		Status:     newStatus,
		ItemsCount: external.ItemCount,
		FinishedAt: external.FinishedAt,
	}
	if external.StartedAt != nil && external.FinishedAt != nil {
		update.DurationMs = external.FinishedAt.Sub(*external.StartedAt).Milliseconds()
	}
	if external.DatasetRef != "" {
		update.DatasetRef = &external.DatasetRef
	}
	if external.ErrorMessage != "" {
		update.ErrorMessage = &external.ErrorMessage
	}

	changed, err := s.deps.Runs.UpdateStatus(ctx, run.ID, update)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	if changed {
		agg.Updated++
	}

	run.Status = newStatus
	run.ItemsCount = external.ItemCount
	if update.DatasetRef != nil {
		run.DatasetRef = update.DatasetRef
	}
	report.Status = newStatus
	report.ItemsCount = external.ItemCount

	if !newStatus.Terminal() {
		return report
	}

	if newStatus.Recoverable() && opts.AutoResurrect {
		rec := s.parts.Recovery.Attempt(ctx, run)
		if rec.Resumed {
			report.Resurrected = true
			report.Status = run.Status
			agg.Resurrected++
			return report
		}
		report.Error = rec.Reason
	}

	agg.Completed++

	if newStatus == model.RunStatusSucceeded && opts.AutoReconcile {
		saved, err := s.reconcileRun(ctx, run)
		if err != nil {
			report.Error = err.Error()
			return report
		}
		report.DataSaved = saved
		report.ItemsCount = run.ItemsCount
		agg.DataSaved += saved
	}

	return report
}

// reconcileRun pulls the run's dataset, extracts members, merges them,
// and records the final item count on the run.
func (s *MonitorService) reconcileRun(ctx context.Context, run *model.Run) (int, error) {
	if run.DatasetRef == nil || *run.DatasetRef == "" {
		return 0, apperrors.Validation("succeeded run has no dataset reference")
	}

	raw, truncated, err := s.parts.Dataset.FetchAll(ctx, *run.DatasetRef)
	if err != nil {
		return 0, err
	}

	items := make([]extract.Item, len(raw))
	for i, it := range raw {
		items[i] = extract.Item(it)
	}

	extracted := s.parts.Extractor.ExtractAll(items, run.ProducerKind, run.SourceIdentifier())
	if s.logger != nil && extracted.Rejected > 0 {
		s.logger.WarnContext(ctx, "items rejected during extraction",
			"run_id", run.ID,
			"rejected", extracted.Rejected,
			"accepted", len(extracted.Members),
		)
	}

	merge := s.parts.Reconcile.Write(ctx, extracted.Members)
	if merge.Error != nil && merge.Saved == 0 {
		return 0, merge.Error
	}

	// The persisted count is the saved total, which can be lower than the
	// raw fetch when items were rejected during extraction.
	if _, err := s.deps.Runs.UpdateItemsCount(ctx, run.ID, merge.Saved); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to record items count",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
	run.ItemsCount = merge.Saved

	if s.logger != nil {
		s.logger.InfoContext(ctx, "run reconciled",
			"run_id", run.ID,
			"producer_kind", run.ProducerKind,
			"items_fetched", len(raw),
			"saved", merge.Saved,
			"new", merge.NewCount,
			"updated", merge.UpdatedCount,
			"truncated", truncated,
		)
	}

	return merge.Saved, nil
}

// SyncRun performs an on-demand sync of a single run by our internal id,
// with reconciliation and recovery both enabled.
func (s *MonitorService) SyncRun(ctx context.Context, runID string) (*SyncResult, error) {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	result := &TickResult{}
	report := s.checkRun(ctx, run, TickOptions{AutoReconcile: true, AutoResurrect: true}, result)

	return &SyncResult{
		RunID:      report.RunID,
		Status:     report.Status,
		Success:    report.Error == "",
		ItemsCount: report.ItemsCount,
		DataSaved:  report.DataSaved,
		Error:      report.Error,
	}, nil
}

// RunsSummary returns per-status run counts, served from the cache when
// a fresh entry exists.
func (s *MonitorService) RunsSummary(ctx context.Context) (*model.RunSummary, error) {
	if s.deps.Cache != nil {
		if summary, ok, err := s.deps.Cache.Get(ctx); err == nil && ok {
			return summary, nil
		} else if err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "summary cache read failed", "error", err)
		}
	}

	summary, err := s.deps.Runs.Summary(ctx)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, summary); err != nil && s.logger != nil {
			s.logger.WarnContext(ctx, "summary cache write failed", "error", err)
		}
	}

	return summary, nil
}

// ResetRecovery zeroes a run's resurrect counter so the next tick may
// resume it again. Operator action, never automatic.
func (s *MonitorService) ResetRecovery(ctx context.Context, runID string) error {
	reset, err := s.deps.Runs.ResetResurrectCount(ctx, runID)
	if err != nil {
		return err
	}
	if !reset {
		return apperrors.NotFound("run")
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "resurrect counter reset", "run_id", runID)
	}
	return nil
}

// AbortRun relays an abort request to the platform and records the
// resulting status locally.
func (s *MonitorService) AbortRun(ctx context.Context, runID string) (*SyncResult, error) {
	run, err := s.deps.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, apperrors.Conflict("run is already terminal")
	}

	externalStatus, err := s.deps.Platform.Abort(ctx, run.ExternalJobID)
	if err != nil {
		return nil, err
	}

	newStatus := runpolicy.TranslateStatus(externalStatus)
	if _, err := s.deps.Runs.UpdateStatus(ctx, run.ID, model.RunStatusUpdate{
		Status:     newStatus,
		ItemsCount: run.ItemsCount,
	}); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "abort relayed",
			"run_id", run.ID,
			"external_job_id", run.ExternalJobID,
			"external_status", externalStatus,
		)
	}

	return &SyncResult{
		RunID:      run.ID,
		Status:     newStatus,
		Success:    true,
		ItemsCount: run.ItemsCount,
	}, nil
}
