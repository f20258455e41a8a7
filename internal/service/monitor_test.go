package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audiencelab/scrapewatch/config"
	"github.com/audiencelab/scrapewatch/internal/core"
	"github.com/audiencelab/scrapewatch/internal/domain/extract"
	"github.com/audiencelab/scrapewatch/internal/domain/model"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
	"github.com/audiencelab/scrapewatch/internal/mocks"
	"github.com/audiencelab/scrapewatch/internal/testutil"
)

// fakeSummaryCache is a hand-rolled SummaryCache double.
type fakeSummaryCache struct {
	stored  *model.RunSummary
	getHits int
	setHits int
}

func (f *fakeSummaryCache) Get(context.Context) (*model.RunSummary, bool, error) {
	f.getHits++
	if f.stored == nil {
		return nil, false, nil
	}
	return f.stored, true, nil
}

func (f *fakeSummaryCache) Set(_ context.Context, summary *model.RunSummary) error {
	f.setHits++
	f.stored = summary
	return nil
}

type monitorFixture struct {
	runs     *mocks.MockRunRepository
	platform *mocks.MockPlatformClient
	members  *fakeMemberRepo
	cache    *fakeSummaryCache
	svc      *MonitorService
}

func newMonitorFixture(t *testing.T, cfg config.MonitorConfig) *monitorFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	cfg.Sanitize()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	members := &fakeMemberRepo{}
	cache := &fakeSummaryCache{}

	recovery, err := NewRecoveryService(RecoveryServiceOptions{Runs: runs, Platform: platform})
	require.NoError(t, err)

	dataset, err := NewDatasetService(DatasetServiceOptions{Platform: platform, Config: cfg})
	require.NoError(t, err)

	reconcile, err := NewReconcileService(ReconcileServiceOptions{Members: members, Config: cfg})
	require.NoError(t, err)

	svc, err := NewMonitorService(MonitorServiceOptions{
		Deps: MonitorDeps{
			Runs:     runs,
			Platform: platform,
			Cache:    cache,
		},
		Parts: MonitorParts{
			Recovery:  recovery,
			Dataset:   dataset,
			Reconcile: reconcile,
			Extractor: extract.NewExtractor(extract.ExtractorOptions{}),
		},
		Config: cfg,
	})
	require.NoError(t, err)

	return &monitorFixture{
		runs:     runs,
		platform: platform,
		members:  members,
		cache:    cache,
		svc:      svc,
	}
}

func allOptions() TickOptions {
	return TickOptions{AutoReconcile: true, AutoResurrect: true}
}

func TestMonitor_Tick_EmptyBatch(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return(nil, nil)

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Zero(t, result.Checked)
	assert.Empty(t, result.Runs)
}

func TestMonitor_Tick_RunCompletesAndReconciles(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).Build()
	started := time.Now().Add(-10 * time.Minute)
	finished := time.Now()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{run}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status:     "SUCCEEDED",
		ItemCount:  2,
		StartedAt:  &started,
		FinishedAt: &finished,
		DatasetRef: "ds-42",
	}, nil)
	f.runs.EXPECT().
		UpdateStatus(gomock.Any(), run.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update model.RunStatusUpdate) (bool, error) {
			assert.Equal(t, model.RunStatusSucceeded, update.Status)
			assert.Equal(t, 2, update.ItemsCount)
			require.NotNil(t, update.DatasetRef)
			assert.Equal(t, "ds-42", *update.DatasetRef)
			assert.Positive(t, update.DurationMs)
			return true, nil
		})
	f.platform.EXPECT().
		ListItems(gomock.Any(), core.ListItemsParams{DatasetRef: "ds-42", Offset: 0, Limit: 1000}).
		Return(&core.DatasetPage{
			Items: []map[string]any{
				{"user_id": float64(1), "username": "a"},
				{"user_id": float64(2), "username": "b"},
			},
			Total: 2,
		}, nil)
	f.runs.EXPECT().UpdateItemsCount(gomock.Any(), run.ID, 2).Return(true, nil)

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 2, result.DataSaved)
	require.Len(t, f.members.upsertCalls, 1)
	assert.Len(t, f.members.upsertCalls[0], 2)
}

func TestMonitor_Tick_RecordsSavedCountNotFetchedCount(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).Build()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{run}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status:     "SUCCEEDED",
		ItemCount:  3,
		DatasetRef: "ds-43",
	}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)
	f.platform.EXPECT().
		ListItems(gomock.Any(), gomock.Any()).
		Return(&core.DatasetPage{
			Items: []map[string]any{
				{"user_id": float64(1), "username": "a"},
				{"username": "ghost"}, // no entity id, rejected during extraction
				{"user_id": float64(3), "username": "c"},
			},
			Total: 3,
		}, nil)
	// The persisted count is what survived extraction and merge, not the
	// raw fetch size.
	f.runs.EXPECT().UpdateItemsCount(gomock.Any(), run.ID, 2).Return(true, nil)

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Equal(t, 2, result.DataSaved)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, 2, result.Runs[0].ItemsCount)
	require.Len(t, f.members.upsertCalls, 1)
	assert.Len(t, f.members.upsertCalls[0], 2)
}

func TestMonitor_Tick_FailedRunIsResurrected(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).WithResurrectCount(0).Build()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{run}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status:       "FAILED",
		ErrorMessage: "actor out of memory",
	}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)
	f.platform.EXPECT().Resurrect(gomock.Any(), run.ExternalJobID).Return("RUNNING", nil)
	f.runs.EXPECT().MarkResurrected(gomock.Any(), run.ID).Return(true, nil)

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Resurrected)
	assert.Zero(t, result.Completed)
	require.Len(t, result.Runs, 1)
	assert.True(t, result.Runs[0].Resurrected)
	assert.Equal(t, model.RunStatusRunning, result.Runs[0].Status)
}

func TestMonitor_Tick_ExhaustedRunStaysTerminal(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().
		WithStatus(model.RunStatusRunning).
		WithResurrectCount(model.MaxResurrectAttempts).
		Build()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{run}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status: "TIMED-OUT",
	}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)
	// No Resurrect call: the budget is spent.

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Zero(t, result.Resurrected)
	assert.Equal(t, 1, result.Completed)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, "max resurrect attempts reached", result.Runs[0].Error)
}

func TestMonitor_Tick_StatusCheckFailureIsIsolated(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	broken := testutil.NewRun().WithExternalJobID("ext-broken").Build()
	healthy := testutil.NewRun().WithExternalJobID("ext-healthy").Build()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{broken, healthy}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), "ext-broken").Return(nil, apperrors.External("boom"))
	f.platform.EXPECT().GetStatus(gomock.Any(), "ext-healthy").Return(&core.ExternalRunStatus{Status: "RUNNING"}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), healthy.ID, gomock.Any()).Return(false, nil)

	result, err := f.svc.Tick(context.Background(), allOptions())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	require.Len(t, result.Runs, 2)
	assert.Contains(t, result.Runs[0].Error, "boom")
	assert.Empty(t, result.Runs[1].Error)
}

func TestMonitor_Tick_TogglesOff(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).Build()

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return([]*model.Run{run}, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status: "FAILED",
	}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)
	// Neither Resurrect nor ListItems may be called with both toggles off.

	result, err := f.svc.Tick(context.Background(), TickOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Zero(t, result.Resurrected)
	assert.Zero(t, result.DataSaved)
}

func TestMonitor_Tick_ListFailure(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	f.runs.EXPECT().ListNeedingAttention(gomock.Any(), gomock.Any()).Return(nil, apperrors.Internal("db down"))

	_, err := f.svc.Tick(context.Background(), allOptions())
	require.Error(t, err)
}

func TestMonitor_SyncRun(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).WithDatasetRef("ds-7").Build()

	f.runs.EXPECT().GetByID(gomock.Any(), run.ID).Return(run, nil)
	f.platform.EXPECT().GetStatus(gomock.Any(), run.ExternalJobID).Return(&core.ExternalRunStatus{
		Status:     "SUCCEEDED",
		ItemCount:  1,
		DatasetRef: "ds-7",
	}, nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)
	f.platform.EXPECT().
		ListItems(gomock.Any(), gomock.Any()).
		Return(&core.DatasetPage{Items: []map[string]any{{"user_id": float64(9)}}, Total: 1}, nil)
	f.runs.EXPECT().UpdateItemsCount(gomock.Any(), run.ID, 1).Return(true, nil)

	result, err := f.svc.SyncRun(context.Background(), run.ID)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.RunStatusSucceeded, result.Status)
	assert.Equal(t, 1, result.DataSaved)
}

func TestMonitor_SyncRun_NotFound(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	f.runs.EXPECT().GetByID(gomock.Any(), "missing").Return(nil, apperrors.NotFound("run"))

	_, err := f.svc.SyncRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMonitor_RunsSummary_UsesCache(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	f.runs.EXPECT().Summary(gomock.Any()).Return(&model.RunSummary{Running: 3}, nil).Times(1)

	// First read populates the cache, second is served from it.
	first, err := f.svc.RunsSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Running)

	second, err := f.svc.RunsSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, second.Running)
	assert.Equal(t, 1, f.cache.setHits)
}

func TestMonitor_ResetRecovery(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	f.runs.EXPECT().ResetResurrectCount(gomock.Any(), "run-1").Return(true, nil)
	require.NoError(t, f.svc.ResetRecovery(context.Background(), "run-1"))

	f.runs.EXPECT().ResetResurrectCount(gomock.Any(), "run-2").Return(false, nil)
	err := f.svc.ResetRecovery(context.Background(), "run-2")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMonitor_AbortRun(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusRunning).Build()

	f.runs.EXPECT().GetByID(gomock.Any(), run.ID).Return(run, nil)
	f.platform.EXPECT().Abort(gomock.Any(), run.ExternalJobID).Return("ABORTED", nil)
	f.runs.EXPECT().UpdateStatus(gomock.Any(), run.ID, gomock.Any()).Return(true, nil)

	result, err := f.svc.AbortRun(context.Background(), run.ID)

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusAborted, result.Status)
}

func TestMonitor_AbortRun_AlreadyTerminal(t *testing.T) {
	f := newMonitorFixture(t, config.MonitorConfig{})

	run := testutil.NewRun().WithStatus(model.RunStatusSucceeded).Build()

	f.runs.EXPECT().GetByID(gomock.Any(), run.ID).Return(run, nil)

	_, err := f.svc.AbortRun(context.Background(), run.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
}
