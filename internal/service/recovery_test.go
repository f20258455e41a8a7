package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/audiencelab/scrapewatch/internal/domain/model"
	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
	"github.com/audiencelab/scrapewatch/internal/mocks"
	"github.com/audiencelab/scrapewatch/internal/testutil"
)

func newRecoveryService(t *testing.T, runs *mocks.MockRunRepository, platform *mocks.MockPlatformClient) *RecoveryService {
	t.Helper()
	svc, err := NewRecoveryService(RecoveryServiceOptions{
		Runs:     runs,
		Platform: platform,
	})
	require.NoError(t, err)
	return svc
}

func TestNewRecoveryService_RequiredDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	_, err := NewRecoveryService(RecoveryServiceOptions{Platform: mocks.NewMockPlatformClient(ctrl)})
	assert.Error(t, err)

	_, err = NewRecoveryService(RecoveryServiceOptions{Runs: mocks.NewMockRunRepository(ctrl)})
	assert.Error(t, err)
}

func TestRecovery_Attempt_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	svc := newRecoveryService(t, runs, platform)

	run := testutil.NewRun().
		WithStatus(model.RunStatusFailed).
		WithResurrectCount(1).
		WithErrorMessage("actor crashed").
		Build()

	platform.EXPECT().Resurrect(gomock.Any(), run.ExternalJobID).Return("RUNNING", nil)
	runs.EXPECT().MarkResurrected(gomock.Any(), run.ID).Return(true, nil)

	result := svc.Attempt(context.Background(), run)

	assert.True(t, result.Resumed)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Equal(t, 2, run.ResurrectCount)
	assert.Nil(t, run.ErrorMessage)
	assert.Nil(t, run.FinishedAt)
}

func TestRecovery_Attempt_BudgetExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	svc := newRecoveryService(t, runs, platform)

	run := testutil.NewRun().
		WithStatus(model.RunStatusTimedOut).
		WithResurrectCount(model.MaxResurrectAttempts).
		Build()

	// No platform call, no write: the run stays terminal.
	result := svc.Attempt(context.Background(), run)

	assert.False(t, result.Resumed)
	assert.Equal(t, "max resurrect attempts reached", result.Reason)
	assert.Equal(t, model.RunStatusTimedOut, run.Status)
	assert.Equal(t, model.MaxResurrectAttempts, run.ResurrectCount)
}

func TestRecovery_Attempt_NotRecoverableState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	svc := newRecoveryService(t, runs, platform)

	for _, status := range []model.RunStatus{model.RunStatusSucceeded, model.RunStatusAborted, model.RunStatusRunning} {
		run := testutil.NewRun().WithStatus(status).Build()
		result := svc.Attempt(context.Background(), run)
		assert.False(t, result.Resumed, "status %s", status)
	}
}

func TestRecovery_Attempt_PlatformError_LeavesRunUntouched(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	svc := newRecoveryService(t, runs, platform)

	run := testutil.NewRun().
		WithStatus(model.RunStatusFailed).
		WithResurrectCount(0).
		Build()

	platform.EXPECT().
		Resurrect(gomock.Any(), run.ExternalJobID).
		Return("", apperrors.External("platform returned 500"))

	result := svc.Attempt(context.Background(), run)

	assert.False(t, result.Resumed)
	assert.Contains(t, result.Reason, "platform returned 500")
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 0, run.ResurrectCount)
}

func TestRecovery_Attempt_LostRace(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runs := mocks.NewMockRunRepository(ctrl)
	platform := mocks.NewMockPlatformClient(ctrl)
	svc := newRecoveryService(t, runs, platform)

	run := testutil.NewRun().
		WithStatus(model.RunStatusFailed).
		WithResurrectCount(2).
		Build()

	platform.EXPECT().Resurrect(gomock.Any(), run.ExternalJobID).Return("RUNNING", nil)
	runs.EXPECT().MarkResurrected(gomock.Any(), run.ID).Return(false, nil)

	result := svc.Attempt(context.Background(), run)

	assert.False(t, result.Resumed)
	assert.Equal(t, "max resurrect attempts reached", result.Reason)
}
