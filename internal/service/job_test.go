package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	"github.com/croniumhq/cronium-engine/internal/mocks"
)

type jobServiceFixture struct {
	svc         *JobService
	repo        *mocks.MockJobRepository
	coordinator *mocks.MockWorkflowCoordinator
	broadcaster *mocks.MockBroadcastGateway
}

func newJobServiceFixture(t *testing.T) *jobServiceFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockJobRepository(ctrl)
	coordinator := mocks.NewMockWorkflowCoordinator(ctrl)
	broadcaster := mocks.NewMockBroadcastGateway(ctrl)

	svc, err := NewJobService(JobServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		Coordinator:  coordinator,
		Broadcaster:  broadcaster,
	})
	require.NoError(t, err)

	return &jobServiceFixture{
		svc:         svc,
		repo:        repo,
		coordinator: coordinator,
		broadcaster: broadcaster,
	}
}

func terminalJob(status model.JobStatus, metadata string) *model.Job {
	started := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	return &model.Job{
		ID:          "job-1",
		EventID:     10,
		UserID:      "user-1",
		Type:        model.JobTypeScript,
		Status:      status,
		Metadata:    json.RawMessage(metadata),
		StartedAt:   &started,
		CompletedAt: &completed,
	}
}

func TestJobServiceRequiresRepo(t *testing.T) {
	_, err := NewJobService(JobServiceOptions{DefaultLease: time.Second})
	require.Error(t, err)
}

func TestCreateValidatesThroughRepo(t *testing.T) {
	f := newJobServiceFixture(t)

	req := &model.CreateJobRequest{
		EventID: 1,
		UserID:  "user-1",
		Type:    model.JobTypeScript,
		Payload: json.RawMessage(`{"script": {"type": "BASH", "content": "echo hi"}}`),
	}
	want := &model.Job{ID: "job-1", Status: model.JobStatusQueued}

	f.repo.EXPECT().Create(gomock.Any(), req).Return(want, nil)

	got, err := f.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestClaimPassesThroughNoJobsSentinel(t *testing.T) {
	f := newJobServiceFixture(t)

	req := model.ClaimRequest{OrchestratorID: "orch-1", BatchSize: 4}
	f.repo.EXPECT().Claim(gomock.Any(), req, 30).Return(nil, model.ErrNoJobsAvailable)

	_, err := f.svc.Claim(context.Background(), req, 0)
	assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
}

func TestClaimClampsSubSecondLease(t *testing.T) {
	f := newJobServiceFixture(t)

	req := model.ClaimRequest{OrchestratorID: "orch-1", BatchSize: 1}
	jobs := []*model.Job{{ID: "job-1", Status: model.JobStatusClaimed}}

	// 100ms is below the one-second floor; the repo must see 1 second.
	f.repo.EXPECT().Claim(gomock.Any(), req, 1).Return(jobs, nil)

	got, err := f.svc.Claim(context.Background(), req, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCompleteRunsCoordinatorAndBroadcast(t *testing.T) {
	f := newJobServiceFixture(t)

	result := &model.ExecutionResult{ExitCode: 0, ScriptOutput: json.RawMessage(`{"ok":true}`)}
	job := terminalJob(model.JobStatusCompleted, `{"logId":"log-1"}`)

	f.repo.EXPECT().
		Finish(gomock.Any(), core.FinishJobParams{ID: "job-1", Status: model.JobStatusCompleted, Result: result}).
		Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)
	f.broadcaster.EXPECT().
		Broadcast(gomock.Any(), "log-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update core.LogUpdate) core.BroadcastResult {
			assert.Equal(t, model.LogStatusSuccess, update.Status)
			require.NotNil(t, update.Output)
			assert.JSONEq(t, `{"ok":true}`, *update.Output)
			require.NotNil(t, update.Duration)
			assert.Equal(t, int64(3000), *update.Duration)
			return core.BroadcastResult{Success: true, Attempts: 1}
		})

	got, err := f.svc.Complete(context.Background(), "job-1", result)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestCompleteRoutesFailingResultToFailed(t *testing.T) {
	f := newJobServiceFixture(t)

	result := &model.ExecutionResult{ExitCode: -1, Error: "timeout"}
	job := terminalJob(model.JobStatusFailed, `{"logId":"log-1"}`)
	errMsg := "timeout"
	job.LastError = &errMsg

	f.repo.EXPECT().
		Finish(gomock.Any(), core.FinishJobParams{
			ID:     "job-1",
			Status: model.JobStatusFailed,
			Result: result,
			ErrMsg: "timeout",
		}).
		Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)
	f.broadcaster.EXPECT().
		Broadcast(gomock.Any(), "log-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update core.LogUpdate) core.BroadcastResult {
			assert.Equal(t, model.LogStatusTimeout, update.Status)
			return core.BroadcastResult{Success: true, Attempts: 1}
		})

	got, err := f.svc.Complete(context.Background(), "job-1", result)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestCompleteDerivesErrorFromExitCode(t *testing.T) {
	f := newJobServiceFixture(t)

	result := &model.ExecutionResult{ExitCode: 2, Stderr: "boom"}
	job := terminalJob(model.JobStatusFailed, `{}`)

	f.repo.EXPECT().
		Finish(gomock.Any(), core.FinishJobParams{
			ID:     "job-1",
			Status: model.JobStatusFailed,
			Result: result,
			ErrMsg: "job exited with code 2",
		}).
		Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)

	got, err := f.svc.Complete(context.Background(), "job-1", result)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestCompleteSucceedsWhenCoordinatorFails(t *testing.T) {
	f := newJobServiceFixture(t)

	job := terminalJob(model.JobStatusCompleted, `{"logId":"log-1"}`)

	f.repo.EXPECT().Finish(gomock.Any(), gomock.Any()).Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(errors.New("graph gone"))
	f.broadcaster.EXPECT().
		Broadcast(gomock.Any(), "log-1", gomock.Any()).
		Return(core.BroadcastResult{Success: true, Attempts: 1})

	// Fan-out failure never rolls back the terminal transition.
	got, err := f.svc.Complete(context.Background(), "job-1", &model.ExecutionResult{ExitCode: 0})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
}

func TestCompleteSkipsBroadcastWithoutLogID(t *testing.T) {
	f := newJobServiceFixture(t)

	job := terminalJob(model.JobStatusCompleted, `{}`)

	f.repo.EXPECT().Finish(gomock.Any(), gomock.Any()).Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)
	// No Broadcast expectation: a job without a log id publishes nothing.

	_, err := f.svc.Complete(context.Background(), "job-1", &model.ExecutionResult{ExitCode: 0})
	require.NoError(t, err)
}

func TestCompleteSucceedsWhenBroadcastFails(t *testing.T) {
	f := newJobServiceFixture(t)

	job := terminalJob(model.JobStatusCompleted, `{"logId":"log-1"}`)

	f.repo.EXPECT().Finish(gomock.Any(), gomock.Any()).Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)
	f.broadcaster.EXPECT().
		Broadcast(gomock.Any(), "log-1", gomock.Any()).
		Return(core.BroadcastResult{Success: false, Attempts: 3, Err: errors.New("redis down")})

	_, err := f.svc.Complete(context.Background(), "job-1", &model.ExecutionResult{ExitCode: 0})
	require.NoError(t, err)
}

func TestFailRequiresErrorMessage(t *testing.T) {
	f := newJobServiceFixture(t)

	_, err := f.svc.Fail(context.Background(), "job-1", "", nil)
	require.Error(t, err)
}

func TestFailProjectsFailureStatus(t *testing.T) {
	f := newJobServiceFixture(t)

	job := terminalJob(model.JobStatusFailed, `{"logId":"log-1"}`)
	errMsg := "exit status 2"
	job.LastError = &errMsg

	f.repo.EXPECT().
		Finish(gomock.Any(), core.FinishJobParams{
			ID:     "job-1",
			Status: model.JobStatusFailed,
			Result: nil,
			ErrMsg: errMsg,
		}).
		Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)
	f.broadcaster.EXPECT().
		Broadcast(gomock.Any(), "log-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update core.LogUpdate) core.BroadcastResult {
			assert.Equal(t, model.LogStatusFailure, update.Status)
			require.NotNil(t, update.Error)
			assert.Equal(t, errMsg, *update.Error)
			return core.BroadcastResult{Success: true, Attempts: 1}
		})

	got, err := f.svc.Fail(context.Background(), "job-1", errMsg, nil)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestCancelRunsCoordinator(t *testing.T) {
	f := newJobServiceFixture(t)

	job := terminalJob(model.JobStatusCancelled, `{}`)

	f.repo.EXPECT().Cancel(gomock.Any(), "job-1").Return(job, nil)
	f.coordinator.EXPECT().HandleJobTerminal(gomock.Any(), job).Return(nil)

	got, err := f.svc.Cancel(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCancelled, got.Status)
}

func TestStatsWrapsRepoError(t *testing.T) {
	f := newJobServiceFixture(t)

	f.repo.EXPECT().Stats(gomock.Any(), "user-1").Return(nil, errors.New("db gone"))

	_, err := f.svc.Stats(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get job stats")
}
