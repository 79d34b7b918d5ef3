package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/croniumhq/cronium-engine/config"
	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/mocks"
)

func newReaperFixture(t *testing.T, cfg config.ReaperConfig) (*ReaperService, *mocks.MockReaperRepository) {
	t.Helper()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	repo := mocks.NewMockReaperRepository(ctrl)
	svc, err := NewReaperService(ReaperServiceOptions{Repo: repo, Config: cfg})
	require.NoError(t, err)
	return svc, repo
}

func reaperTestConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:       time.Minute,
		TerminalMaxAge: 24 * time.Hour,
		BatchSize:      1000,
	}
}

func TestNewReaperServiceRequiresRepo(t *testing.T) {
	_, err := NewReaperService(ReaperServiceOptions{})
	require.Error(t, err)
}

func TestRunMaintenanceRunsBothSteps(t *testing.T) {
	cfg := reaperTestConfig()
	svc, repo := newReaperFixture(t, cfg)

	repo.EXPECT().RequeueExpired(gomock.Any()).Return(int64(3), nil)
	repo.EXPECT().
		DeleteOldJobs(gomock.Any(), core.DeleteOldJobsParams{MaxAge: cfg.TerminalMaxAge, BatchSize: cfg.BatchSize}).
		Return(int64(0), nil)

	require.NoError(t, svc.runMaintenance(context.Background()))
}

func TestDeleteOldJobsLoopsUntilBatchEmpty(t *testing.T) {
	cfg := reaperTestConfig()
	svc, repo := newReaperFixture(t, cfg)

	params := core.DeleteOldJobsParams{MaxAge: cfg.TerminalMaxAge, BatchSize: cfg.BatchSize}
	gomock.InOrder(
		repo.EXPECT().DeleteOldJobs(gomock.Any(), params).Return(int64(1000), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), params).Return(int64(1000), nil),
		repo.EXPECT().DeleteOldJobs(gomock.Any(), params).Return(int64(0), nil),
	)

	total, err := svc.deleteOldJobs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2000), total)
}

func TestRunMaintenanceContinuesPastStepFailure(t *testing.T) {
	cfg := reaperTestConfig()
	svc, repo := newReaperFixture(t, cfg)

	// The requeue step failing must not prevent the delete step from running.
	repo.EXPECT().RequeueExpired(gomock.Any()).Return(int64(0), errors.New("deadlock detected"))
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil)

	err := svc.runMaintenance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requeue expired leases")
}

func TestRunMaintenanceCollapsesContextCancellation(t *testing.T) {
	cfg := reaperTestConfig()
	svc, repo := newReaperFixture(t, cfg)

	repo.EXPECT().RequeueExpired(gomock.Any()).Return(int64(0), context.Canceled)
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), context.Canceled)

	err := svc.runMaintenance(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteOldJobsStopsWhenContextCancelled(t *testing.T) {
	cfg := reaperTestConfig()
	svc, repo := newReaperFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	repo.EXPECT().
		DeleteOldJobs(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, core.DeleteOldJobsParams) (int64, error) {
			cancel()
			return int64(500), nil
		})

	total, err := svc.deleteOldJobs(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(500), total)
}

func TestRunReturnsNilOnGracefulShutdown(t *testing.T) {
	cfg := reaperTestConfig()
	cfg.Interval = 50 * time.Millisecond
	svc, repo := newReaperFixture(t, cfg)

	repo.EXPECT().RequeueExpired(gomock.Any()).Return(int64(0), nil).AnyTimes()
	repo.EXPECT().DeleteOldJobs(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not shut down after cancellation")
	}
}
