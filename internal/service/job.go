package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/croniumhq/cronium-engine/internal/core"
	domainjob "github.com/croniumhq/cronium-engine/internal/domain/job"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	"github.com/croniumhq/cronium-engine/internal/observability/metrics"
	"github.com/croniumhq/cronium-engine/internal/observability/statsd"
)

// JobServiceOptions groups dependencies for JobService.
type JobServiceOptions struct {
	Repo            core.JobRepository        // Required: job repository
	DefaultLease    time.Duration             // Required: default lease duration for claims
	Logger          *slog.Logger              // Optional: structured logger
	Coordinator     core.WorkflowCoordinator  // Optional: workflow fan-out on terminal transitions
	Broadcaster     core.BroadcastGateway     // Optional: log update push gateway
	Metrics         statsd.Sink               // Optional: metrics sink (StatsD-compatible)
	LeasePolicy     *domainjob.LeasePolicy    // Optional: override default lease policy
	Notifier        domainjob.Notifier        // Optional: custom job availability notifier
	NotifierOptions domainjob.NotifierOptions // Optional: configure default notifier behaviour
}

// JobService provides business logic for the durable job queue.
//
// This service manages:
// - Job creation and batch claiming with lease management
// - The lifecycle state machine (queued -> claimed -> running -> terminal)
// - Log-status projection and best-effort broadcast on every transition
// - Workflow fan-out after terminal transitions
// - Pub/sub notification system for job availability.
type JobService struct {
	repo        core.JobRepository
	leasePolicy *domainjob.LeasePolicy
	notifier    domainjob.Notifier
	coordinator core.WorkflowCoordinator
	broadcaster core.BroadcastGateway
	metrics     statsd.Sink
	logger      *slog.Logger
}

// NewJobService constructs a new JobService.
func NewJobService(opts JobServiceOptions) (*JobService, error) {
	if opts.Repo == nil {
		return nil, errors.New("JobRepository is required")
	}

	var leasePolicy *domainjob.LeasePolicy
	switch {
	case opts.LeasePolicy != nil:
		leasePolicy = opts.LeasePolicy
	case opts.DefaultLease > 0:
		var err error
		leasePolicy, err = domainjob.NewLeasePolicy(opts.DefaultLease)
		if err != nil {
			return nil, fmt.Errorf("create lease policy: %w", err)
		}
	default:
		return nil, errors.New("DefaultLease must be positive")
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Repo
		}
		var err error
		notifier, err = domainjob.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_service")
		logger.Debug("JobService initialized",
			"default_lease", leasePolicy.Default(),
		)
	}

	return &JobService{
		repo:        opts.Repo,
		leasePolicy: leasePolicy,
		notifier:    notifier,
		coordinator: opts.Coordinator,
		broadcaster: opts.Broadcaster,
		metrics:     opts.Metrics,
		logger:      logger,
	}, nil
}

// MustNewJobService constructs a new JobService and panics on error.
// Use this when you're certain the options are valid (e.g., in main.go).
func MustNewJobService(opts JobServiceOptions) *JobService {
	svc, err := NewJobService(opts)
	if err != nil {
		//nolint:forbidigo // Must constructor fails fast when dependencies are invalid during startup
		panic(fmt.Sprintf("failed to create JobService: %v", err))
	}
	return svc
}

// Create creates a new job with the given request parameters.
func (s *JobService) Create(ctx context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	job, err := s.repo.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job created",
			"id", job.ID,
			"type", job.Type,
			"event_id", job.EventID,
		)
	}

	return job, nil
}

// Claim atomically claims up to req.BatchSize queued jobs for an
// orchestrator. Returns model.ErrNoJobsAvailable when nothing is eligible.
func (s *JobService) Claim(
	ctx context.Context,
	req model.ClaimRequest,
	lease time.Duration,
) ([]*model.Job, error) {
	decision := s.leasePolicy.Resolve(lease)
	if decision.Clamped() && s.logger != nil {
		s.logger.DebugContext(ctx, "clamped sub-second lease duration to 1 second",
			"requested_duration", decision.Requested,
			"orchestrator_id", req.OrchestratorID)
	}

	jobs, err := s.repo.Claim(ctx, req, decision.Seconds)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, model.ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("claim jobs: %w", err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "jobs claimed",
			"orchestrator_id", req.OrchestratorID,
			"count", len(jobs),
			"lease_seconds", decision.Seconds,
		)
	}

	return jobs, nil
}

// Start moves a claimed job to running.
func (s *JobService) Start(ctx context.Context, id, orchestratorID string) (*model.Job, error) {
	job, err := s.repo.Start(ctx, id, orchestratorID)
	if err != nil {
		return nil, fmt.Errorf("start job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job started", "id", id, "orchestrator_id", orchestratorID)
	}

	s.emitTransition(job, "start", nil)
	s.publishStatus(ctx, job, nil)
	return job, nil
}

// Complete finishes a running job with the given result. The result decides
// the terminal status: a zero exit code with no error text completes the
// job, anything else routes it to failed so the failure is authoritative no
// matter which caller reports it.
func (s *JobService) Complete(ctx context.Context, id string, result *model.ExecutionResult) (*model.Job, error) {
	if result != nil && !result.Success() {
		msg := result.Error
		if msg == "" {
			msg = fmt.Sprintf("job exited with code %d", result.ExitCode)
		}
		return s.finish(ctx, core.FinishJobParams{
			ID:     id,
			Status: model.JobStatusFailed,
			Result: result,
			ErrMsg: msg,
		})
	}
	return s.finish(ctx, core.FinishJobParams{
		ID:     id,
		Status: model.JobStatusCompleted,
		Result: result,
	})
}

// Fail marks a running job as failed with the given result and error message.
func (s *JobService) Fail(ctx context.Context, id, errMsg string, result *model.ExecutionResult) (*model.Job, error) {
	if errMsg == "" {
		return nil, errors.New("error message required")
	}
	return s.finish(ctx, core.FinishJobParams{
		ID:     id,
		Status: model.JobStatusFailed,
		Result: result,
		ErrMsg: errMsg,
	})
}

// finish applies a terminal transition, then runs the post-terminal
// integration: workflow fan-out and the log-update broadcast. Both are
// layered outside the state machine; their failures never roll back the
// terminal status.
func (s *JobService) finish(ctx context.Context, params core.FinishJobParams) (*model.Job, error) {
	job, err := s.repo.Finish(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("finish job %s: %w", params.ID, err)
	}

	if s.logger != nil {
		s.logger.DebugContext(ctx, "job finished",
			"id", job.ID,
			"status", job.Status,
			"attempts", job.Attempts,
		)
	}

	var transitionErr error
	if params.ErrMsg != "" {
		transitionErr = errors.New(params.ErrMsg)
	}
	s.emitTransition(job, "finish", transitionErr)
	s.afterTerminal(ctx, job, params.Result)
	return job, nil
}

// Cancel moves a job to cancelled from any non-terminal state.
func (s *JobService) Cancel(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel job %s: %w", id, err)
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job cancelled", "id", id)
	}

	s.emitTransition(job, "cancel", nil)
	s.afterTerminal(ctx, job, nil)
	return job, nil
}

// afterTerminal runs the coordinator fan-out and the broadcast for a job
// that just reached a terminal state.
func (s *JobService) afterTerminal(ctx context.Context, job *model.Job, result *model.ExecutionResult) {
	if s.coordinator != nil {
		if err := s.coordinator.HandleJobTerminal(ctx, job); err != nil && s.logger != nil {
			s.logger.ErrorContext(ctx, "workflow fan-out failed",
				"job_id", job.ID,
				"status", job.Status,
				"error", err,
			)
		}
	}

	s.publishStatus(ctx, job, result)
}

// publishStatus projects the job's log status and pushes it through the
// broadcast gateway. Broadcast is best effort: a failed push is logged and
// dropped, the job's persisted status is authoritative either way.
func (s *JobService) publishStatus(ctx context.Context, job *model.Job, result *model.ExecutionResult) {
	if s.broadcaster == nil {
		return
	}

	meta, err := model.ParseJobMetadata(job.Metadata)
	if err != nil || meta.LogID == "" {
		return
	}

	if result == nil {
		parsed, perr := model.ParseExecutionResult(job.Result)
		if perr == nil {
			result = parsed
		}
	}

	lastError := ""
	if job.LastError != nil {
		lastError = *job.LastError
	}

	update := core.LogUpdate{
		Status: model.ProjectLogStatus(job.Status, result, lastError),
	}
	if result != nil && len(result.ScriptOutput) > 0 {
		output := string(result.ScriptOutput)
		update.Output = &output
	}
	if lastError != "" {
		update.Error = &lastError
	}
	if job.Status.Terminal() && job.CompletedAt != nil {
		update.EndTime = job.CompletedAt
		if job.StartedAt != nil {
			duration := job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
			update.Duration = &duration
		}
	}

	res := s.broadcaster.Broadcast(ctx, meta.LogID, update)
	if !res.Success && s.logger != nil {
		s.logger.WarnContext(ctx, "log update broadcast failed",
			"job_id", job.ID,
			"log_id", meta.LogID,
			"attempts", res.Attempts,
			"error", res.Err,
		)
	}
}

func (s *JobService) emitTransition(job *model.Job, transition string, err error) {
	if s.metrics == nil || job == nil {
		return
	}

	result := metrics.ResultSuccess
	if job.Status == model.JobStatusFailed {
		result = metrics.ResultError
	}

	var duration time.Duration
	if job.StartedAt != nil && job.CompletedAt != nil {
		duration = job.CompletedAt.Sub(*job.StartedAt)
	}

	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		JobType:    string(job.Type),
		Transition: transition,
		Result:     result,
		Duration:   duration,
		Err:        err,
	})
}

// Subscribe creates a subscription for job notifications of the given type.
// Returns an unsubscribe function and a channel that receives notifications.
func (s *JobService) Subscribe(jobType model.JobType) (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe(jobType)
}

// WaitForNotification waits for a notification indicating new jobs are available.
func (s *JobService) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	return s.repo.WaitForNotification(ctx, jobType)
}

// Stats returns per-status job counts, optionally scoped to one user.
func (s *JobService) Stats(ctx context.Context, userID string) (*model.JobStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return stats, nil
}

// GetByID returns a job by its ID.
func (s *JobService) GetByID(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get job by id %s: %w", id, err)
	}
	return job, nil
}

// StopAllListeners stops all active job notification listeners.
// This should be called during graceful shutdown to clean up goroutines.
func (s *JobService) StopAllListeners() {
	if s.logger != nil {
		s.logger.Info("stopping all job listeners")
	}

	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
