// Package orchestrator pulls claimed jobs through their lifecycle: it claims
// batches from the queue, dispatches each job to the handler for its type,
// and reports the terminal outcome back through the job service.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/domain/model"
	obserrors "github.com/croniumhq/cronium-engine/internal/observability/errors"
	"github.com/croniumhq/cronium-engine/internal/observability/metrics"
	"github.com/croniumhq/cronium-engine/internal/observability/statsd"
	"github.com/croniumhq/cronium-engine/internal/service"
)

// HandlerFunc executes one job and returns its result. A non-nil error marks
// the job failed; the result (when non-nil) is persisted either way.
type HandlerFunc func(ctx context.Context, job *model.Job) (*model.ExecutionResult, error)

// ToolHandler executes one action of a registered tool plugin.
type ToolHandler func(ctx context.Context, action string, params []byte) (*model.ExecutionResult, error)

const (
	maxResponseBodyBytes = 4 * 1024 // 4KB to avoid storing excessively large payloads
)

// RunnerOptions configures the orchestrator runner.
type RunnerOptions struct {
	Jobs       *service.JobService // Required: job lifecycle service
	Logger     *slog.Logger
	HTTPClient *http.Client

	// Job processing settings
	OrchestratorID string          // claim identity; defaults to a generated id
	Lease          time.Duration   // per-claim lease duration; defaults to 30s
	Concurrency    int             // number of worker goroutines; defaults to 1
	BatchSize      int             // jobs claimed per query; defaults to Concurrency
	TypeFilter     []model.JobType // job types to process; defaults to all

	// Handlers
	Executor     core.ScriptExecutor    // Required for script jobs
	ToolHandlers map[string]ToolHandler // Optional: tool plugin registry

	Metrics statsd.Sink
}

// Runner claims jobs and executes them using per-type handlers.
type Runner struct {
	jobs           *service.JobService
	executor       core.ScriptExecutor
	toolHandlers   map[string]ToolHandler
	http           *http.Client
	logger         *slog.Logger
	orchestratorID string
	lease          time.Duration
	workers        int
	batchSize      int
	typeFilter     []model.JobType
	handlers       map[model.JobType]HandlerFunc
	metrics        statsd.Sink

	mu      sync.Mutex
	pending []*model.Job
}

func resolveLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}

func resolveHTTPClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// NewRunner constructs an orchestrator runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Jobs == nil {
		return nil, errors.New("JobService is required")
	}

	logger := resolveLogger(opts.Logger).With("component", "orchestrator")

	lease := opts.Lease
	if lease <= 0 {
		lease = 30 * time.Second
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = workers
	}
	orchestratorID := opts.OrchestratorID
	if orchestratorID == "" {
		orchestratorID = "orchestrator-" + uuid.NewString()
	}

	typeFilter := opts.TypeFilter
	if len(typeFilter) == 0 {
		typeFilter = []model.JobType{model.JobTypeScript, model.JobTypeHTTPRequest, model.JobTypeToolAction}
	}
	for _, t := range typeFilter {
		if !t.Valid() {
			return nil, fmt.Errorf("invalid job type in filter: %s", t)
		}
	}

	r := &Runner{
		jobs:           opts.Jobs,
		executor:       opts.Executor,
		toolHandlers:   opts.ToolHandlers,
		http:           resolveHTTPClient(opts.HTTPClient),
		logger:         logger,
		orchestratorID: orchestratorID,
		lease:          lease,
		workers:        workers,
		batchSize:      batchSize,
		typeFilter:     typeFilter,
		handlers:       make(map[model.JobType]HandlerFunc),
		metrics:        opts.Metrics,
	}
	// Register built-in handlers
	r.handlers[model.JobTypeScript] = r.handleScriptJob
	r.handlers[model.JobTypeHTTPRequest] = r.handleHTTPRequestJob
	r.handlers[model.JobTypeToolAction] = r.handleToolActionJob
	if r.executor == nil {
		r.logger.Warn("no script executor configured; script jobs will fail")
	}
	return r, nil
}

// OrchestratorID returns the claim identity this runner stamps on jobs.
func (r *Runner) OrchestratorID() string {
	return r.orchestratorID
}

// Run starts worker goroutines and processes jobs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting orchestrator",
		"orchestrator_id", r.orchestratorID,
		"workers", r.workers,
		"batch_size", r.batchSize,
		"lease", r.lease,
	)

	// First worker error cancels the group context and stops the rest.
	g, ctx := errgroup.WithContext(ctx)

	// One notification stream per job type we process; any of them waking
	// up means a claim attempt is worthwhile.
	notify := make(chan struct{}, 1)
	for _, jt := range r.typeFilter {
		unsub, ch := r.jobs.Subscribe(jt)
		defer unsub()
		go forwardNotifications(ctx, ch, notify)
	}

	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			return r.workerLoop(ctx, notify)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func forwardNotifications(ctx context.Context, from <-chan struct{}, to chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-from:
			if !ok {
				return
			}
			select {
			case to <- struct{}{}:
			default:
			}
		}
	}
}

func (r *Runner) workerLoop(ctx context.Context, notify <-chan struct{}) error {
	for ctx.Err() == nil {
		job, err := r.nextJob(ctx)
		switch {
		case err == nil:
			r.processJob(ctx, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !r.waitForNotify(ctx, notify) {
				return nil
			}
		default:
			return fmt.Errorf("claim jobs: %w", err)
		}
	}
	return ctx.Err()
}

// nextJob pops a job from the shared pending batch, claiming a fresh batch
// when it runs dry. Batch claiming amortizes the claim query across workers.
func (r *Runner) nextJob(ctx context.Context) (*model.Job, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		job := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return job, nil
	}
	r.mu.Unlock()

	jobs, err := r.jobs.Claim(ctx, model.ClaimRequest{
		OrchestratorID: r.orchestratorID,
		BatchSize:      r.batchSize,
		TypeFilter:     r.typeFilter,
	}, r.lease)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, jobs[1:]...)
	return jobs[0], nil
}

func (r *Runner) waitForNotify(ctx context.Context, notify <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	}
}

// processJob drives one claimed job to a terminal state. Failures to record
// the outcome are logged; the lease reaper eventually requeues jobs whose
// terminal transition never landed.
func (r *Runner) processJob(ctx context.Context, job *model.Job) {
	start := time.Now()
	emit := func(transition, result string, err error) {
		metrics.EmitJobLifecycle(r.metrics, metrics.JobMetric{
			JobType:    string(job.Type),
			Transition: transition,
			Result:     result,
			Duration:   time.Since(start),
			Err:        err,
		})
	}

	started, err := r.jobs.Start(ctx, job.ID, r.orchestratorID)
	if err != nil {
		r.logger.ErrorContext(ctx, "start job error", "job_id", job.ID, "error", err)
		emit("start", metrics.ResultError, err)
		return
	}

	h, ok := r.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("no handler for job type %s", job.Type)
		r.fail(ctx, job.ID, err.Error(), nil)
		emit("failed", metrics.ResultError, err)
		return
	}

	result, execErr := h(ctx, started)
	if execErr != nil {
		r.fail(ctx, job.ID, execErr.Error(), result)
		emit("failed", metrics.ResultError, execErr)
		return
	}

	// Complete routes a failing result to the failed status itself.
	done, err := r.jobs.Complete(ctx, job.ID, result)
	if err != nil {
		r.logger.ErrorContext(ctx, "complete job error", "job_id", job.ID, "error", err)
		emit("completed", metrics.ResultError, err)
		return
	}
	if done.Status == model.JobStatusFailed {
		emit("failed", metrics.ResultError, errors.New(errMsgFromResult(result)))
		return
	}
	emit("completed", metrics.ResultSuccess, nil)
}

func errMsgFromResult(result *model.ExecutionResult) string {
	if result == nil {
		return "job failed"
	}
	if result.Error != "" {
		return result.Error
	}
	return fmt.Sprintf("job exited with code %d", result.ExitCode)
}

func (r *Runner) fail(ctx context.Context, id, msg string, result *model.ExecutionResult) {
	if _, err := r.jobs.Fail(ctx, id, msg, result); err != nil {
		r.logger.ErrorContext(ctx, "fail job error",
			"job_id", id,
			"error", err,
			"error_class", obserrors.Classify(err),
			"original_error", msg,
		)
	}
}
