package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/croniumhq/cronium-engine/config"
	"github.com/croniumhq/cronium-engine/internal/core"
	obserrors "github.com/croniumhq/cronium-engine/internal/observability/errors"
	"github.com/croniumhq/cronium-engine/internal/observability/metrics"
	"github.com/croniumhq/cronium-engine/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    core.ReaperRepository // Required: reaper repository
	Config  config.ReaperConfig   // Required: reaper configuration
	Logger  *slog.Logger          // Optional: structured logger
	Metrics statsd.Sink           // Optional: metrics sink (StatsD-compatible)
}

// ReaperService provides queue maintenance operations.
//
// This service manages:
// - Requeueing claimed/running jobs whose lease expired (orchestrator died).
// - Deleting old terminal jobs to prevent database bloat.
type ReaperService struct {
	repo    core.ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"terminal_max_age", opts.Config.TerminalMaxAge,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// It performs maintenance at the configured interval.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	// Run maintenance immediately after jitter
	if err := s.runMaintenance(ctx); err != nil {
		s.logMaintenanceError(err, "initial maintenance")
	}

	return s.runLoop(ctx, ticker)
}

// waitWithJitter adds a random delay up to 10% of the interval to prevent thundering herd.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	// Use modulo on uint64 before converting to avoid overflow
	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		// Graceful shutdown during jitter
	}
}

// runLoop runs the maintenance loop until context is cancelled.
func (s *ReaperService) runLoop(ctx context.Context, ticker *time.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			// Return nil on graceful shutdown to avoid treating it as a failure
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if err := s.runMaintenance(ctx); err != nil {
				s.logMaintenanceError(err, "maintenance")
				if isContextCancellation(err) {
					continue
				}
				// Continue running despite errors
			}
		}
	}
}

// runMaintenance performs all maintenance operations.
func (s *ReaperService) runMaintenance(ctx context.Context) error {
	start := time.Now()
	var (
		errs               []error
		allContextCanceled = true
		metricsData        = maintenanceMetrics{}
	)

	steps := []maintenanceStep{
		{
			fn:        s.requeueExpired,
			label:     "requeue expired leases",
			count:     &metricsData.RequeuedCount,
			metricErr: &metricsData.RequeuedErr,
		},
		{
			fn:        s.deleteOldJobs,
			label:     "delete old terminal jobs",
			count:     &metricsData.DeletedCount,
			metricErr: &metricsData.DeletedErr,
		},
	}

	for _, step := range steps {
		outcome := s.executeMaintenanceStep(ctx, step.fn, step.label)
		*step.count = outcome.count
		*step.metricErr = outcome.metricErr
		if outcome.aggregateErr != nil {
			errs = append(errs, outcome.aggregateErr)
			allContextCanceled = allContextCanceled && outcome.canceled
		}
	}

	metricsData.Elapsed = time.Since(start)
	s.emitMaintenanceMetrics(metricsData)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allContextCanceled && isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("maintenance failed: %w", joined)
	}

	return nil
}

type maintenanceFunc func(context.Context) (int64, error)

type maintenanceStep struct {
	fn        maintenanceFunc
	label     string
	count     *int64
	metricErr *error
}

type maintenanceStepOutcome struct {
	count        int64
	metricErr    error
	aggregateErr error
	canceled     bool
}

func (s *ReaperService) executeMaintenanceStep(
	ctx context.Context,
	fn maintenanceFunc,
	label string,
) maintenanceStepOutcome {
	count, err := fn(ctx)
	outcome := maintenanceStepOutcome{
		count:     count,
		metricErr: suppressContextCancellation(err),
		canceled:  isContextCancellation(err),
	}
	if err != nil {
		outcome.aggregateErr = fmt.Errorf("%s: %w", label, err)
	}
	return outcome
}

// requeueExpired returns expired claimed/running jobs to the queue.
func (s *ReaperService) requeueExpired(ctx context.Context) (int64, error) {
	count, err := s.repo.RequeueExpired(ctx)
	if err != nil {
		return count, err
	}

	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "requeued jobs with expired leases",
			"count", count,
		)
	}

	return count, nil
}

// deleteOldJobs deletes terminal jobs older than the configured max age.
// Loops until no more rows are affected to handle large datasets in batches.
func (s *ReaperService) deleteOldJobs(ctx context.Context) (int64, error) {
	var totalCount int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
			MaxAge:    s.config.TerminalMaxAge,
			BatchSize: s.config.BatchSize,
		})
		if err != nil {
			return totalCount, err
		}
		totalCount += count
		if count == 0 {
			break
		}
		// Check context between batches
		if ctx.Err() != nil {
			return totalCount, ctx.Err()
		}
	}

	if totalCount > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "deleted old terminal jobs",
			"count", totalCount,
			"max_age", s.config.TerminalMaxAge,
		)
	}

	return totalCount, nil
}

type maintenanceMetrics struct {
	RequeuedCount int64
	RequeuedErr   error
	DeletedCount  int64
	DeletedErr    error
	Elapsed       time.Duration
}

func (s *ReaperService) emitMaintenanceMetrics(m maintenanceMetrics) {
	if s.metrics == nil {
		return
	}

	totalCount := m.RequeuedCount + m.DeletedCount
	firstErr := firstError(m.RequeuedErr, m.DeletedErr)

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if totalCount == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"result": result,
	}

	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.maintenance", 1, tags)

	if m.Elapsed > 0 {
		s.metrics.Timing("reaper.maintenance_duration", m.Elapsed, metrics.CloneTags(tags))
	}

	s.emitMaintenanceOperationMetric("requeue_expired", m.RequeuedCount, m.RequeuedErr)
	s.emitMaintenanceOperationMetric("delete_terminal", m.DeletedCount, m.DeletedErr)

	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitMaintenanceOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}

	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.maintenance_operation", 1, tags)

	if err == nil && count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logMaintenanceError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}

	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}

	s.logger.Error(label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
