package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/croniumhq/cronium-engine/config"
	"github.com/croniumhq/cronium-engine/internal/adapters/orchestrator"
	"github.com/croniumhq/cronium-engine/internal/adapters/reaper"
	"github.com/croniumhq/cronium-engine/internal/broadcast"
	"github.com/croniumhq/cronium-engine/internal/core"
	"github.com/croniumhq/cronium-engine/internal/data"
	sshexec "github.com/croniumhq/cronium-engine/internal/executor/ssh"
	"github.com/croniumhq/cronium-engine/internal/observability/statsd"
	"github.com/croniumhq/cronium-engine/internal/service"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Jobs          *service.JobService
	Workflows     *service.WorkflowService
	Variables     core.VariableStore
	Events        *data.EventTemplateRepo
	Broadcaster   core.BroadcastGateway
	Executor      core.ScriptExecutor
	SSHPool       *sshexec.ConnectionPool
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB            *sql.DB
	JobRepo       *data.JobRepo
	WorkflowRepo  *data.WorkflowRepo
	ExecutionRepo *data.ExecutionRepo
	VariableRepo  *data.VariableRepo
	EventRepo     *data.EventTemplateRepo
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "cronium",
			Logger:  logger,
		})
		if err != nil {
			if logger != nil {
				logger.Warn("statsd client init failed, metrics disabled", "error", err)
			}
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

func buildRepositories(db *sql.DB, logger *slog.Logger) *serviceRepositories {
	repoCfg := data.RepoConfig{Logger: logger}
	return &serviceRepositories{
		DB:            db,
		JobRepo:       data.NewJobRepo(db, repoCfg),
		WorkflowRepo:  data.NewWorkflowRepo(db, logger),
		ExecutionRepo: data.NewExecutionRepo(db, nil, logger),
		VariableRepo:  data.NewVariableRepo(db, logger),
		EventRepo:     data.NewEventTemplateRepo(db),
	}
}

func buildBroadcaster(deps *ServiceDeps, logger *slog.Logger) (core.BroadcastGateway, error) {
	if deps.RedisClient == nil || !deps.Config.Redis.Enabled {
		if logger != nil {
			logger.Info("broadcast disabled, job updates will not be published")
		}
		return broadcast.NoopGateway{}, nil
	}

	return broadcast.NewRedisGateway(broadcast.RedisGatewayOptions{
		Client:        deps.RedisClient,
		Logger:        logger,
		ChannelPrefix: deps.Config.Broadcast.ChannelPrefix,
		MaxAttempts:   deps.Config.Broadcast.MaxAttempts,
		RetryDelay:    deps.Config.Broadcast.RetryDelay,
	})
}

func buildSSHRuntime(cfg config.SSHConfig, variables core.VariableStore, logger *slog.Logger) (*sshexec.ConnectionPool, *sshexec.Executor, error) {
	pool := sshexec.NewConnectionPool(sshexec.PoolOptions{
		Logger:         logger,
		ConnectTimeout: cfg.ConnectTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		EvictInterval:  cfg.EvictInterval,
		DialAttempts:   cfg.DialAttempts,
	})

	executor, err := sshexec.NewExecutor(sshexec.ExecutorOptions{
		Pool:      pool,
		Variables: variables,
		Logger:    logger,
	})
	if err != nil {
		pool.Dispose()
		return nil, nil, err
	}
	return pool, executor, nil
}

// NewServices wires repositories, the SSH runtime, the broadcast gateway and
// the engine services into a container.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil || deps.DB == nil {
		return ServiceContainer{}, errors.New("config and database are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observability := buildObservability(logger, deps.Config.Observability)
	repos := buildRepositories(deps.DB, logger)

	broadcaster, err := buildBroadcaster(deps, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build broadcaster: %w", err)
	}

	pool, executor, err := buildSSHRuntime(deps.Config.SSH, repos.VariableRepo, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build ssh runtime: %w", err)
	}

	workflows, err := service.NewWorkflowService(service.WorkflowServiceOptions{
		Graphs:     repos.WorkflowRepo,
		Executions: repos.ExecutionRepo,
		Jobs:       repos.JobRepo,
		Events:     repos.EventRepo,
		Logger:     logger,
	})
	if err != nil {
		pool.Dispose()
		return ServiceContainer{}, fmt.Errorf("build workflow service: %w", err)
	}

	jobs, err := service.NewJobService(service.JobServiceOptions{
		Repo:         repos.JobRepo,
		DefaultLease: deps.Config.Orchestrator.Lease,
		Logger:       logger,
		Coordinator:  workflows,
		Broadcaster:  broadcaster,
		Metrics:      metricsSinkOrNil(observability),
	})
	if err != nil {
		pool.Dispose()
		return ServiceContainer{}, fmt.Errorf("build job service: %w", err)
	}

	return ServiceContainer{
		Jobs:          jobs,
		Workflows:     workflows,
		Variables:     repos.VariableRepo,
		Events:        repos.EventRepo,
		Broadcaster:   broadcaster,
		Executor:      executor,
		SSHPool:       pool,
		Observability: observability,
	}, nil
}

// metricsSinkOrNil avoids handing services a typed-nil sink.
func metricsSinkOrNil(o ObservabilityContainer) statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceStartupDeps carries shared state for starting background services.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newOrchestratorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeOrchestrator,
		name: "orchestrator",
		start: func(ctx context.Context) error {
			if deps == nil {
				return nil
			}
			cfg := deps.cfg.Config.Orchestrator
			typeFilter, err := cfg.TypeFilter()
			if err != nil {
				return fmt.Errorf("parse orchestrator type filter: %w", err)
			}

			runner, err := orchestrator.NewRunner(orchestrator.RunnerOptions{
				Jobs:           deps.cfg.Services.Jobs,
				Logger:         deps.logger,
				OrchestratorID: cfg.ID,
				Lease:          cfg.Lease,
				Concurrency:    cfg.Concurrency,
				BatchSize:      cfg.BatchSize,
				TypeFilter:     typeFilter,
				Executor:       deps.cfg.Services.Executor,
				Metrics:        metricsSinkOrNil(deps.cfg.Services.Observability),
			})
			if err != nil {
				return fmt.Errorf("build orchestrator runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil {
				return nil
			}
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Reaper,
				Logger:  deps.logger,
				Metrics: metricsSinkOrNil(deps.cfg.Services.Observability),
			})
			if err != nil {
				return fmt.Errorf("build reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newOrchestratorBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	backgrounds := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		services:    cfg.Services,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range ValidModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

// ValidModes mirrors config.ValidServiceModes for capacity calculations.
func ValidModes() []config.ServiceMode {
	return config.ValidServiceModes()
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := errorChannelCapacity(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	services    ServiceContainer
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop waits for background services, then releases shared runtime
// resources.
func gracefulStop(cfg shutdownConfig) error {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.services.Jobs != nil {
		cfg.services.Jobs.StopAllListeners()
	}
	if cfg.services.SSHPool != nil {
		cfg.services.SSHPool.Dispose()
	}
	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
