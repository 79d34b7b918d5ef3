package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeOrchestrator runs the job orchestrator workers.
	ServiceModeOrchestrator ServiceMode = "orchestrator"
	// ServiceModeReaper runs the job reaper for queue maintenance.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{
		ServiceModeOrchestrator,
		ServiceModeReaper,
	}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	parts := strings.Split(servicesStr, ",")
	for _, part := range parts {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeOrchestrator, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf(
				"invalid service name: %q (valid options: orchestrator, reaper)",
				serviceName,
			)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// OrchestratorConfig contains orchestrator service configuration.
type OrchestratorConfig struct {
	// ID is the claim identity stamped on claimed jobs. Defaults to a
	// generated id when empty.
	ID string `env:"ORCHESTRATOR_ID" envDefault:""`

	// Lease is how long a claim holds before the reaper may requeue the job.
	Lease time.Duration `env:"ORCHESTRATOR_LEASE" envDefault:"30s"`

	// Concurrency is the number of worker goroutines executing jobs.
	Concurrency int `env:"ORCHESTRATOR_CONCURRENCY" envDefault:"4"`

	// BatchSize is the number of jobs claimed per query. Zero means one
	// batch per worker.
	BatchSize int `env:"ORCHESTRATOR_BATCH_SIZE" envDefault:"0"`

	// Types restricts the job types this orchestrator claims.
	// Comma-separated list of: script, http_request, tool_action.
	// Empty means all types.
	Types string `env:"ORCHESTRATOR_TYPES" envDefault:""`
}

// Sanitize applies guardrails to orchestrator configuration values.
func (o *OrchestratorConfig) Sanitize() {
	if o.Lease < time.Second {
		o.Lease = time.Second
	}
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.BatchSize < 0 {
		o.BatchSize = 0
	}
}

// TypeFilter parses the Types field into job types. An empty field yields
// nil (no filter); invalid names are an error.
func (o *OrchestratorConfig) TypeFilter() ([]model.JobType, error) {
	if strings.TrimSpace(o.Types) == "" {
		return nil, nil
	}

	var types []model.JobType
	for _, part := range strings.Split(o.Types, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		jt := model.JobType(name)
		if !jt.Valid() {
			return nil, fmt.Errorf("invalid job type: %q", name)
		}
		types = append(types, jt)
	}
	return types, nil
}

// SSHConfig contains SSH runtime configuration.
type SSHConfig struct {
	// ConnectTimeout bounds each dial attempt.
	ConnectTimeout time.Duration `env:"SSH_CONNECT_TIMEOUT" envDefault:"10s"`

	// IdleTimeout is how long a pooled connection may sit unused before eviction.
	IdleTimeout time.Duration `env:"SSH_IDLE_TIMEOUT" envDefault:"5m"`

	// EvictInterval is the idle eviction sweep interval.
	EvictInterval time.Duration `env:"SSH_EVICT_INTERVAL" envDefault:"30s"`

	// DialAttempts is the number of dial retries per connection request.
	DialAttempts int `env:"SSH_DIAL_ATTEMPTS" envDefault:"3"`
}

// Sanitize applies guardrails to SSH configuration values.
func (s *SSHConfig) Sanitize() {
	if s.ConnectTimeout < time.Second {
		s.ConnectTimeout = time.Second
	}
	if s.IdleTimeout < 10*time.Second {
		s.IdleTimeout = 10 * time.Second
	}
	if s.EvictInterval < time.Second {
		s.EvictInterval = time.Second
	}
	if s.DialAttempts < 1 {
		s.DialAttempts = 1
	}
}

// BroadcastConfig contains broadcast gateway configuration.
type BroadcastConfig struct {
	// ChannelPrefix prefixes the per-log pub/sub channel names.
	ChannelPrefix string `env:"BROADCAST_CHANNEL_PREFIX" envDefault:"cronium:logs:"`

	// MaxAttempts bounds publish retries per broadcast.
	MaxAttempts int `env:"BROADCAST_MAX_ATTEMPTS" envDefault:"3"`

	// RetryDelay is the delay between publish attempts.
	RetryDelay time.Duration `env:"BROADCAST_RETRY_DELAY" envDefault:"200ms"`
}

// Sanitize applies guardrails to broadcast configuration values.
func (b *BroadcastConfig) Sanitize() {
	if b.MaxAttempts < 1 {
		b.MaxAttempts = 1
	}
	if b.RetryDelay < 0 {
		b.RetryDelay = 0
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// TerminalMaxAge is the maximum age for terminal jobs before deletion.
	TerminalMaxAge time.Duration `env:"REAPER_TERMINAL_MAX_AGE" envDefault:"168h"` // 7 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.TerminalMaxAge < 1*time.Hour {
		r.TerminalMaxAge = 1 * time.Hour
	}

	// Enforce batch size bounds to prevent excessive locks or inefficiency
	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
