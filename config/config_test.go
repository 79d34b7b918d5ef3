package config

import (
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/croniumhq/cronium-engine/internal/domain/model"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:  "single service - orchestrator",
			input: "orchestrator",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
			},
		},
		{
			name:  "single service - reaper",
			input: "reaper",
			expected: map[ServiceMode]bool{
				ServiceModeReaper: true,
			},
		},
		{
			name:  "all services",
			input: "orchestrator,reaper",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
				ServiceModeReaper:       true,
			},
		},
		{
			name:  "whitespace tolerated",
			input: " orchestrator , reaper ",
			expected: map[ServiceMode]bool{
				ServiceModeOrchestrator: true,
				ServiceModeReaper:       true,
			},
		},
		{
			name:        "invalid service name",
			input:       "scheduler",
			expectError: true,
		},
		{
			name:        "empty string",
			input:       "",
			expectError: true,
		},
		{
			name:        "only commas",
			input:       ",,,",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error for input %q, got none", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ParseServices(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	cfg.Sanitize()

	if !cfg.IsOrchestratorEnabled() {
		t.Error("orchestrator should be enabled by default")
	}
	if !cfg.IsReaperEnabled() {
		t.Error("reaper should be enabled by default")
	}
	if cfg.Postgres.Host != "localhost" {
		t.Errorf("unexpected default db host: %s", cfg.Postgres.Host)
	}
	if cfg.Orchestrator.Lease != 30*time.Second {
		t.Errorf("unexpected default lease: %s", cfg.Orchestrator.Lease)
	}
}

func TestOrchestratorConfigSanitize(t *testing.T) {
	cfg := OrchestratorConfig{Lease: 0, Concurrency: 0, BatchSize: -5}
	cfg.Sanitize()

	if cfg.Lease != time.Second {
		t.Errorf("lease not clamped: %s", cfg.Lease)
	}
	if cfg.Concurrency != 1 {
		t.Errorf("concurrency not clamped: %d", cfg.Concurrency)
	}
	if cfg.BatchSize != 0 {
		t.Errorf("batch size not clamped: %d", cfg.BatchSize)
	}
}

func TestOrchestratorConfigTypeFilter(t *testing.T) {
	tests := []struct {
		name        string
		types       string
		expected    []model.JobType
		expectError bool
	}{
		{name: "empty means all", types: "", expected: nil},
		{name: "single type", types: "script", expected: []model.JobType{model.JobTypeScript}},
		{
			name:     "multiple types",
			types:    "script, http_request",
			expected: []model.JobType{model.JobTypeScript, model.JobTypeHTTPRequest},
		},
		{name: "invalid type", types: "browser", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := OrchestratorConfig{Types: tt.types}
			got, err := cfg.TypeFilter()
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("TypeFilter() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReaperConfigSanitize(t *testing.T) {
	cfg := ReaperConfig{
		Interval:       time.Second,
		TerminalMaxAge: time.Minute,
		BatchSize:      0,
	}
	cfg.Sanitize()

	if cfg.Interval != time.Minute {
		t.Errorf("interval not clamped: %s", cfg.Interval)
	}
	if cfg.TerminalMaxAge != time.Hour {
		t.Errorf("terminal max age not clamped: %s", cfg.TerminalMaxAge)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("batch size not clamped: %d", cfg.BatchSize)
	}

	cfg.BatchSize = 50000
	cfg.Sanitize()
	if cfg.BatchSize != 10000 {
		t.Errorf("batch size not capped: %d", cfg.BatchSize)
	}
}

func TestSSHConfigSanitize(t *testing.T) {
	cfg := SSHConfig{}
	cfg.Sanitize()

	if cfg.ConnectTimeout != time.Second {
		t.Errorf("connect timeout not clamped: %s", cfg.ConnectTimeout)
	}
	if cfg.IdleTimeout != 10*time.Second {
		t.Errorf("idle timeout not clamped: %s", cfg.IdleTimeout)
	}
	if cfg.DialAttempts != 1 {
		t.Errorf("dial attempts not clamped: %d", cfg.DialAttempts)
	}
}

func TestObservabilityMetricsSanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   "}
	cfg.Sanitize()

	if cfg.IsEnabled() {
		t.Error("metrics should be disabled when the address is blank")
	}
}
