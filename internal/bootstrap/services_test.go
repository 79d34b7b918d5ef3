package bootstrap

import (
	"testing"

	"github.com/croniumhq/cronium-engine/config"
)

func TestErrorChannelCapacity(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 0,
		},
		{
			name:  "orchestrator only",
			modes: []config.ServiceMode{config.ServiceModeOrchestrator},
			want:  1,
		},
		{
			name:  "reaper only",
			modes: []config.ServiceMode{config.ServiceModeReaper},
			want:  1,
		},
		{
			name:  "all services enabled",
			modes: []config.ServiceMode{config.ServiceModeOrchestrator, config.ServiceModeReaper},
			want:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}

			if got := errorChannelCapacity(enabled); got != tt.want {
				t.Errorf("errorChannelCapacity() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSizeAlwaysPositive(t *testing.T) {
	if got := errorChannelBufferSize(nil); got < 1 {
		t.Errorf("errorChannelBufferSize(nil) = %d, want >= 1", got)
	}
}

func TestNewServicesRequiresDatabase(t *testing.T) {
	if _, err := NewServices(&ServiceDeps{Config: &config.AppConfig{}}); err == nil {
		t.Fatal("expected error without database")
	}
}
