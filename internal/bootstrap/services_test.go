package bootstrap

import (
	"testing"

	"github.com/target/tenantscan/config"
)

func enabledModes(modes ...config.ServiceMode) map[config.ServiceMode]bool {
	enabled := make(map[config.ServiceMode]bool, len(modes))
	for _, mode := range modes {
		enabled[mode] = true
	}
	return enabled
}

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
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  1,
		},
		{
			name:  "reaper only",
			modes: []config.ServiceMode{config.ServiceModeReaper},
			want:  1,
		},
		{
			name:  "http and reaper",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceModeReaper},
			want:  2,
		},
		{
			name:  "unknown modes are ignored",
			modes: []config.ServiceMode{config.ServiceModeHTTP, config.ServiceMode("scheduler")},
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorChannelCapacity(enabledModes(tt.modes...)); got != tt.want {
				t.Fatalf("errorChannelCapacity(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestErrorChannelBufferSize(t *testing.T) {
	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  int
	}{
		{
			name: "no services enabled",
			want: 1,
		},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  2,
		},
		{
			name:  "all services enabled",
			modes: config.ValidServiceModes(),
			want:  3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorChannelBufferSize(enabledModes(tt.modes...)); got != tt.want {
				t.Fatalf("errorChannelBufferSize(%v) = %d, want %d", tt.modes, got, tt.want)
			}
		})
	}
}

func TestBuildFailureNotifier(t *testing.T) {
	t.Run("disabled has no sinks", func(t *testing.T) {
		svc := buildFailureNotifier(nil, config.ObservabilityNotificationsConfig{})
		if svc.Enabled() {
			t.Fatal("expected notifier without sinks")
		}
	})

	t.Run("enabled sinks are registered", func(t *testing.T) {
		cfg := config.ObservabilityNotificationsConfig{
			Enabled:   true,
			Slack:     config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example/T000"},
			PagerDuty: config.PagerDutyNotificationConfig{Enabled: true, RoutingKey: "key"},
		}
		cfg.Sanitize()

		svc := buildFailureNotifier(nil, cfg)
		if !svc.Enabled() {
			t.Fatal("expected slack and pagerduty sinks")
		}
	})
}
