package telemetry

import "testing"

func TestSampleRateFromEnv(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"unset", "", defaultSampleRate},
		{"valid", "0.25", 0.25},
		{"always", "1", 1},
		{"negative", "-0.5", defaultSampleRate},
		{"above one", "1.5", defaultSampleRate},
		{"garbage", "lots", defaultSampleRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_TRACE_SAMPLE_RATE", tt.raw)
			if got := sampleRateFromEnv(); got != tt.want {
				t.Errorf("sampleRateFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStripScheme(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://collector:4318", "collector:4318"},
		{"https://collector:4318", "collector:4318"},
		{"collector:4318", "collector:4318"},
	}
	for _, tt := range tests {
		if got := stripScheme(tt.in); got != tt.want {
			t.Errorf("stripScheme(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
