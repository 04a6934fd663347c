package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "MONGO_URI", "MONGO_DB",
		"BACKEND_MODE", "TORRENT_DATA_DIR", "TORRENT_LISTEN_PORT",
		"TORRENT_SEED", "MEMORY_CACHE_BYTES",
		"FALLBACK_TIMEOUT_MS", "FALLBACK_MAX_RETRY",
		"FALLBACK_RETRY_DELAY_MS", "FALLBACK_MAX_RETRY_DELAY_MS",
		"RATE_LIMIT_BYTES_PER_SEC",
		"LIVE_SYNC_DURATION", "LIVE_SYNC_DURATION_COUNT",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"MongoURI", cfg.MongoURI, ""},
		{"MongoDatabase", cfg.MongoDatabase, "hybridstream"},
		{"BackendMode", cfg.BackendMode, BackendModeMemory},
		{"TorrentDataDir", cfg.TorrentDataDir, "data"},
		{"TorrentListenPort", cfg.TorrentListenPort, 0},
		{"TorrentSeed", cfg.TorrentSeed, true},
		{"MemoryCacheBytes", cfg.MemoryCacheBytes, int64(256 << 20)},
		{"FallbackTimeoutMS", cfg.FallbackTimeoutMS, 20_000},
		{"FallbackMaxRetry", cfg.FallbackMaxRetry, 3},
		{"FallbackRetryDelayMS", cfg.FallbackRetryDelayMS, 1_000},
		{"FallbackMaxRetryDelayMS", cfg.FallbackMaxRetryDelayMS, 8_000},
		{"RateLimitBytesPerSec", cfg.RateLimitBytesPerSec, int64(0)},
		{"LiveSyncDuration", cfg.LiveSyncDuration, 0.0},
		{"LiveSyncDurationCount", cfg.LiveSyncDurationCount, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config failed validation: %v", err)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":                ":9090",
		"LOG_LEVEL":                "DEBUG",
		"LOG_FORMAT":               "JSON",
		"MONGO_URI":                "mongodb://remote:27017",
		"MONGO_DB":                 "mydb",
		"BACKEND_MODE":             "TORRENT",
		"TORRENT_DATA_DIR":         "/mnt/data",
		"TORRENT_LISTEN_PORT":      "42069",
		"TORRENT_SEED":             "false",
		"MEMORY_CACHE_BYTES":       "1048576",
		"FALLBACK_TIMEOUT_MS":      "5000",
		"FALLBACK_MAX_RETRY":       "1",
		"RATE_LIMIT_BYTES_PER_SEC": "2000000",
		"LIVE_SYNC_DURATION":       "18.5",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"MongoURI", cfg.MongoURI, "mongodb://remote:27017"},
		{"MongoDatabase", cfg.MongoDatabase, "mydb"},
		{"BackendMode", cfg.BackendMode, BackendModeTorrent},
		{"TorrentDataDir", cfg.TorrentDataDir, "/mnt/data"},
		{"TorrentListenPort", cfg.TorrentListenPort, 42069},
		{"TorrentSeed", cfg.TorrentSeed, false},
		{"MemoryCacheBytes", cfg.MemoryCacheBytes, int64(1 << 20)},
		{"FallbackTimeoutMS", cfg.FallbackTimeoutMS, 5000},
		{"FallbackMaxRetry", cfg.FallbackMaxRetry, 1},
		{"RateLimitBytesPerSec", cfg.RateLimitBytesPerSec, int64(2_000_000)},
		{"LiveSyncDuration", cfg.LiveSyncDuration, 18.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"torrent mode ok", func(c *Config) { c.BackendMode = BackendModeTorrent }, false},
		{"unknown backend mode", func(c *Config) { c.BackendMode = "disk" }, true},
		{"duration alone ok", func(c *Config) { c.LiveSyncDuration = 12 }, false},
		{"count alone ok", func(c *Config) { c.LiveSyncDurationCount = 3 }, false},
		{"both live-sync settings", func(c *Config) {
			c.LiveSyncDuration = 12
			c.LiveSyncDurationCount = 3
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{BackendMode: BackendModeMemory}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetEnvInt64InvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback int64
		want     int64
	}{
		{"empty string", "", 42, 42},
		{"not a number", "abc", 42, 42},
		{"negative number", "-5", 42, 42},
		{"zero", "0", 42, 0},
		{"valid positive", "100", 42, 100},
		{"whitespace around number", "  50  ", 42, 50},
		{"float", "3.14", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT_VAR", tt.envVal)
			got := getEnvInt64("TEST_INT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvInt64(%q, %d) = %d, want %d", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvFloatInvalidFallsBack(t *testing.T) {
	tests := []struct {
		name     string
		envVal   string
		fallback float64
		want     float64
	}{
		{"empty string", "", 1.5, 1.5},
		{"not a number", "abc", 1.5, 1.5},
		{"negative", "-2.5", 1.5, 1.5},
		{"valid", "12.75", 1.5, 12.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_FLOAT_VAR", tt.envVal)
			got := getEnvFloat("TEST_FLOAT_VAR", tt.fallback)
			if got != tt.want {
				t.Errorf("getEnvFloat(%q, %v) = %v, want %v", tt.envVal, tt.fallback, got, tt.want)
			}
		})
	}
}

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("TEST_EXISTING", "hello")

	if got := getEnv("TEST_EXISTING", "default"); got != "hello" {
		t.Errorf("getEnv(existing) = %q, want %q", got, "hello")
	}

	// Unset to test fallback
	t.Setenv("TEST_MISSING_XYZ", "")
	os.Unsetenv("TEST_MISSING_XYZ")
	if got := getEnv("TEST_MISSING_XYZ", "default"); got != "default" {
		t.Errorf("getEnv(missing) = %q, want %q", got, "default")
	}
}
