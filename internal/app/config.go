package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	BackendModeMemory  = "memory"
	BackendModeTorrent = "torrent"
)

type Config struct {
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
	MongoURI      string
	MongoDatabase string

	BackendMode       string
	TorrentDataDir    string
	TorrentListenPort int
	TorrentSeed       bool
	MemoryCacheBytes  int64

	FallbackTimeoutMS       int
	FallbackMaxRetry        int
	FallbackRetryDelayMS    int
	FallbackMaxRetryDelayMS int
	RateLimitBytesPerSec    int64

	// Explicit live-sync overrides. At most one may be set; when neither
	// is, the tuner derives the window from observed playlists.
	LiveSyncDuration      float64
	LiveSyncDurationCount int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:      getEnv("HTTP_ADDR", ":8080"),
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "hybridstream"),

		BackendMode:       strings.ToLower(getEnv("BACKEND_MODE", BackendModeMemory)),
		TorrentDataDir:    getEnv("TORRENT_DATA_DIR", "data"),
		TorrentListenPort: int(getEnvInt64("TORRENT_LISTEN_PORT", 0)),
		TorrentSeed:       getEnvBool("TORRENT_SEED", true),
		MemoryCacheBytes:  getEnvInt64("MEMORY_CACHE_BYTES", 256<<20),

		FallbackTimeoutMS:       int(getEnvInt64("FALLBACK_TIMEOUT_MS", 20_000)),
		FallbackMaxRetry:        int(getEnvInt64("FALLBACK_MAX_RETRY", 3)),
		FallbackRetryDelayMS:    int(getEnvInt64("FALLBACK_RETRY_DELAY_MS", 1_000)),
		FallbackMaxRetryDelayMS: int(getEnvInt64("FALLBACK_MAX_RETRY_DELAY_MS", 8_000)),
		RateLimitBytesPerSec:    getEnvInt64("RATE_LIMIT_BYTES_PER_SEC", 0),

		LiveSyncDuration:      getEnvFloat("LIVE_SYNC_DURATION", 0),
		LiveSyncDurationCount: int(getEnvInt64("LIVE_SYNC_DURATION_COUNT", 0)),
	}
}

func (c Config) Validate() error {
	switch c.BackendMode {
	case BackendModeMemory, BackendModeTorrent:
	default:
		return fmt.Errorf("invalid BACKEND_MODE %q (want %s or %s)", c.BackendMode, BackendModeMemory, BackendModeTorrent)
	}
	if c.LiveSyncDuration > 0 && c.LiveSyncDurationCount > 0 {
		return fmt.Errorf("LIVE_SYNC_DURATION and LIVE_SYNC_DURATION_COUNT are mutually exclusive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
