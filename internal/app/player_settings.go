package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hybridstream/internal/domain/ports"
)

// PlayerSettingsManager holds the authoritative player settings for this
// process and mirrors them to an optional store. Explicit host overrides
// (from config) freeze the live-sync window; otherwise the tuner drives
// the duration count through SetLiveSyncDurationCount.
type PlayerSettingsManager struct {
	store   ports.PlayerSettingsStore
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.Mutex
	settings ports.PlayerSettings
	explicit bool
}

func NewPlayerSettingsManager(cfg Config, store ports.PlayerSettingsStore, logger *slog.Logger) *PlayerSettingsManager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &PlayerSettingsManager{
		store:   store,
		logger:  logger,
		timeout: 5 * time.Second,
		settings: ports.PlayerSettings{
			LiveSyncDuration:      cfg.LiveSyncDuration,
			LiveSyncDurationCount: cfg.LiveSyncDurationCount,
		},
		explicit: cfg.LiveSyncDuration > 0 || cfg.LiveSyncDurationCount > 0,
	}
	m.load()
	return m
}

// load restores the persisted settings. Config-level overrides win over
// whatever the store holds; a missing or failing store just means a fresh
// client identity.
func (m *PlayerSettingsManager) load() {
	if m.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		stored, found, err := m.store.GetPlayerSettings(ctx)
		if err != nil {
			m.logger.Warn("player settings load failed", slog.String("error", err.Error()))
		} else if found {
			m.mu.Lock()
			m.settings.ClientID = stored.ClientID
			if !m.explicit {
				m.settings.LiveSyncDuration = stored.LiveSyncDuration
				m.settings.LiveSyncDurationCount = stored.LiveSyncDurationCount
			}
			m.mu.Unlock()
		}
	}

	m.mu.Lock()
	if m.settings.ClientID == "" {
		m.settings.ClientID = uuid.NewString()
	}
	settings := m.settings
	m.mu.Unlock()
	m.persist(settings)
}

// ClientID is the stable client identity, minted on first run.
func (m *PlayerSettingsManager) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.ClientID
}

func (m *PlayerSettingsManager) ExplicitlyConfigured() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.explicit
}

func (m *PlayerSettingsManager) LiveSyncDurationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.LiveSyncDurationCount
}

// SetLiveSyncDurationCount applies a tuner-derived count. The in-memory
// value is authoritative; a store failure rolls it back so the tuner
// retries on the next playlist refresh.
func (m *PlayerSettingsManager) SetLiveSyncDurationCount(count int) error {
	m.mu.Lock()
	prev := m.settings.LiveSyncDurationCount
	m.settings.LiveSyncDurationCount = count
	settings := m.settings
	m.mu.Unlock()

	if err := m.persist(settings); err != nil {
		m.mu.Lock()
		m.settings.LiveSyncDurationCount = prev
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *PlayerSettingsManager) persist(settings ports.PlayerSettings) error {
	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.store.SetPlayerSettings(ctx, settings); err != nil {
		m.logger.Warn("player settings persist failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
