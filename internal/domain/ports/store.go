package ports

import "context"

// PlayerSettings is the persisted slice of player configuration the engine
// cares about across runs: the client identity and any explicit live-sync
// override the host operator has made.
type PlayerSettings struct {
	ClientID              string
	LiveSyncDuration      float64 // seconds; 0 = unset
	LiveSyncDurationCount int     // 0 = unset
}

// PlayerSettingsStore persists PlayerSettings. Implementations return
// found=false when nothing has been stored yet.
type PlayerSettingsStore interface {
	GetPlayerSettings(ctx context.Context) (s PlayerSettings, found bool, err error)
	SetPlayerSettings(ctx context.Context, s PlayerSettings) error
}
