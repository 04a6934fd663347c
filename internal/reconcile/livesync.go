package reconcile

import (
	"log/slog"
	"math"

	"hybridstream/internal/domain"
	"hybridstream/internal/metrics"
)

// liveSyncWindowSeconds is the fixed wall-clock window the derived live-sync
// count is computed against.
const liveSyncWindowSeconds = 120

// minFragmentsForTuning: playlists at or below this many fragments are too
// short to derive a meaningful live-edge distance from.
const minFragmentsForTuning = 4

// LiveSyncSettings is the slice of player configuration the tuner reads and
// writes. ExplicitlyConfigured reports whether the host pinned either a
// fixed live-sync duration or a duration count; the tuner then keeps its
// hands off.
type LiveSyncSettings interface {
	ExplicitlyConfigured() bool
	LiveSyncDurationCount() int
	SetLiveSyncDurationCount(count int) error
}

// LiveSyncTuner adjusts the player's live-edge buffering window from
// observed playlist shape, but only for live main-track updates and only
// when the host has not configured the window itself.
type LiveSyncTuner struct {
	settings LiveSyncSettings
	logger   *slog.Logger
}

func NewLiveSyncTuner(settings LiveSyncSettings, logger *slog.Logger) *LiveSyncTuner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSyncTuner{settings: settings, logger: logger}
}

// Tune inspects one level update and applies a derived live-sync duration
// count when eligible. Redundant writes are skipped so downstream playlist
// recomputation is not triggered for nothing.
func (t *LiveSyncTuner) Tune(u domain.LevelUpdate) {
	if t.settings == nil {
		return
	}
	if u.Type != domain.StreamMain || !u.Live {
		return
	}
	if len(u.Fragments) <= minFragmentsForTuning {
		return
	}
	if t.settings.ExplicitlyConfigured() {
		return
	}
	if u.TargetDuration <= 0 {
		return
	}

	maxCount := int(math.Floor(liveSyncWindowSeconds / u.TargetDuration))
	newCount := len(u.Fragments) - 1
	if newCount > maxCount {
		newCount = maxCount
	}
	if newCount == t.settings.LiveSyncDurationCount() {
		return
	}
	if err := t.settings.SetLiveSyncDurationCount(newCount); err != nil {
		t.logger.Warn("live-sync count update failed",
			slog.Int("count", newCount),
			slog.String("error", err.Error()),
		)
		return
	}
	metrics.LiveSyncCount.Set(float64(newCount))
	t.logger.Debug("live-sync count tuned",
		slog.Int("count", newCount),
		slog.Float64("targetDuration", u.TargetDuration),
		slog.Int("fragments", len(u.Fragments)),
	)
}
