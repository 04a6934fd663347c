// Package session owns one playback session: the delivery backend, the
// playlist reconciler and the live-sync tuner, plus the loader factories
// handed to the player. Player-side events arrive as plain method calls;
// the session fans them out to the right collaborator.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
	"hybridstream/internal/loader"
	"hybridstream/internal/reconcile"
)

const defaultReportInterval = 30 * time.Second

var errNoBackend = errors.New("session: backend is required")

// Options configures a session. Zero values fall back to sensible
// defaults except Backend, which is mandatory.
type Options struct {
	Logger   *slog.Logger
	Settings reconcile.LiveSyncSettings
	// NewFallback builds the conventional loader used when the backend
	// cannot serve a request. Defaults to the instrumented HTTP loader.
	NewFallback ports.LoaderFactory
	// ReportInterval paces the periodic playback-position report while
	// media is attached.
	ReportInterval time.Duration
}

// Session is the per-playback coordination point. Safe for concurrent
// use; the player side calls it from its own loop.
type Session struct {
	id          string
	backend     ports.SegmentBackend
	reconciler  *reconcile.Reconciler
	tuner       *reconcile.LiveSyncTuner
	newFallback ports.LoaderFactory
	logger      *slog.Logger
	interval    time.Duration

	mu         sync.Mutex
	position   float64
	rate       float64
	reportStop chan struct{}
	closed     bool
}

func New(backend ports.SegmentBackend, opts Options) (*Session, error) {
	if backend == nil {
		return nil, errNoBackend
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newFallback := opts.NewFallback
	if newFallback == nil {
		newFallback = func() ports.FragmentLoader {
			return loader.NewHTTPLoader(loader.HTTPLoaderOptions{Logger: logger})
		}
	}
	interval := opts.ReportInterval
	if interval <= 0 {
		interval = defaultReportInterval
	}

	s := &Session{
		id:          uuid.NewString(),
		backend:     backend,
		reconciler:  reconcile.New(backend, logger),
		newFallback: newFallback,
		logger:      logger,
		interval:    interval,
		rate:        1.0,
	}
	if opts.Settings != nil {
		s.tuner = reconcile.NewLiveSyncTuner(opts.Settings, logger)
	}
	return s, nil
}

// ID is the session's client identity, stable for its lifetime.
func (s *Session) ID() string { return s.id }

// FragmentLoader builds a coordinator for one fragment request.
func (s *Session) FragmentLoader() ports.FragmentLoader {
	return loader.NewHybridLoader(s.backend, s.newFallback, s.logger)
}

// PlaylistLoader builds a loader for one playlist or manifest request.
// The first construction of a playback run doubles as the
// playback-initialized signal.
func (s *Session) PlaylistLoader() ports.FragmentLoader {
	return loader.NewPlaylistLoader(s.newFallback, s.handlePlaybackInit)
}

func (s *Session) handlePlaybackInit() {
	s.mu.Lock()
	s.position = 0
	s.rate = 1.0
	s.mu.Unlock()
	s.logger.Debug("playback initialized", slog.String("session", s.id))
}

// HandleManifestLoaded registers every track the manifest names.
func (s *Session) HandleManifestLoaded(m domain.ManifestUpdate) {
	s.reconciler.RegisterTracks(m)
	s.logger.Info("manifest loaded",
		slog.String("session", s.id),
		slog.String("url", m.ManifestURL),
		slog.Int("renditions", len(m.Renditions)),
		slog.Int("audioTracks", len(m.AudioTracks)),
	)
}

// HandleLevelUpdated reconciles a main-track playlist refresh and feeds
// the live-sync tuner.
func (s *Session) HandleLevelUpdated(u domain.LevelUpdate) {
	s.backend.SetIsLive(u.Live)
	s.reconciler.Reconcile(u)
	if s.tuner != nil {
		s.tuner.Tune(u)
	}
}

// HandleAudioTrackUpdated reconciles an audio-track playlist refresh.
// Audio tracks never drive live-sync tuning.
func (s *Session) HandleAudioTrackUpdated(u domain.LevelUpdate) {
	u.Type = domain.StreamSecondary
	s.reconciler.Reconcile(u)
}

// HandleLevelSwitching records the bitrate the player is switching to.
func (s *Session) HandleLevelSwitching(bitrateBps int64) {
	s.backend.SetActiveLevelBitrate(bitrateBps)
}

// HandlePlaybackUpdate records the player's current position and rate;
// the attached-media reporter pushes them to the backend periodically.
func (s *Session) HandlePlaybackUpdate(position, rate float64) {
	s.mu.Lock()
	s.position = position
	s.rate = rate
	s.mu.Unlock()
}

// HandleMediaAttached starts the periodic playback report. Re-attaching
// while a reporter is running restarts it.
func (s *Session) HandleMediaAttached() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.reportStop != nil {
		close(s.reportStop)
	}
	stop := make(chan struct{})
	s.reportStop = stop
	s.mu.Unlock()

	go s.report(stop)
}

// HandleMediaDetached stops the periodic playback report.
func (s *Session) HandleMediaDetached() {
	s.mu.Lock()
	if s.reportStop != nil {
		close(s.reportStop)
		s.reportStop = nil
	}
	s.mu.Unlock()
}

func (s *Session) report(stop chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			position, rate := s.position, s.rate
			s.mu.Unlock()
			s.backend.UpdatePlayback(position, rate)
		}
	}
}

// Close tears the session down: the reporter stops and the backend is
// destroyed. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.reportStop != nil {
		close(s.reportStop)
		s.reportStop = nil
	}
	s.mu.Unlock()

	if err := s.backend.Destroy(); err != nil {
		return err
	}
	s.logger.Info("session closed", slog.String("session", s.id))
	return nil
}
