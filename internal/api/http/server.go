// Package apihttp exposes the engine to the player side: playback event
// ingestion, session identity, stream introspection, player settings and
// a websocket feed of engine state.
package apihttp

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hybridstream/internal/domain"
	"hybridstream/internal/playlist"
)

// SessionController is the slice of the session the API drives.
type SessionController interface {
	ID() string
	HandleManifestLoaded(m domain.ManifestUpdate)
	HandleLevelUpdated(u domain.LevelUpdate)
	HandleAudioTrackUpdated(u domain.LevelUpdate)
	HandleLevelSwitching(bitrateBps int64)
	HandlePlaybackUpdate(position, rate float64)
	HandleMediaAttached()
	HandleMediaDetached()
}

// StreamLister exposes the backend's tracked state for introspection.
type StreamLister interface {
	Streams() []*domain.Stream
	Counts() (streams, segments int)
	ManifestResponseURL() string
	ActiveLevelBitrate() int64
	IsLive() bool
	Playback() (position, rate float64)
}

// PlayerSettingsController reads and writes the live-sync settings.
type PlayerSettingsController interface {
	ClientID() string
	ExplicitlyConfigured() bool
	LiveSyncDurationCount() int
	SetLiveSyncDurationCount(count int) error
}

type Server struct {
	session  SessionController
	streams  StreamLister
	settings PlayerSettingsController
	fetcher  *playlist.Fetcher
	logger   *slog.Logger
	handler  http.Handler
	wsHub    *wsHub
}

type ServerOption func(*Server)

func WithStreamLister(lister StreamLister) ServerOption {
	return func(s *Server) { s.streams = lister }
}

func WithPlayerSettings(ctrl PlayerSettingsController) ServerOption {
	return func(s *Server) { s.settings = ctrl }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithPlaylistFetcher overrides the fetcher used when an event names a
// playlist URL without carrying its content.
func WithPlaylistFetcher(f *playlist.Fetcher) ServerOption {
	return func(s *Server) { s.fetcher = f }
}

func NewServer(session SessionController, opts ...ServerOption) *Server {
	s := &Server{session: session}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.fetcher == nil {
		s.fetcher = playlist.NewFetcher(nil)
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/session", s.handleSession)
	mux.HandleFunc("/api/v1/streams", s.handleStreams)
	mux.HandleFunc("/api/v1/settings/player", s.handlePlayerSettings)
	mux.HandleFunc("/api/v1/events/manifest", s.handleManifestEvent)
	mux.HandleFunc("/api/v1/events/level", s.handleLevelEvent)
	mux.HandleFunc("/api/v1/events/audio-track", s.handleAudioTrackEvent)
	mux.HandleFunc("/api/v1/events/level-switching", s.handleLevelSwitchingEvent)
	mux.HandleFunc("/api/v1/events/media", s.handleMediaEvent)
	mux.HandleFunc("/api/v1/events/playback", s.handlePlaybackEvent)
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "hybridstream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastState pushes the current stream/playback snapshot to every
// connected websocket client.
func (s *Server) BroadcastState() {
	if s.wsHub == nil || s.streams == nil {
		return
	}
	s.wsHub.Broadcast("state", s.buildStateResponse())
}

// Close disconnects all websocket clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

func normalizeRoute(path string) string {
	switch {
	case path == "/metrics" || path == "/healthz" || path == "/ws":
		return path
	case strings.HasPrefix(path, "/api/v1/events/"):
		return path
	case strings.HasPrefix(path, "/api/v1/"):
		return path
	default:
		return "/other"
	}
}
