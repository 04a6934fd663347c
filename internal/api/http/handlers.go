package apihttp

import (
	"encoding/json"
	"net/http"

	"hybridstream/internal/domain"
	"hybridstream/internal/playlist"
)

// manifestEventRequest accepts three shapes: pre-parsed tracks, a raw
// multivariant playlist in Playlist, or just the URL, which the server
// fetches and parses itself.
type manifestEventRequest struct {
	ManifestURL string         `json:"manifestUrl"`
	Playlist    string         `json:"playlist,omitempty"`
	Renditions  []trackPayload `json:"renditions"`
	AudioTracks []trackPayload `json:"audioTracks"`
}

type trackPayload struct {
	URLs        []string `json:"urls"`
	Bitrate     int64    `json:"bitrate,omitempty"`
	SwarmSource string   `json:"swarmSource,omitempty"`
}

// levelEventRequest mirrors manifestEventRequest's three shapes: parsed
// fragments, a raw media playlist in Playlist, or URL-only for a
// server-side fetch.
type levelEventRequest struct {
	TrackURL       string            `json:"trackUrl"`
	Type           string            `json:"type"`
	Playlist       string            `json:"playlist,omitempty"`
	Live           bool              `json:"live"`
	TargetDuration float64           `json:"targetDuration"`
	Fragments      []fragmentPayload `json:"fragments"`
}

type fragmentPayload struct {
	URL        string  `json:"url"`
	SN         uint64  `json:"sn"`
	RangeStart int64   `json:"rangeStart,omitempty"`
	RangeEnd   int64   `json:"rangeEnd,omitempty"` // end-exclusive
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

type levelSwitchingRequest struct {
	Bitrate int64 `json:"bitrate"`
}

type mediaEventRequest struct {
	Attached bool `json:"attached"`
}

type playbackEventRequest struct {
	Position float64 `json:"position"`
	Rate     float64 `json:"rate"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	ClientID  string `json:"clientId,omitempty"`
}

type playerSettingsResponse struct {
	ClientID              string `json:"clientId"`
	ExplicitlyConfigured  bool   `json:"explicitlyConfigured"`
	LiveSyncDurationCount int    `json:"liveSyncDurationCount"`
}

type playerSettingsUpdateRequest struct {
	LiveSyncDurationCount int `json:"liveSyncDurationCount"`
}

type streamSummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Index    int    `json:"index"`
	Segments int    `json:"segments"`
}

type stateResponse struct {
	ManifestURL        string          `json:"manifestUrl,omitempty"`
	Live               bool            `json:"live"`
	ActiveLevelBitrate int64           `json:"activeLevelBitrate"`
	Position           float64         `json:"position"`
	Rate               float64         `json:"rate"`
	StreamCount        int             `json:"streamCount"`
	SegmentCount       int             `json:"segmentCount"`
	Streams            []streamSummary `json:"streams"`
}

func (s *Server) handleManifestEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req manifestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.ManifestURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "manifestUrl is required")
		return
	}

	var update domain.ManifestUpdate
	switch {
	case req.Playlist != "":
		parsed, err := playlist.ParseManifest(req.ManifestURL, []byte(req.Playlist))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_playlist", err.Error())
			return
		}
		update = parsed
	case req.Renditions == nil && req.AudioTracks == nil:
		fetched, err := s.fetcher.FetchManifest(r.Context(), req.ManifestURL)
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
			return
		}
		update = fetched
	default:
		update = domain.ManifestUpdate{
			ManifestURL: req.ManifestURL,
			Renditions:  toTracks(req.Renditions),
			AudioTracks: toTracks(req.AudioTracks),
		}
	}

	s.session.HandleManifestLoaded(update)
	s.BroadcastState()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLevelEvent(w http.ResponseWriter, r *http.Request) {
	s.handleLevelLike(w, r, func(u domain.LevelUpdate) {
		s.session.HandleLevelUpdated(u)
	})
}

func (s *Server) handleAudioTrackEvent(w http.ResponseWriter, r *http.Request) {
	s.handleLevelLike(w, r, func(u domain.LevelUpdate) {
		s.session.HandleAudioTrackUpdated(u)
	})
}

func (s *Server) handleLevelLike(w http.ResponseWriter, r *http.Request, apply func(domain.LevelUpdate)) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req levelEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.TrackURL == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "trackUrl is required")
		return
	}

	var update domain.LevelUpdate
	switch {
	case req.Playlist != "":
		parsed, err := playlist.ParseLevel(req.TrackURL, parseStreamType(req.Type), []byte(req.Playlist))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_playlist", err.Error())
			return
		}
		update = parsed
	case req.Fragments == nil:
		fetched, err := s.fetcher.FetchLevel(r.Context(), req.TrackURL, parseStreamType(req.Type))
		if err != nil {
			writeError(w, http.StatusBadGateway, "fetch_failed", err.Error())
			return
		}
		// The stream stays keyed by the URL it was registered under even
		// when the fetch was redirected.
		fetched.TrackURL = req.TrackURL
		update = fetched
	default:
		update = domain.LevelUpdate{
			TrackURL:       req.TrackURL,
			Type:           parseStreamType(req.Type),
			Live:           req.Live,
			TargetDuration: req.TargetDuration,
			Fragments:      make([]domain.PlaylistFragment, 0, len(req.Fragments)),
		}
		for _, frag := range req.Fragments {
			update.Fragments = append(update.Fragments, domain.PlaylistFragment{
				URL:        frag.URL,
				SN:         frag.SN,
				RangeStart: frag.RangeStart,
				RangeEnd:   frag.RangeEnd,
				Start:      frag.Start,
				End:        frag.End,
			})
		}
	}
	apply(update)
	s.BroadcastState()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLevelSwitchingEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req levelSwitchingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	s.session.HandleLevelSwitching(req.Bitrate)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleMediaEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req mediaEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.Attached {
		s.session.HandleMediaAttached()
	} else {
		s.session.HandleMediaDetached()
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePlaybackEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req playbackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	s.session.HandlePlaybackUpdate(req.Position, req.Rate)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	resp := sessionResponse{SessionID: s.session.ID()}
	if s.settings != nil {
		resp.ClientID = s.settings.ClientID()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	if s.streams == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "stream introspection not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.buildStateResponse())
}

func (s *Server) handlePlayerSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "player settings not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, playerSettingsResponse{
			ClientID:              s.settings.ClientID(),
			ExplicitlyConfigured:  s.settings.ExplicitlyConfigured(),
			LiveSyncDurationCount: s.settings.LiveSyncDurationCount(),
		})
	case http.MethodPut:
		var req playerSettingsUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
		if req.LiveSyncDurationCount < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "liveSyncDurationCount must be non-negative")
			return
		}
		if err := s.settings.SetLiveSyncDurationCount(req.LiveSyncDurationCount); err != nil {
			writeError(w, http.StatusInternalServerError, "store_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, playerSettingsResponse{
			ClientID:              s.settings.ClientID(),
			ExplicitlyConfigured:  s.settings.ExplicitlyConfigured(),
			LiveSyncDurationCount: s.settings.LiveSyncDurationCount(),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or PUT")
	}
}

func (s *Server) buildStateResponse() stateResponse {
	streams := s.streams.Streams()
	summaries := make([]streamSummary, 0, len(streams))
	for _, stream := range streams {
		summaries = append(summaries, streamSummary{
			ID:       stream.ID,
			Type:     string(stream.Type),
			Index:    stream.Index,
			Segments: len(stream.Segments),
		})
	}
	streamCount, segmentCount := s.streams.Counts()
	position, rate := s.streams.Playback()
	return stateResponse{
		ManifestURL:        s.streams.ManifestResponseURL(),
		Live:               s.streams.IsLive(),
		ActiveLevelBitrate: s.streams.ActiveLevelBitrate(),
		Position:           position,
		Rate:               rate,
		StreamCount:        streamCount,
		SegmentCount:       segmentCount,
		Streams:            summaries,
	}
}

func toTracks(payloads []trackPayload) []domain.Track {
	tracks := make([]domain.Track, 0, len(payloads))
	for _, p := range payloads {
		tracks = append(tracks, domain.Track{
			URLs:        p.URLs,
			Bitrate:     p.Bitrate,
			SwarmSource: p.SwarmSource,
		})
	}
	return tracks
}

func parseStreamType(value string) domain.StreamType {
	if value == string(domain.StreamSecondary) {
		return domain.StreamSecondary
	}
	return domain.StreamMain
}
