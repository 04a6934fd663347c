package reconcile

import (
	"log/slog"
	"maps"

	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
	"hybridstream/internal/metrics"
)

// Reconciler keeps the backend's tracked stream/segment state in step with
// the playlists the player observes, issuing minimal add/remove deltas.
type Reconciler struct {
	backend ports.SegmentBackend
	logger  *slog.Logger
}

func New(backend ports.SegmentBackend, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{backend: backend, logger: logger}
}

// RegisterTracks registers every rendition and audio track of a manifest
// with the backend, using each track's first URL as the stream identity.
// Registration is idempotent: already-known identities are no-ops.
func (r *Reconciler) RegisterTracks(m domain.ManifestUpdate) {
	r.backend.SetManifestResponseURL(m.ManifestURL)
	for i, track := range m.Renditions {
		r.registerTrack(track, domain.StreamMain, i)
	}
	for i, track := range m.AudioTracks {
		r.registerTrack(track, domain.StreamSecondary, i)
	}
}

func (r *Reconciler) registerTrack(track domain.Track, typ domain.StreamType, index int) {
	if len(track.URLs) == 0 {
		return
	}
	r.backend.AddStreamIfNoneExists(domain.StreamDescriptor{
		ID:          track.URLs[0],
		Type:        typ,
		Index:       index,
		SwarmSource: track.SwarmSource,
	})
}

// Reconcile diffs one playlist refresh against the backend's tracked
// segments for that stream. Fragments not yet tracked are staged as new;
// tracked identities absent from the playlist are reported stale. When both
// sets are empty no update is issued.
func (r *Reconciler) Reconcile(u domain.LevelUpdate) {
	stream, ok := r.backend.GetStream(u.TrackURL)
	if !ok {
		r.logger.Debug("playlist update for unregistered stream", slog.String("track", u.TrackURL))
		return
	}

	stale := make(map[domain.SegmentID]struct{}, len(stream.Segments))
	for id := range stream.Segments {
		stale[id] = struct{}{}
	}

	var add []domain.Segment
	staged := make(map[domain.SegmentID]struct{})
	for i, frag := range u.Fragments {
		rng := domain.RangeFromExclusive(frag.RangeStart, frag.RangeEnd)
		id := domain.SegmentIDFor(frag.URL, rng)
		if _, tracked := stale[id]; tracked {
			delete(stale, id)
			continue
		}
		if _, exists := stream.Segments[id]; exists {
			continue
		}
		if _, dup := staged[id]; dup {
			continue
		}
		staged[id] = struct{}{}
		externalID := uint64(i)
		if u.Live {
			externalID = frag.SN
		}
		add = append(add, domain.Segment{
			ID:         id,
			URL:        frag.URL,
			ExternalID: externalID,
			Range:      rng,
			StartTime:  frag.Start,
			EndTime:    frag.End,
		})
	}

	if len(add) == 0 && len(stale) == 0 {
		return
	}

	r.backend.UpdateStream(stream.ID, add, maps.Keys(stale))

	metrics.StreamUpdatesTotal.Inc()
	metrics.SegmentsAddedTotal.Add(float64(len(add)))
	metrics.SegmentsRemovedTotal.Add(float64(len(stale)))
	r.logger.Debug("stream reconciled",
		slog.String("stream", stream.ID),
		slog.Int("added", len(add)),
		slog.Int("removed", len(stale)),
	)
}
