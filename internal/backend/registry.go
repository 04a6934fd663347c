package backend

import (
	"iter"
	"sync"

	"hybridstream/internal/domain"
	"hybridstream/internal/metrics"
)

// Registry is the stream/segment bookkeeping shared by the backend
// implementations. The playlist reconciler is its only writer; loaders and
// identity lookups read it.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*domain.Stream

	manifestURL        string
	activeLevelBitrate int64
	isLive             bool
	playbackPosition   float64
	playbackRate       float64
}

func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*domain.Stream)}
}

// AddStreamIfNoneExists registers a stream under desc.ID. Re-registering a
// known identity is a no-op; streams are never recreated for the same track.
func (r *Registry) AddStreamIfNoneExists(desc domain.StreamDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.streams[desc.ID]; ok {
		return
	}
	r.streams[desc.ID] = &domain.Stream{
		ID:          desc.ID,
		Type:        desc.Type,
		Index:       desc.Index,
		SwarmSource: desc.SwarmSource,
		Segments:    make(map[domain.SegmentID]domain.Segment),
	}
	metrics.ActiveStreams.Set(float64(len(r.streams)))
}

// GetStream returns a snapshot of the stream's current state. The segment
// map is copied so callers can iterate it while updates land.
func (r *Registry) GetStream(id string) (*domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	snapshot := &domain.Stream{
		ID:          s.ID,
		Type:        s.Type,
		Index:       s.Index,
		SwarmSource: s.SwarmSource,
		Segments:    make(map[domain.SegmentID]domain.Segment, len(s.Segments)),
	}
	for segID, seg := range s.Segments {
		snapshot.Segments[segID] = seg
	}
	return snapshot, true
}

// UpdateStream applies one reconciliation delta atomically: removals first,
// then additions; untouched segments are left exactly as they were.
func (r *Registry) UpdateStream(id string, newSegments []domain.Segment, removed iter.Seq[domain.SegmentID]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.streams[id]
	if !ok {
		return
	}
	if removed != nil {
		for segID := range removed {
			delete(s.Segments, segID)
		}
	}
	for _, seg := range newSegments {
		if _, exists := s.Segments[seg.ID]; exists {
			continue
		}
		s.Segments[seg.ID] = seg
	}
}

// FindSegment locates a segment by identity across all streams.
func (r *Registry) FindSegment(id domain.SegmentID) (domain.Segment, *domain.Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.streams {
		if seg, ok := s.Segments[id]; ok {
			return seg, s, true
		}
	}
	return domain.Segment{}, nil, false
}

// HasSegment reports whether any stream tracks the identity.
func (r *Registry) HasSegment(id domain.SegmentID) bool {
	_, _, ok := r.FindSegment(id)
	return ok
}

func (r *Registry) SetManifestResponseURL(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifestURL = url
}

func (r *Registry) ManifestResponseURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifestURL
}

func (r *Registry) SetActiveLevelBitrate(bps int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeLevelBitrate = bps
}

func (r *Registry) ActiveLevelBitrate() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLevelBitrate
}

func (r *Registry) SetIsLive(live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.isLive = live
}

func (r *Registry) IsLive() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isLive
}

func (r *Registry) UpdatePlayback(position, rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playbackPosition = position
	r.playbackRate = rate
}

func (r *Registry) Playback() (position, rate float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playbackPosition, r.playbackRate
}

// Counts reports the number of registered streams and tracked segments.
func (r *Registry) Counts() (streams, segments int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	streams = len(r.streams)
	for _, s := range r.streams {
		segments += len(s.Segments)
	}
	return streams, segments
}

// Streams returns snapshots of every registered stream.
func (r *Registry) Streams() []*domain.Stream {
	r.mu.RLock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make([]*domain.Stream, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.GetStream(id); ok {
			out = append(out, s)
		}
	}
	return out
}

// Clear drops all streams; used on backend destroy.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams = make(map[string]*domain.Stream)
	metrics.ActiveStreams.Set(0)
}
