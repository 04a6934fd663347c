package ports

import (
	"iter"

	"hybridstream/internal/domain"
)

// SegmentHandlers carries the continuations for an asynchronous segment
// load. The backend invokes exactly one of them, possibly long after
// LoadSegment returned.
type SegmentHandlers struct {
	OnSuccess func(resp domain.SegmentResponse)
	OnError   func(err error)
}

// SegmentBackend is the delivery backend able to satisfy some segment
// requests without a direct network fetch. Peer discovery, swarm membership
// and transfer protocol are entirely the backend's business; the adapter
// sees only this surface.
//
// A backend may know a segment (HasSegment) yet have no eligible source for
// it at the moment (IsSegmentLoadable false), e.g. mid-eviction.
type SegmentBackend interface {
	HasSegment(id domain.SegmentID) bool
	IsSegmentLoadable(id domain.SegmentID) bool

	// LoadSegment starts an asynchronous load and returns immediately.
	LoadSegment(id domain.SegmentID, h SegmentHandlers)
	// AbortSegmentLoading cancels an in-flight load. Idempotent: calling it
	// with nothing pending is a no-op.
	AbortSegmentLoading(id domain.SegmentID)

	AddStreamIfNoneExists(desc domain.StreamDescriptor)
	GetStream(id string) (*domain.Stream, bool)
	// UpdateStream applies the reconciler's delta: newSegments are added,
	// identities yielded by removed are dropped, everything else is left
	// untouched. Atomic from the caller's point of view.
	UpdateStream(id string, newSegments []domain.Segment, removed iter.Seq[domain.SegmentID])

	SetManifestResponseURL(url string)
	SetActiveLevelBitrate(bps int64)
	SetIsLive(live bool)
	UpdatePlayback(position, rate float64)

	Destroy() error
}
