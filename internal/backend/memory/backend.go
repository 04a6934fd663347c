// Package memory provides an in-process SegmentBackend backed by a bounded
// LRU payload cache. It is the default backend and the development/test
// seam: segments become loadable once their payload has been put into the
// cache, and eviction turns them back into known-but-unloadable entries.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"hybridstream/internal/backend"
	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
)

const defaultMaxCacheBytes = 256 << 20

// Backend implements ports.SegmentBackend entirely in memory.
type Backend struct {
	*backend.Registry

	logger       *slog.Logger
	bandwidthBps float64
	deliverDelay time.Duration

	mu      sync.Mutex
	cache   *payloadCache
	pending map[domain.SegmentID]*pendingLoad
}

// pendingLoad identifies one in-flight load. The pointer doubles as the
// ownership token: a goroutine only removes its own entry, never one a
// newer overlapping load has replaced it with.
type pendingLoad struct {
	cancel context.CancelFunc
}

type Option func(*Backend)

// WithMaxCacheBytes bounds the payload cache.
func WithMaxCacheBytes(max int64) Option {
	return func(b *Backend) {
		if max > 0 {
			b.cache = newPayloadCache(max)
		}
	}
}

// WithBandwidth sets the transfer rate reported with every delivered
// payload, in bits per second.
func WithBandwidth(bps float64) Option {
	return func(b *Backend) {
		if bps > 0 {
			b.bandwidthBps = bps
		}
	}
}

// WithDeliveryDelay adds an artificial delay before delivery; useful in
// development to exercise abort paths.
func WithDeliveryDelay(d time.Duration) Option {
	return func(b *Backend) { b.deliverDelay = d }
}

func New(logger *slog.Logger, opts ...Option) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{
		Registry:     backend.NewRegistry(),
		logger:       logger,
		bandwidthBps: 10_000_000,
		cache:        newPayloadCache(defaultMaxCacheBytes),
		pending:      make(map[domain.SegmentID]*pendingLoad),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Put stores a payload for a tracked segment, making it loadable.
func (b *Backend) Put(id domain.SegmentID, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.put(id, payload)
}

// IsSegmentLoadable reports whether a payload is currently cached. A
// segment evicted from the cache stays known (HasSegment) but is no longer
// loadable until re-seeded.
func (b *Backend) IsSegmentLoadable(id domain.SegmentID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cache.peek(id)
	return ok
}

// LoadSegment delivers the cached payload asynchronously. Exactly one of
// the handlers fires, on a separate goroutine.
func (b *Backend) LoadSegment(id domain.SegmentID, h ports.SegmentHandlers) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingLoad{cancel: cancel}

	b.mu.Lock()
	if prev, ok := b.pending[id]; ok {
		prev.cancel()
	}
	b.pending[id] = p
	b.mu.Unlock()

	go func() {
		defer func() {
			b.mu.Lock()
			if b.pending[id] == p {
				delete(b.pending, id)
			}
			b.mu.Unlock()
			cancel()
		}()

		if b.deliverDelay > 0 {
			select {
			case <-ctx.Done():
				h.OnError(domain.NewSegmentAborted())
				return
			case <-time.After(b.deliverDelay):
			}
		}
		if ctx.Err() != nil {
			h.OnError(domain.NewSegmentAborted())
			return
		}

		b.mu.Lock()
		payload, ok := b.cache.get(id)
		b.mu.Unlock()
		if !ok {
			h.OnError(domain.NewSegmentFailed(domain.ErrNotFound))
			return
		}
		h.OnSuccess(domain.SegmentResponse{Payload: payload, BandwidthBps: b.bandwidthBps})
	}()
}

// AbortSegmentLoading cancels an in-flight load for id. No-op when nothing
// is pending.
func (b *Backend) AbortSegmentLoading(id domain.SegmentID) {
	b.mu.Lock()
	p, ok := b.pending[id]
	b.mu.Unlock()
	if ok {
		p.cancel()
	}
}

func (b *Backend) Destroy() error {
	b.mu.Lock()
	for _, p := range b.pending {
		p.cancel()
	}
	b.pending = make(map[domain.SegmentID]*pendingLoad)
	b.cache.clear()
	b.mu.Unlock()
	b.Registry.Clear()
	return nil
}
