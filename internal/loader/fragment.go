package loader

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
	"hybridstream/internal/metrics"
)

// HybridLoader coordinates a single fragment request: it decides between
// backend delivery and the conventional fallback loader, and honors the same
// callback contract either way. One HybridLoader serves one request; the
// player constructs a fresh one per fragment.
type HybridLoader struct {
	backend     ports.SegmentBackend
	newFallback ports.LoaderFactory
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	delegate  ports.FragmentLoader
	stats     *domain.Stats
	callbacks domain.LoaderCallbacks
	reqCtx    *domain.LoadContext
	segID     domain.SegmentID
	settled   bool // a terminal outcome has been surfaced
	aborted   bool
	destroyed bool
}

// NewHybridLoader builds a coordinator bound to backend, delegating to
// loaders produced by newFallback when the backend cannot serve a request.
func NewHybridLoader(backend ports.SegmentBackend, newFallback ports.LoaderFactory, logger *slog.Logger) *HybridLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridLoader{
		backend:     backend,
		newFallback: newFallback,
		logger:      logger,
		now:         time.Now,
		stats:       &domain.Stats{},
	}
}

// Load decides the delivery path and issues the request. It never blocks on
// the backend: continuations are registered and Load returns immediately.
func (l *HybridLoader) Load(ctx context.Context, req *domain.LoadContext, policy domain.LoadPolicy, cb domain.LoaderCallbacks) {
	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		return
	}
	id := domain.SegmentIDFor(req.URL, req.Range)
	l.segID = id
	l.reqCtx = req
	l.callbacks = cb

	if req.Type != domain.ContextFragment || !l.backend.HasSegment(id) || !l.backend.IsSegmentLoadable(id) {
		// Not servable by the backend: construct the fallback loader and
		// hand the whole lifecycle over, its native stats included.
		delegate := l.newFallback()
		l.delegate = delegate
		l.mu.Unlock()
		metrics.FragmentLoadsTotal.WithLabelValues("fallback", "delegated").Inc()
		delegate.Load(ctx, req, policy, cb)
		return
	}
	l.mu.Unlock()

	l.backend.LoadSegment(id, ports.SegmentHandlers{
		OnSuccess: func(resp domain.SegmentResponse) { l.handleBackendSuccess(resp) },
		OnError:   func(err error) { l.handleBackendError(err) },
	})
}

func (l *HybridLoader) handleBackendSuccess(resp domain.SegmentResponse) {
	l.mu.Lock()
	if l.settled || l.aborted || l.destroyed {
		// A late result after abort or destroy; the abort flag was the
		// terminal outcome.
		l.mu.Unlock()
		return
	}
	l.settled = true
	loaded := int64(len(resp.Payload))
	l.stats.Loading = SynthesizeTiming(resp.BandwidthBps, loaded, l.now())
	// total == loaded marks the payload as fully available up front, which
	// keeps progressive-loading heuristics downstream from engaging.
	l.stats.Total = loaded
	l.stats.Loaded = loaded
	l.stats.ChunkCount = 1
	l.stats.BWEstimate = resp.BandwidthBps
	cb := l.callbacks
	req := l.reqCtx
	stats := l.stats
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("backend", "success").Inc()
	metrics.FragmentBytesTotal.WithLabelValues("backend").Add(float64(loaded))
	metrics.SynthesizedBandwidthBps.Set(resp.BandwidthBps)

	if cb.OnProgress != nil {
		cb.OnProgress(stats, req, resp.Payload)
	}
	if cb.OnSuccess != nil {
		cb.OnSuccess(domain.LoadResponse{URL: req.URL, Data: resp.Payload}, stats, req)
	}
}

func (l *HybridLoader) handleBackendError(err error) {
	l.mu.Lock()
	if l.settled || l.destroyed {
		l.mu.Unlock()
		return
	}
	if l.aborted {
		// Abort already surfaced the terminal outcome; whatever the
		// cancelled load reports now is a consequence, not a new failure.
		l.mu.Unlock()
		l.logger.Debug("backend error after abort dropped",
			slog.String("segment", string(l.segID)),
			slog.Bool("abortConfirmation", domain.IsSegmentAborted(err)),
		)
		return
	}
	l.settled = true
	cb := l.callbacks
	req := l.reqCtx
	stats := l.stats
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("backend", "error").Inc()

	loadErr := normalizeBackendError(err)
	l.logger.Warn("backend segment load failed",
		slog.String("segment", string(l.segID)),
		slog.String("error", loadErr.Text),
	)
	if cb.OnError != nil {
		cb.OnError(loadErr, req, nil, stats)
	}
}

// normalizeBackendError maps a backend error onto the player's {code, text}
// shape. Request failures carry the causing error's message; any other error
// contributes its own message. Code stays at the zero sentinel.
func normalizeBackendError(err error) domain.LoadError {
	var se *domain.SegmentLoadError
	if errors.As(err, &se) {
		if se.Cause != nil {
			return domain.LoadError{Text: se.Cause.Error()}
		}
		return domain.LoadError{Text: string(se.Type)}
	}
	if err != nil {
		return domain.LoadError{Text: err.Error()}
	}
	return domain.LoadError{}
}

// Abort cancels the in-flight request. Idempotent: a second call, or a call
// after a result already landed, is a no-op.
func (l *HybridLoader) Abort() {
	l.mu.Lock()
	if l.delegate != nil {
		delegate := l.delegate
		l.mu.Unlock()
		delegate.Abort()
		return
	}
	if l.settled || l.aborted || l.segID == "" {
		l.mu.Unlock()
		return
	}
	l.aborted = true
	l.stats.Aborted = true
	cb := l.callbacks
	req := l.reqCtx
	stats := l.stats
	id := l.segID
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("backend", "aborted").Inc()
	l.backend.AbortSegmentLoading(id)
	if cb.OnAbort != nil {
		cb.OnAbort(stats, req)
	}
}

// Destroy tears the request down. With an active delegate the call is
// forwarded; otherwise the request is aborted if still pending and all
// callback and policy references are released so nothing can fire later.
func (l *HybridLoader) Destroy() {
	l.mu.Lock()
	if l.delegate != nil {
		delegate := l.delegate
		l.delegate = nil
		l.destroyed = true
		l.mu.Unlock()
		delegate.Destroy()
		return
	}
	aborted := l.aborted
	l.mu.Unlock()

	if !aborted {
		l.Abort()
	}

	l.mu.Lock()
	l.destroyed = true
	l.callbacks = domain.LoaderCallbacks{}
	l.reqCtx = nil
	l.mu.Unlock()
}

// Stats returns the request's statistics: the delegate's native object when
// the request went down the fallback path, our synthesized one otherwise.
func (l *HybridLoader) Stats() *domain.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.delegate != nil {
		return l.delegate.Stats()
	}
	return l.stats
}
