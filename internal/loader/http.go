package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"hybridstream/internal/domain"
	"hybridstream/internal/metrics"
)

const (
	defaultTimeoutMS       = 20_000
	defaultRetryDelayMS    = 1_000
	defaultMaxRetryDelayMS = 8_000
	readChunkSize          = 64 << 10
)

// HTTPLoader is the conventional network loader: a plain HTTP fetch honoring
// the fragment loader contract. It owns the retry policy for the fallback
// path; the coordinator above it never retries.
type HTTPLoader struct {
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
	defaults domain.LoadPolicy

	mu        sync.Mutex
	stats     *domain.Stats
	callbacks domain.LoaderCallbacks
	reqCtx    *domain.LoadContext
	cancel    context.CancelFunc
	aborted   bool
	settled   bool
	destroyed bool
}

// HTTPLoaderOptions configures a loader. A nil Client gets the default
// instrumented one; a nil Limiter disables rate limiting. DefaultPolicy
// fills in whatever the per-request policy leaves at zero.
type HTTPLoaderOptions struct {
	Client        *http.Client
	Limiter       *rate.Limiter
	Logger        *slog.Logger
	DefaultPolicy domain.LoadPolicy
}

// DefaultHTTPClient returns the shared client shape used for fallback
// loads: default transport wrapped with otel instrumentation.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func NewHTTPLoader(opts HTTPLoaderOptions) *HTTPLoader {
	client := opts.Client
	if client == nil {
		client = DefaultHTTPClient()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPLoader{
		client:   client,
		limiter:  opts.Limiter,
		logger:   logger,
		defaults: opts.DefaultPolicy,
		stats:    &domain.Stats{},
	}
}

// NewRateLimiter builds a byte-rate limiter for bytesPerSec, or nil when
// bytesPerSec is zero (unlimited).
func NewRateLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), readChunkSize)
}

func (l *HTTPLoader) Load(ctx context.Context, req *domain.LoadContext, policy domain.LoadPolicy, cb domain.LoaderCallbacks) {
	runCtx, cancel := context.WithCancel(ctx)

	l.mu.Lock()
	if l.destroyed {
		l.mu.Unlock()
		cancel()
		return
	}
	l.reqCtx = req
	l.callbacks = cb
	l.cancel = cancel
	aborted := l.aborted
	l.mu.Unlock()

	if aborted {
		cancel()
		return
	}
	go l.run(runCtx, req, policy)
}

func (l *HTTPLoader) run(ctx context.Context, req *domain.LoadContext, policy domain.LoadPolicy) {
	policy = l.fillPolicy(policy)
	timeout := time.Duration(policy.TimeoutMS) * time.Millisecond
	delay := time.Duration(policy.RetryDelayMS) * time.Millisecond
	maxDelay := time.Duration(policy.MaxRetryDelayMS) * time.Millisecond

	l.mu.Lock()
	l.stats.Loading.Start = time.Now().UnixMilli()
	l.mu.Unlock()

	var lastErr error
	lastCode := 0
	for attempt := 0; attempt <= policy.MaxRetry; attempt++ {
		if attempt > 0 {
			metrics.FallbackRetriesTotal.Inc()
			l.mu.Lock()
			l.stats.Retry++
			l.mu.Unlock()
			select {
			case <-ctx.Done():
				l.finishAborted()
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		}

		data, code, err := l.attempt(ctx, req, timeout)
		if err == nil {
			l.finishSuccess(req, data)
			return
		}
		if ctx.Err() != nil {
			l.finishAborted()
			return
		}
		lastErr = err
		lastCode = code
		l.logger.Debug("fallback load attempt failed",
			slog.String("url", req.URL),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	l.finishError(req, domain.LoadError{Code: lastCode, Text: lastErr.Error()})
}

// fillPolicy resolves the effective policy: per-request values win, then
// the loader's configured defaults, then the package constants.
func (l *HTTPLoader) fillPolicy(policy domain.LoadPolicy) domain.LoadPolicy {
	if policy.TimeoutMS <= 0 {
		policy.TimeoutMS = l.defaults.TimeoutMS
	}
	if policy.TimeoutMS <= 0 {
		policy.TimeoutMS = defaultTimeoutMS
	}
	if policy.MaxRetry <= 0 {
		policy.MaxRetry = l.defaults.MaxRetry
	}
	if policy.RetryDelayMS <= 0 {
		policy.RetryDelayMS = l.defaults.RetryDelayMS
	}
	if policy.RetryDelayMS <= 0 {
		policy.RetryDelayMS = defaultRetryDelayMS
	}
	if policy.MaxRetryDelayMS <= 0 {
		policy.MaxRetryDelayMS = l.defaults.MaxRetryDelayMS
	}
	if policy.MaxRetryDelayMS <= 0 {
		policy.MaxRetryDelayMS = defaultMaxRetryDelayMS
	}
	return policy
}

func (l *HTTPLoader) attempt(ctx context.Context, req *domain.LoadContext, timeout time.Duration) ([]byte, int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Progress counters restart on retry; a fresh attempt is a fresh load,
	// and a stale first-byte mark would skew the bandwidth estimate.
	l.mu.Lock()
	l.stats.Loaded = 0
	l.stats.ChunkCount = 0
	l.stats.Loading.First = 0
	l.mu.Unlock()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, 0, err
	}
	if req.Range != nil {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", req.Range.Start, req.Range.End))
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("http status %d", resp.StatusCode)
	}

	l.mu.Lock()
	if resp.ContentLength > 0 {
		l.stats.Total = resp.ContentLength
	}
	l.mu.Unlock()

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	chunk := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			if l.limiter != nil {
				if waitErr := l.limiter.WaitN(attemptCtx, n); waitErr != nil {
					return nil, 0, waitErr
				}
			}
			l.mu.Lock()
			if l.stats.Loading.First == 0 {
				l.stats.Loading.First = time.Now().UnixMilli()
			}
			l.stats.Loaded += int64(n)
			l.stats.ChunkCount++
			cb := l.callbacks
			stats := l.stats
			l.mu.Unlock()
			buf.Write(chunk[:n])
			if cb.OnProgress != nil {
				cb.OnProgress(stats, req, chunk[:n])
			}
		}
		if readErr == io.EOF {
			return buf.Bytes(), resp.StatusCode, nil
		}
		if readErr != nil {
			return nil, 0, readErr
		}
	}
}

func (l *HTTPLoader) finishSuccess(req *domain.LoadContext, data []byte) {
	l.mu.Lock()
	if l.settled || l.destroyed {
		l.mu.Unlock()
		return
	}
	l.settled = true
	now := time.Now().UnixMilli()
	l.stats.Loading.End = now
	if l.stats.Loading.First == 0 {
		l.stats.Loading.First = now
	}
	l.stats.Loaded = int64(len(data))
	if l.stats.Total == 0 {
		l.stats.Total = l.stats.Loaded
	}
	if elapsed := l.stats.Loading.End - l.stats.Loading.First; elapsed > 0 {
		l.stats.BWEstimate = float64(l.stats.Loaded) * 8000 / float64(elapsed)
	}
	cb := l.callbacks
	stats := l.stats
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("fallback", "success").Inc()
	metrics.FragmentBytesTotal.WithLabelValues("fallback").Add(float64(len(data)))

	if cb.OnSuccess != nil {
		cb.OnSuccess(domain.LoadResponse{URL: req.URL, Data: data}, stats, req)
	}
}

func (l *HTTPLoader) finishError(req *domain.LoadContext, loadErr domain.LoadError) {
	l.mu.Lock()
	if l.settled || l.destroyed {
		l.mu.Unlock()
		return
	}
	l.settled = true
	cb := l.callbacks
	stats := l.stats
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("fallback", "error").Inc()
	l.logger.Warn("fallback load failed",
		slog.String("url", req.URL),
		slog.Int("code", loadErr.Code),
		slog.String("error", loadErr.Text),
	)
	if cb.OnError != nil {
		cb.OnError(loadErr, req, nil, stats)
	}
}

func (l *HTTPLoader) finishAborted() {
	l.mu.Lock()
	if l.settled || l.destroyed {
		l.mu.Unlock()
		return
	}
	l.settled = true
	cb := l.callbacks
	stats := l.stats
	req := l.reqCtx
	l.mu.Unlock()

	metrics.FragmentLoadsTotal.WithLabelValues("fallback", "aborted").Inc()
	if cb.OnAbort != nil {
		cb.OnAbort(stats, req)
	}
}

func (l *HTTPLoader) Abort() {
	l.mu.Lock()
	if l.aborted || l.settled {
		l.mu.Unlock()
		return
	}
	l.aborted = true
	l.stats.Aborted = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *HTTPLoader) Destroy() {
	l.Abort()
	l.mu.Lock()
	l.destroyed = true
	l.callbacks = domain.LoaderCallbacks{}
	l.reqCtx = nil
	l.mu.Unlock()
}

func (l *HTTPLoader) Stats() *domain.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
