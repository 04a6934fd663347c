package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
)

type terminalWaiter struct {
	mu       sync.Mutex
	done     chan struct{}
	once     sync.Once
	resp     *domain.LoadResponse
	err      *domain.LoadError
	aborted  bool
	progress int
}

func newTerminalWaiter() *terminalWaiter {
	return &terminalWaiter{done: make(chan struct{})}
}

func (w *terminalWaiter) callbacks() domain.LoaderCallbacks {
	return domain.LoaderCallbacks{
		OnSuccess: func(resp domain.LoadResponse, _ *domain.Stats, _ *domain.LoadContext) {
			w.mu.Lock()
			w.resp = &resp
			w.mu.Unlock()
			w.once.Do(func() { close(w.done) })
		},
		OnError: func(err domain.LoadError, _ *domain.LoadContext, _ []byte, _ *domain.Stats) {
			w.mu.Lock()
			w.err = &err
			w.mu.Unlock()
			w.once.Do(func() { close(w.done) })
		},
		OnAbort: func(*domain.Stats, *domain.LoadContext) {
			w.mu.Lock()
			w.aborted = true
			w.mu.Unlock()
			w.once.Do(func() { close(w.done) })
		},
		OnProgress: func(*domain.Stats, *domain.LoadContext, []byte) {
			w.mu.Lock()
			w.progress++
			w.mu.Unlock()
		},
	}
}

func (w *terminalWaiter) wait(t *testing.T) {
	t.Helper()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no terminal callback within 5s")
	}
}

func TestHTTPLoaderSuccess(t *testing.T) {
	payload := []byte("0123456789abcdef")
	var gotRange string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.Header.Get("Range")
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	l := NewHTTPLoader(HTTPLoaderOptions{Client: srv.Client()})
	w := newTerminalWaiter()
	req := &domain.LoadContext{
		URL:   srv.URL + "/seg1.ts",
		Type:  domain.ContextFragment,
		Range: domain.RangeFromExclusive(0, 16),
	}
	l.Load(context.Background(), req, domain.LoadPolicy{}, w.callbacks())
	w.wait(t)

	if w.resp == nil {
		t.Fatalf("want success, got err=%v aborted=%v", w.err, w.aborted)
	}
	if string(w.resp.Data) != string(payload) {
		t.Fatal("payload mismatch")
	}
	if gotRange != "bytes=0-15" {
		t.Fatalf("Range header = %q, want inclusive bytes=0-15", gotRange)
	}
	stats := l.Stats()
	if stats.Loaded != int64(len(payload)) {
		t.Fatalf("stats.Loaded = %d, want %d", stats.Loaded, len(payload))
	}
	if stats.Loading.Start > stats.Loading.First || stats.Loading.First > stats.Loading.End {
		t.Fatalf("loading marks out of order: %+v", stats.Loading)
	}
	if w.progress == 0 {
		t.Fatal("no progress callbacks")
	}
}

func TestHTTPLoaderRetriesThenSucceeds(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	l := NewHTTPLoader(HTTPLoaderOptions{Client: srv.Client()})
	w := newTerminalWaiter()
	policy := domain.LoadPolicy{MaxRetry: 2, RetryDelayMS: 10, MaxRetryDelayMS: 20}
	l.Load(context.Background(), &domain.LoadContext{URL: srv.URL, Type: domain.ContextFragment}, policy, w.callbacks())
	w.wait(t)

	if w.resp == nil {
		t.Fatalf("want success after retry, got err=%v", w.err)
	}
	if l.Stats().Retry != 1 {
		t.Fatalf("stats.Retry = %d, want 1", l.Stats().Retry)
	}
}

func TestHTTPLoaderRetryResetsFirstByteMark(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			// Deliver some bytes, then cut the connection mid-body so the
			// attempt fails after the first-byte mark was taken.
			w.Header().Set("Content-Length", "64")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("partial"))
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		_, _ = w.Write([]byte("full payload bytes"))
	}))
	defer srv.Close()

	l := NewHTTPLoader(HTTPLoaderOptions{Client: srv.Client()})
	w := newTerminalWaiter()
	policy := domain.LoadPolicy{MaxRetry: 2, RetryDelayMS: 300, MaxRetryDelayMS: 300}
	l.Load(context.Background(), &domain.LoadContext{URL: srv.URL, Type: domain.ContextFragment}, policy, w.callbacks())
	w.wait(t)

	if w.resp == nil {
		t.Fatalf("want success after retry, got err=%v", w.err)
	}
	stats := l.Stats()
	if stats.Loading.First < stats.Loading.Start {
		t.Fatalf("loading marks out of order: %+v", stats.Loading)
	}
	// The successful attempt started a full retry delay after the first
	// one delivered bytes; a leaked mark would leave end-first at least
	// that large and understate the bandwidth estimate.
	if gap := stats.Loading.End - stats.Loading.First; gap >= 300 {
		t.Fatalf("first-byte mark leaked from the failed attempt: end-first = %dms", gap)
	}
}

func TestHTTPLoaderExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	l := NewHTTPLoader(HTTPLoaderOptions{Client: srv.Client()})
	w := newTerminalWaiter()
	policy := domain.LoadPolicy{MaxRetry: 1, RetryDelayMS: 5, MaxRetryDelayMS: 10}
	l.Load(context.Background(), &domain.LoadContext{URL: srv.URL, Type: domain.ContextFragment}, policy, w.callbacks())
	w.wait(t)

	if w.err == nil {
		t.Fatal("want terminal error")
	}
	if w.err.Code != http.StatusNotFound {
		t.Fatalf("error code = %d, want 404", w.err.Code)
	}
}

func TestHTTPLoaderAbort(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	l := NewHTTPLoader(HTTPLoaderOptions{Client: srv.Client()})
	w := newTerminalWaiter()
	l.Load(context.Background(), &domain.LoadContext{URL: srv.URL, Type: domain.ContextFragment}, domain.LoadPolicy{}, w.callbacks())

	time.Sleep(50 * time.Millisecond)
	l.Abort()
	w.wait(t)

	if !w.aborted {
		t.Fatalf("want abort callback, got resp=%v err=%v", w.resp, w.err)
	}
	if !l.Stats().Aborted {
		t.Fatal("stats.Aborted not set")
	}
}

func TestPlaylistLoaderDelegatesAndSignalsInit(t *testing.T) {
	inits := 0
	fallback := newFakeFallback()
	pl := NewPlaylistLoader(func() ports.FragmentLoader { return fallback }, func() { inits++ })
	if inits != 1 {
		t.Fatalf("playback init signaled %d times, want 1", inits)
	}

	pl.Load(context.Background(), &domain.LoadContext{URL: "https://cdn.example.com/master.m3u8", Type: domain.ContextManifest}, domain.LoadPolicy{}, domain.LoaderCallbacks{})
	if fallback.loads != 1 {
		t.Fatal("playlist load not delegated")
	}
	if pl.Stats() != fallback.stats {
		t.Fatal("playlist stats must be the delegate's")
	}
}
