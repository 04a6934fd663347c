// Package torrent provides a SegmentBackend that serves media segments out
// of torrent swarms. A stream's descriptor carries a swarm source (magnet
// link); segments resolve to byte ranges of the swarm's files and are read
// through torrent readers, so a segment the swarm already holds never
// touches the origin CDN.
package torrent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/anacrolix/torrent"

	"hybridstream/internal/backend"
	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
)

const defaultReadahead = 8 << 20

type Config struct {
	DataDir    string
	ListenPort int
	// Seed keeps completed data available to other swarm members.
	Seed bool
}

// Backend implements ports.SegmentBackend over an anacrolix torrent client.
type Backend struct {
	*backend.Registry

	client *torrent.Client
	logger *slog.Logger

	mu        sync.Mutex
	swarms    map[string]*torrent.Torrent // stream ID -> torrent
	pending   map[domain.SegmentID]*pendingLoad
	destroyed bool
}

// pendingLoad identifies one in-flight read; the pointer is the ownership
// token, so a goroutine never removes an entry a newer overlapping load
// has replaced.
type pendingLoad struct {
	cancel context.CancelFunc
}

func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	if cfg.ListenPort != 0 {
		clientConfig.ListenPort = cfg.ListenPort
	}
	clientConfig.Seed = cfg.Seed

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("torrent client: %w", err)
	}
	return NewWithClient(client, logger), nil
}

func NewWithClient(client *torrent.Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		Registry: backend.NewRegistry(),
		client:   client,
		logger:   logger,
		swarms:   make(map[string]*torrent.Torrent),
		pending:  make(map[domain.SegmentID]*pendingLoad),
	}
}

// AddStreamIfNoneExists registers the stream and, when the descriptor names
// a swarm source, joins that swarm. Metadata resolution continues in the
// background; segments of the stream become loadable once it lands.
func (b *Backend) AddStreamIfNoneExists(desc domain.StreamDescriptor) {
	b.Registry.AddStreamIfNoneExists(desc)
	if desc.SwarmSource == "" {
		return
	}

	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return
	}
	if _, ok := b.swarms[desc.ID]; ok {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	t, err := b.client.AddMagnet(desc.SwarmSource)
	if err != nil {
		b.logger.Warn("swarm join failed",
			slog.String("stream", desc.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	b.mu.Lock()
	b.swarms[desc.ID] = t
	b.mu.Unlock()

	go func() {
		<-t.GotInfo()
		t.DownloadAll()
		b.logger.Info("swarm metadata ready",
			slog.String("stream", desc.ID),
			slog.String("name", t.Name()),
			slog.Int("files", len(t.Files())),
		)
	}()
}

// IsSegmentLoadable reports whether the segment resolves to a readable file
// range right now: the stream's swarm is joined and its metadata arrived.
func (b *Backend) IsSegmentLoadable(id domain.SegmentID) bool {
	_, _, _, ok := b.resolve(id)
	return ok
}

// resolve maps a tracked segment onto a (file, offset, length) triple of
// its stream's swarm. Segments with a byte range read that slice of the
// matched file; rangeless segments read the whole file.
func (b *Backend) resolve(id domain.SegmentID) (f *torrent.File, offset, length int64, ok bool) {
	seg, stream, found := b.FindSegment(id)
	if !found {
		return nil, 0, 0, false
	}

	b.mu.Lock()
	t := b.swarms[stream.ID]
	b.mu.Unlock()
	if t == nil || !infoReady(t) {
		return nil, 0, 0, false
	}

	file := matchFile(t, seg.URL)
	if file == nil {
		return nil, 0, 0, false
	}

	if seg.Range != nil {
		offset = seg.Range.Start
		length = seg.Range.Length()
	} else {
		offset = 0
		length = file.Length()
	}
	if length <= 0 || offset+length > file.Length() {
		return nil, 0, 0, false
	}
	return file, offset, length, true
}

// matchFile finds the swarm file whose base name matches the segment URL's
// path. Single-file swarms match unconditionally.
func matchFile(t *torrent.Torrent, segmentURL string) *torrent.File {
	files := t.Files()
	if len(files) == 0 {
		return nil
	}
	if len(files) == 1 {
		return files[0]
	}
	want := segmentBaseName(segmentURL)
	if want == "" {
		return nil
	}
	for _, f := range files {
		if path.Base(f.Path()) == want {
			return f
		}
	}
	return nil
}

// segmentBaseName extracts the file base name a segment URL points at,
// ignoring query strings. Empty on unparsable URLs or URLs without a path.
func segmentBaseName(segmentURL string) string {
	parsed, err := url.Parse(segmentURL)
	if err != nil || parsed.Path == "" {
		return ""
	}
	base := path.Base(parsed.Path)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func infoReady(t *torrent.Torrent) bool {
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

// LoadSegment reads the resolved file range on its own goroutine and
// reports the measured transfer rate alongside the payload.
func (b *Backend) LoadSegment(id domain.SegmentID, h ports.SegmentHandlers) {
	file, offset, length, ok := b.resolve(id)
	if !ok {
		go h.OnError(domain.NewSegmentFailed(domain.ErrNotFound))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingLoad{cancel: cancel}
	b.mu.Lock()
	if prev, exists := b.pending[id]; exists {
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

		started := time.Now()
		reader := file.NewReader()
		defer reader.Close()
		reader.SetContext(ctx)
		readahead := length
		if readahead > defaultReadahead {
			readahead = defaultReadahead
		}
		reader.SetReadahead(readahead)

		if _, err := reader.Seek(offset, io.SeekStart); err != nil {
			if ctx.Err() != nil {
				h.OnError(domain.NewSegmentAborted())
				return
			}
			h.OnError(domain.NewSegmentFailed(err))
			return
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			if ctx.Err() != nil {
				h.OnError(domain.NewSegmentAborted())
				return
			}
			h.OnError(domain.NewSegmentFailed(err))
			return
		}
		if ctx.Err() != nil {
			h.OnError(domain.NewSegmentAborted())
			return
		}

		elapsed := time.Since(started).Seconds()
		if elapsed <= 0 {
			elapsed = 0.001
		}
		h.OnSuccess(domain.SegmentResponse{
			Payload:      payload,
			BandwidthBps: float64(length) * 8 / elapsed,
		})
	}()
}

// AbortSegmentLoading cancels the in-flight read for id, if any.
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
	if b.destroyed {
		b.mu.Unlock()
		return nil
	}
	b.destroyed = true
	for _, p := range b.pending {
		p.cancel()
	}
	b.pending = make(map[domain.SegmentID]*pendingLoad)
	b.swarms = make(map[string]*torrent.Torrent)
	b.mu.Unlock()

	b.Registry.Clear()
	if b.client != nil {
		if errList := b.client.Close(); len(errList) > 0 {
			return errList[0]
		}
	}
	return nil
}
