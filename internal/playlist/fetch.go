package playlist

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"hybridstream/internal/domain"
)

const maxPlaylistBytes = 8 << 20

// Fetcher retrieves playlists over HTTP and hands them to the parser.
// Redirects are followed; the manifest URL reported downstream is the
// final response URL, so relative segment URIs resolve correctly.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Fetcher{client: client}
}

// FetchManifest downloads and parses a multivariant playlist.
func (f *Fetcher) FetchManifest(ctx context.Context, manifestURL string) (domain.ManifestUpdate, error) {
	finalURL, data, err := f.fetch(ctx, manifestURL)
	if err != nil {
		return domain.ManifestUpdate{}, err
	}
	return ParseManifest(finalURL, data)
}

// FetchLevel downloads and parses one track's media playlist.
func (f *Fetcher) FetchLevel(ctx context.Context, trackURL string, streamType domain.StreamType) (domain.LevelUpdate, error) {
	finalURL, data, err := f.fetch(ctx, trackURL)
	if err != nil {
		return domain.LevelUpdate{}, err
	}
	return ParseLevel(finalURL, streamType, data)
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("fetch playlist: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch playlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch playlist %s: http status %d", rawURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
	if err != nil {
		return "", nil, fmt.Errorf("fetch playlist %s: %w", rawURL, err)
	}
	return resp.Request.URL.String(), data, nil
}
