package loader

import (
	"context"

	"hybridstream/internal/domain"
	"hybridstream/internal/domain/ports"
)

// PlaylistLoader serves playlist and manifest fetches. The backend never
// intercepts these, so every request delegates to the fallback loader
// unconditionally. Constructing one signals that playback has
// (re)initialized; the session uses that to (re)bind its event handlers.
type PlaylistLoader struct {
	delegate ports.FragmentLoader
}

func NewPlaylistLoader(newFallback ports.LoaderFactory, onPlaybackInit func()) *PlaylistLoader {
	if onPlaybackInit != nil {
		onPlaybackInit()
	}
	return &PlaylistLoader{delegate: newFallback()}
}

func (l *PlaylistLoader) Load(ctx context.Context, req *domain.LoadContext, policy domain.LoadPolicy, cb domain.LoaderCallbacks) {
	l.delegate.Load(ctx, req, policy, cb)
}

func (l *PlaylistLoader) Abort()               { l.delegate.Abort() }
func (l *PlaylistLoader) Destroy()             { l.delegate.Destroy() }
func (l *PlaylistLoader) Stats() *domain.Stats { return l.delegate.Stats() }
