package ports

import (
	"context"

	"hybridstream/internal/domain"
)

// FragmentLoader is the conventional loader contract the player programs
// against. The hybrid coordinator implements it too, so the player cannot
// tell which delivery path served a request.
type FragmentLoader interface {
	// Load issues the request and returns immediately; completion is
	// reported through the callbacks.
	Load(ctx context.Context, req *domain.LoadContext, policy domain.LoadPolicy, cb domain.LoaderCallbacks)
	// Abort cancels the in-flight request, if any. Idempotent.
	Abort()
	// Destroy aborts if needed and releases callbacks and configuration so
	// no further callback can fire.
	Destroy()
	// Stats returns the request's statistics object. When the request was
	// delegated to a fallback loader this is the delegate's native object.
	Stats() *domain.Stats
}

// LoaderFactory builds a fresh fallback loader per delegated request.
type LoaderFactory func() FragmentLoader
