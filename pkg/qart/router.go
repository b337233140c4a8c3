package qart

import (
	"context"
	"fmt"
)

// Router dispatches each Location to the store registered for its scheme,
// falling back to a default store for anything else ("s3://", "store://").
type Router struct {
	schemes  map[string]Store
	fallback Store
}

// NewRouter creates a router with the given default store.
func NewRouter(fallback Store) *Router {
	return &Router{
		schemes:  make(map[string]Store),
		fallback: fallback,
	}
}

// Register routes scheme to store.
func (r *Router) Register(scheme string, store Store) *Router {
	r.schemes[scheme] = store
	return r
}

func (r *Router) route(loc Location) (Store, error) {
	if s, ok := r.schemes[loc.Scheme]; ok {
		return s, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}
	return r.fallback, nil
}

func (r *Router) Download(ctx context.Context, loc Location, path string) error {
	s, err := r.route(loc)
	if err != nil {
		return err
	}
	return s.Download(ctx, loc, path)
}

func (r *Router) Upload(ctx context.Context, loc Location, path string) error {
	s, err := r.route(loc)
	if err != nil {
		return err
	}
	return s.Upload(ctx, loc, path)
}

func (r *Router) Put(ctx context.Context, loc Location, body []byte, contentType string) error {
	s, err := r.route(loc)
	if err != nil {
		return err
	}
	return s.Put(ctx, loc, body, contentType)
}

func (r *Router) Exists(ctx context.Context, loc Location) (bool, error) {
	s, err := r.route(loc)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, loc)
}

// Ensure Router implements Store.
var _ Store = (*Router)(nil)
