// Package cached puts a byte cache in front of a knowledge store. The
// graph is read-only during a run, so answers can be cached until the
// graph is reloaded.
package cached

import (
	"context"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/cache"
	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/robot"
)

// Store decorates a knowledge.Store with a cache.
type Store struct {
	next  knowledge.Store
	cache cache.Cache
	ttl   time.Duration
}

// New wraps next. A zero ttl caches until Invalidate.
func New(next knowledge.Store, c cache.Cache, ttl time.Duration) *Store {
	return &Store{next: next, cache: c, ttl: ttl}
}

// Invalidate drops every cached answer. Call it after the graph changes.
func (s *Store) Invalidate(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Close closes the wrapped store if it holds resources.
func (s *Store) Close(ctx context.Context) error {
	if c, ok := s.next.(knowledge.Closer); ok {
		return c.Close(ctx)
	}
	return nil
}

// through returns the cached value for key or computes and stores it.
// Cache failures degrade to a direct query.
func through[T any](ctx context.Context, s *Store, key string, load func() (T, error)) (T, error) {
	if v, ok, err := cache.GetJSON[T](ctx, s.cache, key); err == nil && ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	_ = cache.SetJSON(ctx, s.cache, key, v, s.ttl)
	return v, nil
}

// ListPositions implements knowledge.Store.
func (s *Store) ListPositions(ctx context.Context) ([]robot.Position, error) {
	return through(ctx, s, cache.Key("positions"), func() ([]robot.Position, error) {
		return s.next.ListPositions(ctx)
	})
}

// ListTools implements knowledge.Store.
func (s *Store) ListTools(ctx context.Context) ([]robot.Tool, error) {
	return through(ctx, s, cache.Key("tools"), func() ([]robot.Tool, error) {
		return s.next.ListTools(ctx)
	})
}

// ListRoutines implements knowledge.Store.
func (s *Store) ListRoutines(ctx context.Context) ([]robot.Routine, error) {
	return through(ctx, s, cache.Key("routines"), func() ([]robot.Routine, error) {
		return s.next.ListRoutines(ctx)
	})
}

// GetRoutine implements knowledge.Store.
func (s *Store) GetRoutine(ctx context.Context, name string) (robot.Routine, error) {
	return through(ctx, s, cache.Key("routine", name), func() (robot.Routine, error) {
		return s.next.GetRoutine(ctx, name)
	})
}

// ToolLocations implements knowledge.Store.
func (s *Store) ToolLocations(ctx context.Context) (map[string]string, error) {
	return through(ctx, s, cache.Key("tool_locations"), func() (map[string]string, error) {
		return s.next.ToolLocations(ctx)
	})
}

// AllowedMoves implements knowledge.Store.
func (s *Store) AllowedMoves(ctx context.Context, position string) ([]string, error) {
	return through(ctx, s, cache.Key("moves", position), func() ([]string, error) {
		return s.next.AllowedMoves(ctx, position)
	})
}

// IsMoveAllowed implements knowledge.Store.
func (s *Store) IsMoveAllowed(ctx context.Context, a, b string) (bool, error) {
	return through(ctx, s, cache.Key("edge", a, b), func() (bool, error) {
		return s.next.IsMoveAllowed(ctx, a, b)
	})
}

// SupportedPositions implements knowledge.Store.
func (s *Store) SupportedPositions(ctx context.Context, routine string) ([]string, error) {
	return through(ctx, s, cache.Key("supported", routine), func() ([]string, error) {
		return s.next.SupportedPositions(ctx, routine)
	})
}

type metadataAnswer struct {
	Meta  robot.SupportMetadata `json:"meta"`
	Found bool                  `json:"found"`
}

// RoutineMetadata implements knowledge.Store. Absent edges are cached too.
func (s *Store) RoutineMetadata(ctx context.Context, routine, position string) (robot.SupportMetadata, bool, error) {
	a, err := through(ctx, s, cache.Key("meta", routine, position), func() (metadataAnswer, error) {
		m, ok, err := s.next.RoutineMetadata(ctx, routine, position)
		return metadataAnswer{Meta: m, Found: ok}, err
	})
	return a.Meta, a.Found, err
}

// ShortestPath implements knowledge.Store. Errors such as ErrNoPath are
// not cached.
func (s *Store) ShortestPath(ctx context.Context, a, b string) ([]string, error) {
	return through(ctx, s, cache.Key("path", a, b), func() ([]string, error) {
		return s.next.ShortestPath(ctx, a, b)
	})
}

// Stats returns the cache statistics when the cache provides them.
func (s *Store) Stats() (cache.Stats, bool) {
	if sp, ok := s.cache.(cache.StatsProvider); ok {
		return sp.Stats(), true
	}
	return cache.Stats{}, false
}

var (
	_ knowledge.Store  = (*Store)(nil)
	_ knowledge.Closer = (*Store)(nil)
)
