package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/robotflow/domain/cache"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(opts ...CacheOption) (*Cache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewCache(opts...)
	c.now = clock.now
	return c, clock
}

func TestCache_SetAndGet(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()
	ctx := context.Background()

	if err := c.Set(ctx, "kg:path:Home:StationB", []byte(`["Home","Junction"]`), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.Get(ctx, "kg:path:Home:StationB")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if string(value) != `["Home","Junction"]` {
		t.Errorf("Get() = %s", value)
	}

	// Returned slices are copies.
	value[0] = 'X'
	again, _, _ := c.Get(ctx, "kg:path:Home:StationB")
	if again[0] != '[' {
		t.Error("cached value was mutated through returned slice")
	}

	if _, found, _ := c.Get(ctx, "missing"); found {
		t.Error("Get() found a missing key")
	}

	stats := c.Stats()
	if stats.Hits != 2 || stats.Misses != 1 || stats.Size != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestCache_TTL(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("a"), time.Second)
	_ = c.Set(ctx, "forever", []byte("b"), 0)

	clock.advance(2 * time.Second)

	if _, found, _ := c.Get(ctx, "short"); found {
		t.Error("expired entry returned")
	}
	if _, found, _ := c.Get(ctx, "forever"); !found {
		t.Error("entry without ttl expired")
	}
}

func TestCache_Cleanup(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), time.Second)
	_ = c.Set(ctx, "b", []byte("2"), time.Minute)
	clock.advance(10 * time.Second)

	if removed := c.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() = %d, want 1", removed)
	}
	if c.Stats().Size != 1 {
		t.Errorf("Size = %d, want 1", c.Stats().Size)
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c, clock := newTestCache(WithMaxSize(2))
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	clock.advance(time.Millisecond)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	clock.advance(time.Millisecond)
	_, _, _ = c.Get(ctx, "a")
	clock.advance(time.Millisecond)
	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, found, _ := c.Get(ctx, "b"); found {
		t.Error("least recently used entry should be evicted")
	}
	if _, found, _ := c.Get(ctx, "a"); !found {
		t.Error("recently used entry evicted")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("deleted key still present")
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if c.Stats().Size != 0 {
		t.Error("Clear() left entries")
	}
}

func TestCache_Errors(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()

	if err := c.Set(context.Background(), "", []byte("x"), 0); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set(empty) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get(cancelled) error = %v", err)
	}
}

func TestCache_JSONHelpers(t *testing.T) {
	t.Parallel()

	c, _ := newTestCache()
	ctx := context.Background()

	key := cache.Key("moves", "Junction")
	if err := cache.SetJSON(ctx, c, key, []string{"CamStand", "Home"}, time.Minute); err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}
	got, ok, err := cache.GetJSON[[]string](ctx, c, key)
	if err != nil || !ok || len(got) != 2 {
		t.Errorf("GetJSON() = %v, %v, %v", got, ok, err)
	}
}
