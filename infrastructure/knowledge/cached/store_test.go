package cached

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/felixgeelhaar/robotflow/domain/knowledge"
	"github.com/felixgeelhaar/robotflow/domain/knowledge/graphtest"
	"github.com/felixgeelhaar/robotflow/domain/robot"
	"github.com/felixgeelhaar/robotflow/infrastructure/storage/memory"
)

// countingStore counts calls reaching the wrapped store.
type countingStore struct {
	knowledge.Store
	paths atomic.Int32
	metas atomic.Int32
}

func (c *countingStore) ShortestPath(ctx context.Context, a, b string) ([]string, error) {
	c.paths.Add(1)
	return c.Store.ShortestPath(ctx, a, b)
}

func (c *countingStore) RoutineMetadata(ctx context.Context, r, p string) (robot.SupportMetadata, bool, error) {
	c.metas.Add(1)
	return c.Store.RoutineMetadata(ctx, r, p)
}

func newStores(t *testing.T) (*Store, *countingStore) {
	t.Helper()
	base, err := memory.NewKnowledgeStore(graphtest.Cell())
	if err != nil {
		t.Fatal(err)
	}
	counting := &countingStore{Store: base}
	return New(counting, memory.NewCache(), time.Minute), counting
}

func TestStore_CachesAnswers(t *testing.T) {
	t.Parallel()

	s, counting := newStores(t)
	ctx := context.Background()

	first, err := s.ShortestPath(ctx, "Home", "StationB")
	if err != nil {
		t.Fatalf("ShortestPath() error = %v", err)
	}
	second, _ := s.ShortestPath(ctx, "Home", "StationB")

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached answer differs (-first +second):\n%s", diff)
	}
	if n := counting.paths.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}

	stats, ok := s.Stats()
	if !ok || stats.Hits != 1 {
		t.Errorf("Stats() = %+v, %v", stats, ok)
	}
}

func TestStore_CachesAbsentMetadata(t *testing.T) {
	t.Parallel()

	s, counting := newStores(t)
	ctx := context.Background()

	for range 3 {
		if _, ok, err := s.RoutineMetadata(ctx, "pick", "Home"); ok || err != nil {
			t.Fatalf("RoutineMetadata() = %v, %v", ok, err)
		}
	}
	if n := counting.metas.Load(); n != 1 {
		t.Errorf("backend calls = %d, want 1", n)
	}

	meta, ok, _ := s.RoutineMetadata(ctx, "pick", "StationA")
	if !ok || meta.ActionAfter != "check_part" {
		t.Errorf("RoutineMetadata(pick, StationA) = %+v, %v", meta, ok)
	}
}

func TestStore_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	s, counting := newStores(t)
	ctx := context.Background()

	for range 2 {
		if _, err := s.ShortestPath(ctx, "Home", "Island"); !errors.Is(err, knowledge.ErrNoPath) {
			t.Fatalf("ShortestPath() error = %v", err)
		}
	}
	if n := counting.paths.Load(); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestStore_Invalidate(t *testing.T) {
	t.Parallel()

	s, counting := newStores(t)
	ctx := context.Background()

	_, _ = s.ShortestPath(ctx, "Home", "CamStand")
	if err := s.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	_, _ = s.ShortestPath(ctx, "Home", "CamStand")

	if n := counting.paths.Load(); n != 2 {
		t.Errorf("backend calls = %d, want 2", n)
	}
}

func TestStore_PassesThroughLists(t *testing.T) {
	t.Parallel()

	s, _ := newStores(t)
	ctx := context.Background()

	positions, err := s.ListPositions(ctx)
	if err != nil || len(positions) != 7 {
		t.Errorf("ListPositions() = %d, %v", len(positions), err)
	}
	locations, _ := s.ToolLocations(ctx)
	if locations["Gripper"] != "GripStand" {
		t.Errorf("ToolLocations() = %v", locations)
	}
	allowed, _ := s.IsMoveAllowed(ctx, "Home", "Junction")
	if !allowed {
		t.Error("IsMoveAllowed(Home, Junction) = false")
	}
	r, _ := s.GetRoutine(ctx, "scan")
	if r.Required() != "Camera" {
		t.Errorf("GetRoutine(scan) = %+v", r)
	}
}
