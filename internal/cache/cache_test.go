package cache

import (
	"context"
	"testing"
	"time"

	"arborescence/internal/model"

	"github.com/alicebob/miniredis/v2"
)

func setupTestCache(t *testing.T) (*SnapshotCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := New("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestGet_MissOnEmpty(t *testing.T) {
	c, _ := setupTestCache(t)
	_, ok, err := c.Get(context.Background())
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestSetGetInvalidate(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()
	nodes := []model.Node{
		{ID: "sec-a", Label: "A", Level: model.LevelSection, Index: 0},
		{ID: "tit-b", Label: "B", Level: model.LevelTitle, ParentID: model.ParentPtr("sec-a"), Index: 0},
	}
	if stored, err := c.Set(ctx, 0, nodes); err != nil || !stored {
		t.Fatalf("Set: stored=%v err=%v", stored, err)
	}
	got, ok, err := c.Get(ctx)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || !got[1].Same(nodes[1]) {
		t.Fatalf("unexpected cached nodes: %+v", got)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected miss after invalidate")
	}
}

func TestEntryExpires(t *testing.T) {
	c, s := setupTestCache(t)
	c.WithTTL(time.Minute)
	ctx := context.Background()
	if _, err := c.Set(ctx, 0, nil); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.FastForward(2 * time.Minute)
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	c, s := setupTestCache(t)
	c.WithNamespace("t1")
	if err := s.Set("arbo:t1:tree", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, ok, err := c.Get(context.Background())
	if ok || err != nil {
		t.Fatalf("expected silent miss, got ok=%v err=%v", ok, err)
	}
	if s.Exists("arbo:t1:tree") {
		t.Fatalf("expected corrupt entry to be dropped")
	}
}

func TestSet_DropsSnapshotReadBeforeAWrite(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	gen, err := c.Generation(ctx)
	if err != nil {
		t.Fatalf("Generation: %v", err)
	}
	// A write lands between the reader's generation check and its Set.
	if err := c.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	stored, err := c.Set(ctx, gen, []model.Node{})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if stored {
		t.Fatalf("expected the stale snapshot to be dropped")
	}
	if _, ok, _ := c.Get(ctx); ok {
		t.Fatalf("expected a miss after the dropped Set")
	}

	fresh, err := c.Generation(ctx)
	if err != nil || fresh != gen+1 {
		t.Fatalf("expected generation %d, got %d (%v)", gen+1, fresh, err)
	}
	if stored, err := c.Set(ctx, fresh, []model.Node{}); err != nil || !stored {
		t.Fatalf("expected current snapshot stored, got stored=%v err=%v", stored, err)
	}
}

func TestNamespace_ScopesGeneration(t *testing.T) {
	c, s := setupTestCache(t)
	c.WithNamespace("t2")
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if v, err := s.Get("arbo:t2:tree:gen"); err != nil || v != "1" {
		t.Fatalf("expected namespaced generation 1, got %q (%v)", v, err)
	}
}
