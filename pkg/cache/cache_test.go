package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLayer() *Layer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLayer(nil, logger, time.Minute)
}

func TestLayerSetGetRoundTrip(t *testing.T) {
	l := testLayer()
	ctx := context.Background()
	key := l.Key("blacklist", "plain")

	if _, ok := l.Get(ctx, key); ok {
		t.Fatalf("expected miss before Set")
	}

	l.Set(ctx, key, []byte("1.2.3.4\n5.6.7.8\n"))

	got, ok := l.Get(ctx, key)
	if !ok {
		t.Fatalf("expected hit after Set")
	}
	if string(got) != "1.2.3.4\n5.6.7.8\n" {
		t.Errorf("Get() = %q, want payload round-tripped", got)
	}
}

func TestLayerInvalidateMissesStaleKeys(t *testing.T) {
	l := testLayer()
	ctx := context.Background()

	key := l.Key("blacklist", "plain")
	l.Set(ctx, key, []byte("stale"))

	l.Invalidate(1)

	newKey := l.Key("blacklist", "plain")
	if newKey == key {
		t.Fatalf("Key() did not change after Invalidate")
	}
	if _, ok := l.Get(ctx, newKey); ok {
		t.Errorf("expected miss on the new version's key")
	}
	if _, ok := l.Get(ctx, key); ok {
		t.Errorf("expected stale key to be unreachable via Key() but still present in the LRU map; Get must not return it")
	}
}

func TestLayerGetOrLoadCachesOnMiss(t *testing.T) {
	l := testLayer()
	ctx := context.Background()
	key := l.Key("sources", "status")

	calls := 0
	load := func(context.Context) ([]byte, error) {
		calls++
		return []byte("loaded"), nil
	}

	first, err := l.GetOrLoad(ctx, key, load)
	if err != nil {
		t.Fatalf("GetOrLoad() error = %v", err)
	}
	if string(first) != "loaded" {
		t.Errorf("GetOrLoad() = %q, want %q", first, "loaded")
	}

	second, err := l.GetOrLoad(ctx, key, load)
	if err != nil {
		t.Fatalf("GetOrLoad() second call error = %v", err)
	}
	if string(second) != "loaded" {
		t.Errorf("GetOrLoad() second call = %q, want %q", second, "loaded")
	}
	if calls != 1 {
		t.Errorf("load() called %d times, want 1 (second read should hit cache)", calls)
	}
}

func TestLRUEvictsOldestBeyondMaxEntries(t *testing.T) {
	l := newLRU(2, 1<<20)

	l.set("a", 0, []byte("a"))
	l.set("b", 0, []byte("b"))
	l.set("c", 0, []byte("c"))

	if _, ok := l.get("a", 0); ok {
		t.Errorf("expected %q evicted as least recently used", "a")
	}
	if _, ok := l.get("b", 0); !ok {
		t.Errorf("expected %q to survive eviction", "b")
	}
	if _, ok := l.get("c", 0); !ok {
		t.Errorf("expected %q to survive eviction", "c")
	}
}

func TestLRURejectsOversizedEntry(t *testing.T) {
	l := newLRU(10, 4)

	l.set("big", 0, []byte("toolarge"))

	if _, ok := l.get("big", 0); ok {
		t.Errorf("expected oversized entry to be rejected rather than stored")
	}
}
