package server

import (
	"context"
	"testing"
	"time"

	"github.com/chazu/warden/isolate"
)

func newTestIsolate(t *testing.T, opts ...isolate.Option) *isolate.Isolate {
	t.Helper()
	iso := isolate.New(opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = iso.Close(ctx)
	})
	return iso
}

func allocCell(t *testing.T, iso *isolate.Isolate, fields map[string]float64) *isolate.Cell {
	t.Helper()
	c, err := iso.Alloc(fields)
	if err != nil {
		t.Fatalf("Alloc returned error: %v", err)
	}
	return c
}

func TestHandleStoreCreateLookup(t *testing.T) {
	iso := newTestIsolate(t)
	store := NewHandleStore(iso.Heap())
	c := allocCell(t, iso, map[string]float64{"x": 1})

	id := store.Create(c)
	if id == "" {
		t.Fatal("Create returned an empty handle ID")
	}
	if iso.Heap().KeepAliveCount() != 1 {
		t.Errorf("KeepAliveCount = %d, want 1 (handle pins its cell)", iso.Heap().KeepAliveCount())
	}

	got, ok := store.Lookup(id)
	if !ok || got != c {
		t.Fatalf("Lookup(%q) = %v, %v, want the created cell", id, got, ok)
	}
	if _, ok := store.Lookup("no-such-handle"); ok {
		t.Error("Lookup of an unknown ID should fail")
	}
}

func TestHandleStoreRelease(t *testing.T) {
	iso := newTestIsolate(t)
	store := NewHandleStore(iso.Heap())
	c := allocCell(t, iso, map[string]float64{"x": 1})

	id := store.Create(c)
	store.Release(id)

	if _, ok := store.Lookup(id); ok {
		t.Error("Lookup after Release should fail")
	}
	if iso.Heap().KeepAliveCount() != 0 {
		t.Errorf("KeepAliveCount = %d, want 0 after Release", iso.Heap().KeepAliveCount())
	}

	// Releasing twice is a no-op.
	store.Release(id)
}

func TestHandleStoreSweep(t *testing.T) {
	iso := newTestIsolate(t)
	store := NewHandleStore(iso.Heap())
	c := allocCell(t, iso, map[string]float64{"x": 1})

	stale := store.Create(c)
	fresh := store.Create(c)

	// Age the first handle past the TTL, keep the second fresh.
	time.Sleep(30 * time.Millisecond)
	store.Lookup(fresh)

	removed := store.Sweep(20 * time.Millisecond)
	if removed != 1 {
		t.Fatalf("Sweep removed %d handles, want 1", removed)
	}
	if _, ok := store.Lookup(stale); ok {
		t.Error("stale handle should have been swept")
	}
	if _, ok := store.Lookup(fresh); !ok {
		t.Error("fresh handle should have survived the sweep")
	}
}

func TestHandleStoreSweeperStops(t *testing.T) {
	iso := newTestIsolate(t)
	store := NewHandleStore(iso.Heap())

	stop := store.StartSweeper(10*time.Millisecond, time.Hour)
	stop()
	// Stopping twice would panic on a closed channel; the contract is
	// one stop call, so just verify a single stop returns.
}
