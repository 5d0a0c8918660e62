package isolate

import (
	"bytes"
	"testing"
)

func TestSnapshotReflectsHeapState(t *testing.T) {
	iso := newTestIsolate(t, WithStep(42))
	setupSharedCell(t, iso, 1)
	if _, err := iso.Alloc(map[string]float64{"a": 10, "b": 20}); err != nil {
		t.Fatalf("Alloc returned error: %v", err)
	}

	for k := 0; k < 3; k++ {
		if _, err := iso.Mutate(); err != nil {
			t.Fatalf("Mutate returned error: %v", err)
		}
	}

	snap, err := iso.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.Mutations != 3 {
		t.Errorf("Mutations = %d, want 3", snap.Mutations)
	}
	if snap.Field != "x" || snap.Step != 42 {
		t.Errorf("Field/Step = %q/%v, want x/42", snap.Field, snap.Step)
	}
	if len(snap.Cells) != 2 {
		t.Fatalf("snapshot has %d cells, want 2", len(snap.Cells))
	}

	// Cells are ordered by id; the shared cell was allocated first.
	shared := snap.Cells[0]
	if got := shared.Fields["x"]; got != 1+3*42 {
		t.Errorf("shared field = %v, want %v", got, 1+3*42)
	}
	if shared.Pins != 1 {
		t.Errorf("shared pins = %d, want 1", shared.Pins)
	}
	other := snap.Cells[1]
	if other.Fields["a"] != 10 || other.Fields["b"] != 20 {
		t.Errorf("second cell fields = %v, want a=10 b=20", other.Fields)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	iso := newTestIsolate(t)
	setupSharedCell(t, iso, 5)

	snap, err := iso.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}

	data, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("MarshalSnapshot returned error: %v", err)
	}
	got, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshot returned error: %v", err)
	}

	if got.Mutations != snap.Mutations || got.Field != snap.Field {
		t.Errorf("round trip changed header: %+v vs %+v", got, snap)
	}
	if len(got.Cells) != len(snap.Cells) {
		t.Fatalf("round trip changed cell count: %d vs %d", len(got.Cells), len(snap.Cells))
	}
	if got.Cells[0].Fields["x"] != 5 {
		t.Errorf("round trip field = %v, want 5", got.Cells[0].Fields["x"])
	}

	// Canonical encoding: same state, same bytes.
	again, err := MarshalSnapshot(got)
	if err != nil {
		t.Fatalf("second MarshalSnapshot returned error: %v", err)
	}
	snap.TakenAt = got.TakenAt // only the timestamp may differ
	ref, err := MarshalSnapshot(snap)
	if err != nil {
		t.Fatalf("reference MarshalSnapshot returned error: %v", err)
	}
	if !bytes.Equal(again, ref) {
		t.Error("canonical encoding should be deterministic for equal state")
	}
}
