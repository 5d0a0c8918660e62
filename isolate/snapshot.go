package isolate

import (
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so snapshots of equal heap state
// encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("isolate: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CellState is the snapshot of one cell.
type CellState struct {
	ID     uint64             `cbor:"id"`
	Fields map[string]float64 `cbor:"fields"`
	Pins   int                `cbor:"pins"`
}

// Snapshot is a token-consistent, point-in-time view of an isolate's
// heap: every cell's fields plus the total mutation count. It is taken
// on the owner goroutine, so no mutation can be half-applied in it.
type Snapshot struct {
	TakenAt   time.Time   `cbor:"taken_at"`
	Field     string      `cbor:"field"`
	Step      float64     `cbor:"step"`
	Mutations uint64      `cbor:"mutations"`
	Cells     []CellState `cbor:"cells"`
}

// Snapshot captures the current heap state.
func (i *Isolate) Snapshot() (*Snapshot, error) {
	v, err := i.Do(func(h *Heap) interface{} {
		return i.snapshotLocked(h)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// snapshotLocked runs on the owner goroutine with the token held.
func (i *Isolate) snapshotLocked(h *Heap) *Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	snap := &Snapshot{
		TakenAt:   time.Now(),
		Field:     i.field,
		Step:      i.step,
		Mutations: i.Ticks(),
		Cells:     make([]CellState, 0, len(h.cells)),
	}
	for id, c := range h.cells {
		fields := make(map[string]float64, len(c.names))
		for s, name := range c.names {
			fields[name] = c.slots[s]
		}
		snap.Cells = append(snap.Cells, CellState{
			ID:     id,
			Fields: fields,
			Pins:   h.pins[id],
		})
	}
	sort.Slice(snap.Cells, func(a, b int) bool {
		return snap.Cells[a].ID < snap.Cells[b].ID
	})
	return snap
}

// MarshalSnapshot serializes a Snapshot to CBOR bytes.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("isolate: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
