package isolate

import (
	"sort"
	"sync/atomic"
)

// Heap allocates cells and tracks keep-alive pins. Cell contents are
// guarded by the ownership token; the pin table is bookkeeping with its
// own lock so handle stores can pin and unpin without entering the
// heap.
type Heap struct {
	token  *Token
	nextID atomic.Uint64

	mu    adminRWMutex
	cells map[uint64]*Cell
	pins  map[uint64]int // cell id -> pin count
}

func newHeap(token *Token) *Heap {
	return &Heap{
		token: token,
		cells: make(map[uint64]*Cell),
		pins:  make(map[uint64]int),
	}
}

// Token returns the heap's ownership token.
func (h *Heap) Token() *Token { return h.token }

// NewCell allocates a cell with the given fields. Requires the token.
// Field order is normalized so two cells allocated from the same map
// have the same slot layout.
func (h *Heap) NewCell(fields map[string]float64) *Cell {
	h.token.mustHold("cell allocation")

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Cell{
		heap:  h,
		id:    h.nextID.Add(1),
		names: names,
		slots: make([]float64, len(names)),
	}
	for i, name := range names {
		c.slots[i] = fields[name]
	}

	h.mu.Lock()
	h.cells[c.id] = c
	h.mu.Unlock()
	return c
}

// Lookup returns the cell with the given id, or nil.
func (h *Heap) Lookup(id uint64) *Cell {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cells[id]
}

// KeepAlive pins a cell so it survives regardless of other references.
// Pins are counted; each KeepAlive needs a matching ReleaseKeepAlive.
func (h *Heap) KeepAlive(c *Cell) {
	h.mu.Lock()
	h.pins[c.id]++
	h.mu.Unlock()
}

// ReleaseKeepAlive drops one pin from a cell. Unpinning a cell that was
// never pinned is a no-op.
func (h *Heap) ReleaseKeepAlive(c *Cell) {
	h.mu.Lock()
	if n := h.pins[c.id]; n > 1 {
		h.pins[c.id] = n - 1
	} else {
		delete(h.pins, c.id)
	}
	h.mu.Unlock()
}

// KeepAliveCount returns the number of distinct pinned cells.
func (h *Heap) KeepAliveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pins)
}

// CellCount returns the number of live cells.
func (h *Heap) CellCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cells)
}
