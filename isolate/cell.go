package isolate

// Cell is a heap object: a fixed set of named numeric slots. The slot
// layout is frozen at allocation time; only slot values change.
//
// Every accessor asserts that the calling goroutine holds the heap's
// ownership token. The slot storage is a flat float64 array so that the
// deliberately unguarded path used by the race demonstration corrupts a
// value rather than interpreter bookkeeping.
type Cell struct {
	heap  *Heap
	id    uint64
	names []string // immutable after allocation
	slots []float64
}

// ID returns the cell's heap-unique id.
func (c *Cell) ID() uint64 { return c.id }

// NumSlots returns the number of slots.
func (c *Cell) NumSlots() int { return len(c.names) }

// SlotNames returns the slot names in slot order. The returned slice is
// shared and must not be modified.
func (c *Cell) SlotNames() []string { return c.names }

// SlotIndex returns the slot index for a field name, or -1 if the cell
// has no such field. Safe to call without the token: the layout is
// immutable.
func (c *Cell) SlotIndex(name string) int {
	for i, n := range c.names {
		if n == name {
			return i
		}
	}
	return -1
}

// SlotAt returns the value in slot i. Requires the token.
func (c *Cell) SlotAt(i int) float64 {
	c.heap.token.mustHold("cell read")
	return c.slots[i]
}

// SetSlot stores v in slot i. Requires the token.
func (c *Cell) SetSlot(i int, v float64) {
	c.heap.token.mustHold("cell write")
	c.slots[i] = v
}

// AddSlot applies slot[i] += delta and returns the new value. This is
// the canonical read-modify-write; it is a single protected operation,
// never two. Requires the token.
func (c *Cell) AddSlot(i int, delta float64) float64 {
	c.heap.token.mustHold("cell read-modify-write")
	c.slots[i] += delta
	return c.slots[i]
}

// Get returns the value of the named field. Requires the token.
func (c *Cell) Get(name string) (float64, bool) {
	i := c.SlotIndex(name)
	if i < 0 {
		return 0, false
	}
	return c.SlotAt(i), true
}

// Set stores v in the named field and reports whether the field exists.
// Requires the token.
func (c *Cell) Set(name string, v float64) bool {
	i := c.SlotIndex(name)
	if i < 0 {
		return false
	}
	c.SetSlot(i, v)
	return true
}

// racyAdd is AddSlot with no ownership assertion. It exists only so the
// unguarded mutator variant can reproduce the original crash-by-race,
// and it is the one accessor the race detector is expected to flag.
func (c *Cell) racyAdd(i int, delta float64) float64 {
	c.slots[i] += delta
	return c.slots[i]
}
