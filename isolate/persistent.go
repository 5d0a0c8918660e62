package isolate

// Persistent is a long-lived, pinned reference to one cell. It is the
// native side of a reference that crosses the owner boundary: the cell
// stays alive for as long as the Persistent does, independent of any
// shorter-lived references.
//
// A Persistent does not confer the right to touch the cell. Access
// still requires the ownership token.
type Persistent struct {
	heap *Heap
	cell *Cell
}

// NewPersistent pins c and returns a persistent reference to it.
func (h *Heap) NewPersistent(c *Cell) *Persistent {
	h.KeepAlive(c)
	return &Persistent{heap: h, cell: c}
}

// Cell returns the referenced cell, or nil after Dispose.
func (p *Persistent) Cell() *Cell { return p.cell }

// Reset repoints the reference at a different cell, moving the pin.
func (p *Persistent) Reset(c *Cell) {
	if p.cell != nil {
		p.heap.ReleaseKeepAlive(p.cell)
	}
	p.cell = c
	if c != nil {
		p.heap.KeepAlive(c)
	}
}

// Dispose drops the pin and clears the reference. Using the Persistent
// after Dispose returns nil cells; it does not resurrect.
func (p *Persistent) Dispose() {
	p.Reset(nil)
}
