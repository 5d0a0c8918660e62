package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/warden/isolate"
)

// handle is a server-side reference to a heap cell.
type handle struct {
	id       string
	ref      *isolate.Persistent
	created  time.Time
	lastUsed time.Time
}

// HandleStore maps opaque string IDs to heap cells. Each handle holds
// its own pin, so a cell stays alive for as long as any client still
// refers to it, and unused handles age out via the TTL sweeper.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	heap    *isolate.Heap
}

// NewHandleStore creates a new handle store.
func NewHandleStore(heap *isolate.Heap) *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
		heap:    heap,
	}
}

// Create registers a cell and returns an opaque handle ID.
func (s *HandleStore) Create(c *isolate.Cell) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:       id,
		ref:      s.heap.NewPersistent(c),
		created:  now,
		lastUsed: now,
	}
	return id
}

// Lookup retrieves the cell for a handle. Returns the cell and true, or
// nil and false if the handle doesn't exist.
func (s *HandleStore) Lookup(id string) (*isolate.Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return nil, false
	}
	h.lastUsed = time.Now()
	return h.ref.Cell(), true
}

// Release removes a handle and drops its pin.
func (s *HandleStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}
	h.ref.Dispose()
	delete(s.handles, id)
}

// Count returns the number of live handles.
func (s *HandleStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			h.ref.Dispose()
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
