package isolate

import (
	"sync/atomic"
	"time"
)

// Actor identifies which side of the ownership boundary applied a
// mutation.
type Actor string

const (
	ByOwner  Actor = "owner"
	ByWorker Actor = "worker"
)

// Tick describes one applied mutation. Seq is a total order over all
// mutations on the isolate, owner and worker alike; it is what tests
// cross-check against the cell value to catch lost or duplicated
// updates.
type Tick struct {
	Seq   uint64    `json:"seq"`
	By    Actor     `json:"by"`
	Field string    `json:"field"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

type tickObservers struct {
	seq  atomic.Uint64
	mu   adminRWMutex
	next int
	fns  map[int]func(Tick)
}

// OnTick registers an observer called after every applied mutation and
// returns its unregister func. Observers run on the goroutine that
// applied the mutation, possibly while the token is still held, so they
// must not touch heap state or call back into the isolate, and should
// return quickly.
func (i *Isolate) OnTick(fn func(Tick)) func() {
	o := &i.observers
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(Tick))
	}
	id := o.next
	o.next++
	o.fns[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
	}
}

// Ticks returns the total number of mutations applied so far.
func (i *Isolate) Ticks() uint64 {
	return i.observers.seq.Load()
}

func (i *Isolate) notify(t Tick) {
	o := &i.observers
	t.Seq = o.seq.Add(1)
	t.At = time.Now()
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, fn := range o.fns {
		fn(t)
	}
}
