package isolate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Defaults match the behavior this package engineers: a shared cell
// with one numeric field "x", incremented by 42 every 500ms.
const (
	DefaultField  = "x"
	DefaultStep   = 42
	DefaultPeriod = 500 * time.Millisecond
)

// request is a unit of work to be executed on the owner goroutine.
type request struct {
	fn   func(*Heap) interface{}
	done chan result
}

// result holds the return value from an owner operation.
type result struct {
	value interface{}
	err   error
}

// Isolate is a heap plus the goroutine that owns it. The owner
// goroutine acquires the ownership token when the isolate is created
// and holds it until Close, releasing it only inside yield windows.
// All heap access is serialized through Do; background mutators compete
// for the token on their own.
type Isolate struct {
	heap  *Heap
	token *Token

	requests chan request
	quit     chan struct{}
	done     chan struct{}
	closed   atomic.Bool

	field string
	step  float64

	// defaultPeriod seeds mutators that don't override it.
	defaultPeriod time.Duration
	yield         YieldPolicy

	mu         adminMutex
	shared     *Persistent
	sharedSlot int
	mutators   []*Mutator

	observers tickObservers
}

// Option configures an Isolate at creation.
type Option func(*Isolate)

// WithField sets the shared field name mutated by Mutate and by
// mutators.
func WithField(name string) Option {
	return func(i *Isolate) { i.field = name }
}

// WithStep sets the increment applied per mutation.
func WithStep(step float64) Option {
	return func(i *Isolate) { i.step = step }
}

// WithMutatorPeriod sets the default tick period for mutators started
// on this isolate.
func WithMutatorPeriod(d time.Duration) Option {
	return func(i *Isolate) { i.defaultPeriod = d }
}

// WithYieldPolicy makes the owner loop open yield windows on a cadence.
// Without a policy the owner never yields on its own; mutators progress
// only when the host calls LetWorkerWork.
func WithYieldPolicy(p YieldPolicy) Option {
	return func(i *Isolate) { i.yield = p }
}

// New creates an isolate and starts its owner goroutine. The owner
// holds the ownership token from the moment New returns.
func New(opts ...Option) *Isolate {
	i := &Isolate{
		token:         NewToken(),
		requests:      make(chan request, 64),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		field:         DefaultField,
		step:          DefaultStep,
		defaultPeriod: DefaultPeriod,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.heap = newHeap(i.token)

	started := make(chan struct{})
	go i.run(started)
	<-started
	return i
}

// Heap returns the isolate's heap. Touching cells still requires the
// token; use Do unless you are a mutator.
func (i *Isolate) Heap() *Heap { return i.heap }

// Token returns the ownership token.
func (i *Isolate) Token() *Token { return i.token }

// Field returns the shared field name.
func (i *Isolate) Field() string { return i.field }

// Step returns the default increment.
func (i *Isolate) Step() float64 { return i.step }

// run is the owner loop. It processes requests sequentially while
// holding the token, exactly one in flight at a time.
func (i *Isolate) run(started chan<- struct{}) {
	i.token.Acquire()
	close(started)
	defer close(i.done)

	var yieldC <-chan time.Time
	if i.yield.Enabled() {
		ticker := time.NewTicker(i.yield.Every)
		defer ticker.Stop()
		yieldC = ticker.C
	}

	for {
		select {
		case req := <-i.requests:
			req.done <- i.execute(req.fn)
		case <-yieldC:
			i.yieldFor(i.yield.Window)
		case <-i.quit:
			i.drain()
			i.token.Release()
			return
		}
	}
}

// drain finishes requests that were queued before shutdown so no caller
// is left blocked.
func (i *Isolate) drain() {
	for {
		select {
		case req := <-i.requests:
			req.done <- i.execute(req.fn)
		default:
			return
		}
	}
}

// execute runs a function on the heap with the token held, recovering
// panics. If the function released the token and returned without
// reacquiring it, the owner's exclusivity assumption is broken: the
// token is reacquired and the call is reported as a violation instead
// of letting the next operation run unprotected.
func (i *Isolate) execute(fn func(*Heap) interface{}) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				if v, ok := r.(*ViolationError); ok {
					res.err = v
				} else {
					res.err = fmt.Errorf("isolate: owner operation panicked: %v", r)
				}
			}
		}()
		res.value = fn(i.heap)
	}()

	if !i.token.HeldByCaller() {
		i.token.Acquire()
		if res.err == nil {
			res.err = violation("owner operation", "returned with the token released")
		}
	}
	return res
}

// yieldFor releases the token for one bounded window, then reacquires
// it. Runs on the owner goroutine.
func (i *Isolate) yieldFor(window time.Duration) {
	i.token.Release()
	timer := time.NewTimer(window)
	select {
	case <-timer.C:
	case <-i.quit:
		timer.Stop()
	}
	i.token.Acquire()
}

// Do submits a function for execution on the owner goroutine and blocks
// until it completes. The function runs with the token held. Returns
// ErrClosed once the isolate has shut down.
func (i *Isolate) Do(fn func(*Heap) interface{}) (interface{}, error) {
	if i.closed.Load() {
		return nil, ErrClosed
	}
	req := request{fn: fn, done: make(chan result, 1)}
	select {
	case i.requests <- req:
	case <-i.done:
		return nil, ErrClosed
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-i.done:
		// The owner drains queued requests before exiting, so a result
		// may still have been delivered.
		select {
		case res := <-req.done:
			return res.value, res.err
		default:
			return nil, ErrClosed
		}
	}
}

// Alloc creates a cell on the owner goroutine.
func (i *Isolate) Alloc(fields map[string]float64) (*Cell, error) {
	v, err := i.Do(func(h *Heap) interface{} {
		return h.NewCell(fields)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cell), nil
}

// Setup records c as the shared cell. Exactly one setup per isolate:
// a second call returns ErrAlreadySetup. The cell must carry the
// isolate's shared field. Setup pins the cell and returns with the
// runtime in its normal state; it never leaves the token released.
func (i *Isolate) Setup(c *Cell) error {
	if c == nil {
		return fmt.Errorf("isolate: setup: nil cell")
	}
	slot := c.SlotIndex(i.field)
	if slot < 0 {
		return fmt.Errorf("isolate: setup: cell has no field %q", i.field)
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed.Load() {
		return ErrClosed
	}
	if i.shared != nil {
		return ErrAlreadySetup
	}
	i.shared = i.heap.NewPersistent(c)
	i.sharedSlot = slot
	return nil
}

// Shared returns the shared cell, or nil before Setup.
func (i *Isolate) Shared() *Cell {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.shared == nil {
		return nil
	}
	return i.shared.Cell()
}

func (i *Isolate) sharedRef() (*Cell, int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.shared == nil {
		return nil, 0, ErrNotSetup
	}
	return i.shared.Cell(), i.sharedSlot, nil
}

// Mutate applies one increment to the shared field on the owner
// goroutine and returns the new value.
func (i *Isolate) Mutate() (float64, error) {
	if i.closed.Load() {
		return 0, ErrClosed
	}
	c, slot, err := i.sharedRef()
	if err != nil {
		return 0, err
	}
	v, err := i.Do(func(*Heap) interface{} {
		nv := c.AddSlot(slot, i.step)
		i.notify(Tick{By: ByOwner, Field: i.field, Value: nv})
		return nv
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Value reads the shared field on the owner goroutine.
func (i *Isolate) Value() (float64, error) {
	if i.closed.Load() {
		return 0, ErrClosed
	}
	c, slot, err := i.sharedRef()
	if err != nil {
		return 0, err
	}
	v, err := i.Do(func(*Heap) interface{} {
		return c.SlotAt(slot)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// StartMutator spawns one background mutator against the shared cell.
// Requires Setup first.
func (i *Isolate) StartMutator(opts ...MutatorOption) (*Mutator, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	// Checked under the lock: Close snapshots the mutator list under
	// the same lock after marking the isolate closed, so a mutator is
	// either rejected here or joined there.
	if i.closed.Load() {
		return nil, ErrClosed
	}
	if i.shared == nil {
		return nil, ErrNotSetup
	}

	m := &Mutator{
		iso:    i,
		target: i.heap.NewPersistent(i.shared.Cell()),
		slot:   i.sharedSlot,
		field:  i.field,
		period: i.defaultPeriod,
		step:   i.step,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	i.mutators = append(i.mutators, m)
	go m.run(ctx)
	return m, nil
}

// Start is Setup plus StartMutator in one call, mirroring the
// threaded-variant entry point.
func (i *Isolate) Start(c *Cell, opts ...MutatorOption) (*Mutator, error) {
	if err := i.Setup(c); err != nil {
		return nil, err
	}
	return i.StartMutator(opts...)
}

// LetWorkerWork opens a one-shot yield window: the owner releases the
// token for the given duration, then reacquires it before the call
// returns. Background mutators can run only inside such windows (or
// those opened by the yield policy).
func (i *Isolate) LetWorkerWork(window time.Duration) error {
	_, err := i.Do(func(*Heap) interface{} {
		i.yieldFor(window)
		return nil
	})
	return err
}

// Close shuts the isolate down: stop accepting work, cancel and join
// every mutator, drain queued owner operations, stop the owner loop,
// and drop the shared pin. After Close no goroutine started by the
// isolate survives.
func (i *Isolate) Close(ctx context.Context) error {
	if !i.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	i.mu.Lock()
	ms := make([]*Mutator, len(i.mutators))
	copy(ms, i.mutators)
	i.mu.Unlock()

	for _, m := range ms {
		if err := m.Stop(ctx); err != nil {
			return err
		}
	}

	close(i.quit)
	select {
	case <-i.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	i.mu.Lock()
	if i.shared != nil {
		i.shared.Dispose()
		i.shared = nil
	}
	i.mu.Unlock()
	return nil
}
