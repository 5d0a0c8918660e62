package isolate

import (
	"context"
	"sync/atomic"
	"time"
)

// Mutator is a background read-modify-write loop: every period it wakes,
// acquires the ownership token, applies field += step to the shared
// cell, releases, and sleeps again. It holds its own pin on the target
// so the cell outlives any other reference, and it stops when cancelled
// rather than running detached until process exit.
type Mutator struct {
	iso    *Isolate
	target *Persistent
	slot   int
	field  string
	period time.Duration
	step   float64

	// unguarded skips token acquisition entirely. This reproduces the
	// broken variant that corrupts the heap under concurrency; it is
	// only for demonstrating the failure under the race detector.
	unguarded bool

	ticks  atomic.Uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// MutatorOption configures a Mutator at start time.
type MutatorOption func(*Mutator)

// MutatorPeriod overrides the isolate's default tick period.
func MutatorPeriod(d time.Duration) MutatorOption {
	return func(m *Mutator) { m.period = d }
}

// MutatorStep overrides the isolate's default increment.
func MutatorStep(step float64) MutatorOption {
	return func(m *Mutator) { m.step = step }
}

// Unguarded makes the mutator skip the ownership token. The result is a
// data race with any concurrent owner access. Never use this outside a
// race-detector demonstration.
func Unguarded() MutatorOption {
	return func(m *Mutator) { m.unguarded = true }
}

func (m *Mutator) run(ctx context.Context) {
	defer close(m.done)
	defer m.target.Dispose()

	timer := time.NewTimer(m.period)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if !m.tick(ctx) {
			return
		}
		timer.Reset(m.period)
	}
}

// tick applies one increment. Returns false once cancelled.
func (m *Mutator) tick(ctx context.Context) bool {
	c := m.target.Cell()

	if m.unguarded {
		v := c.racyAdd(m.slot, m.step)
		m.ticks.Add(1)
		m.iso.notify(Tick{By: ByWorker, Field: m.field, Value: v})
		return true
	}

	token := m.iso.token
	if err := token.AcquireContext(ctx); err != nil {
		return false
	}
	v := c.AddSlot(m.slot, m.step)
	token.Release()

	m.ticks.Add(1)
	m.iso.notify(Tick{By: ByWorker, Field: m.field, Value: v})
	return true
}

// Ticks returns the number of increments this mutator has applied.
func (m *Mutator) Ticks() uint64 { return m.ticks.Load() }

// Period returns the tick period.
func (m *Mutator) Period() time.Duration { return m.period }

// Step returns the increment applied per tick.
func (m *Mutator) Step() float64 { return m.step }

// Stop cancels the mutator and waits for its loop to exit. A mutator
// blocked waiting for the token unblocks immediately; one mid-mutation
// finishes the mutation first, so no update is torn by shutdown.
func (m *Mutator) Stop(ctx context.Context) error {
	m.cancel()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the mutator's loop has exited.
func (m *Mutator) Done() <-chan struct{} { return m.done }
