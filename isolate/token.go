package isolate

import (
	"context"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// Token is the exclusive right to touch the heap. At most one goroutine
// holds it at any instant. It is not reentrant: a holder that calls
// Acquire again has violated the protocol, and the violation is asserted
// rather than left to deadlock.
//
// The token is deliberately coarse. It guards the whole heap, not any
// one cell, because the owner's bookkeeping assumes all-or-nothing
// access.
type Token struct {
	sem    chan struct{} // capacity 1; full while held
	holder atomic.Int64  // goroutine id of the holder, 0 when free
}

// NewToken creates an unheld token.
func NewToken() *Token {
	return &Token{sem: make(chan struct{}, 1)}
}

// Acquire blocks until the token is free, then takes it for the calling
// goroutine. A goroutine that already holds the token must not call
// Acquire; doing so panics with a ViolationError instead of deadlocking.
func (t *Token) Acquire() {
	id := goid.Get()
	if t.holder.Load() == id {
		panic(violation("acquire", "token already held by this goroutine"))
	}
	t.sem <- struct{}{}
	t.holder.Store(id)
}

// AcquireContext is Acquire with cancellation. It returns ctx.Err() if
// the context is done before the token becomes free.
func (t *Token) AcquireContext(ctx context.Context) error {
	id := goid.Get()
	if t.holder.Load() == id {
		panic(violation("acquire", "token already held by this goroutine"))
	}
	select {
	case t.sem <- struct{}{}:
		t.holder.Store(id)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the token if it is free and reports whether it did.
func (t *Token) TryAcquire() bool {
	id := goid.Get()
	if t.holder.Load() == id {
		panic(violation("acquire", "token already held by this goroutine"))
	}
	select {
	case t.sem <- struct{}{}:
		t.holder.Store(id)
		return true
	default:
		return false
	}
}

// Release gives the token up. Only the holding goroutine may release;
// anything else is a protocol violation and panics.
func (t *Token) Release() {
	if t.holder.Load() != goid.Get() {
		panic(violation("release", "token not held by this goroutine"))
	}
	t.holder.Store(0)
	<-t.sem
}

// HeldByCaller reports whether the calling goroutine holds the token.
func (t *Token) HeldByCaller() bool {
	return t.holder.Load() == goid.Get()
}

// mustHold asserts that the calling goroutine holds the token before a
// heap access described by op.
func (t *Token) mustHold(op string) {
	if t.holder.Load() != goid.Get() {
		panic(violation(op, "heap access without holding the token"))
	}
}
