package server

import (
	"sync/atomic"

	"github.com/chazu/warden/isolate"
)

// Worker funnels request-handler work onto the isolate's owner
// goroutine and keeps operation counts for the stats endpoint. The
// isolate already serializes and panic-protects owner operations; the
// worker adds the accounting the HTTP surface reports.
type Worker struct {
	iso    *isolate.Isolate
	ops    atomic.Uint64
	failed atomic.Uint64
}

// NewWorker wraps an isolate.
func NewWorker(iso *isolate.Isolate) *Worker {
	return &Worker{iso: iso}
}

// Do submits a function for execution on the owner goroutine and blocks
// until it completes.
func (w *Worker) Do(fn func(*isolate.Heap) interface{}) (interface{}, error) {
	w.ops.Add(1)
	v, err := w.iso.Do(fn)
	if err != nil {
		w.failed.Add(1)
	}
	return v, err
}

// Isolate returns the underlying isolate (for operations that carry
// their own serialization, like Mutate and LetWorkerWork).
func (w *Worker) Isolate() *isolate.Isolate { return w.iso }

// Ops returns the number of operations submitted through the worker.
func (w *Worker) Ops() uint64 { return w.ops.Load() }

// Failed returns the number of submitted operations that errored.
func (w *Worker) Failed() uint64 { return w.failed.Load() }
