// Package isolate implements a single-owner managed heap.
//
// This package contains:
//   - Cell: a heap object with named numeric slots
//   - Heap: cell allocation and keep-alive pinning
//   - Token: the exclusive, non-reentrant ownership token for the heap
//   - Isolate: the owner loop that holds the token and serializes access
//   - Mutator: a periodic background read-modify-write loop
//   - Snapshot: token-consistent CBOR snapshots of heap state
//
// All heap state is owned by exactly one goroutine at a time: whoever
// holds the Token. The Isolate's owner goroutine holds it continuously,
// releasing it only during explicit yield windows, so background
// mutators make progress only when the owner lets them.
package isolate
