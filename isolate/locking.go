package isolate

import (
	"github.com/sasha-s/go-deadlock"
)

// Bookkeeping locks (the pin table, the observer list) are go-deadlock
// mutexes so that a lock-order inversion between them and the ownership
// token surfaces as a report in tests instead of a silent hang. The
// ownership token itself is not one of these: its blocking behavior is
// part of the contract, not a bug to report.
type adminMutex = deadlock.Mutex

type adminRWMutex = deadlock.RWMutex

// SetLockChecking toggles runtime checking of the bookkeeping locks.
// Hosts typically enable it in tests and soak runs and disable it in
// production.
func SetLockChecking(enabled bool) {
	deadlock.Opts.Disable = !enabled
}
