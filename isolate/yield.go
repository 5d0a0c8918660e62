package isolate

import "time"

// YieldPolicy makes the owner's fairness explicit. Instead of the owner
// hand-rolling release/sleep/reacquire calls, the policy tells the owner
// loop to open a yield window of the given length on a fixed cadence.
// Background mutators make progress only inside those windows, so a
// mutator's achieved rate is bounded by Window, Every and its own
// period, and the starvation tradeoff is a tunable rather than an
// accident of call timing.
//
// The zero policy never yields: the owner holds the token for its whole
// lifetime and mutators starve. That is a legitimate configuration, not
// an error.
type YieldPolicy struct {
	Every  time.Duration
	Window time.Duration
}

// Enabled reports whether the policy opens any windows at all.
func (p YieldPolicy) Enabled() bool {
	return p.Every > 0 && p.Window > 0
}
