package internal

import "math"

// NewBackoff returns a Backoff that starts at startWait and doubles up to maxWait
// on every Miss. A maxWait of zero means the wait is only bounded by overflow.
func NewBackoff(startWait, maxWait uint64) Backoff {
	if maxWait == 0 {
		maxWait = math.MaxUint64
	}
	if startWait > maxWait {
		startWait = maxWait
	}
	return Backoff{
		wait:      startWait,
		startWait: startWait,
		maxWait:   maxWait,
	}
}

// Backoff is an exponential timeout that is driven by the caller rather than
// by sleeping. Time units are left to the user.
type Backoff struct {
	// wait is the current timeout.
	wait uint64
	// Maximum allowable value for wait.
	maxWait uint64
	// startWait is the value that wait takes after a call to Hit.
	startWait uint64
}

// Wait returns the current timeout.
func (eb *Backoff) Wait() uint64 { return eb.wait }

// Hit sets the timeout back to its starting value.
func (eb *Backoff) Hit() {
	eb.wait = eb.startWait
}

// Miss doubles the timeout, saturating at the maximum.
func (eb *Backoff) Miss() {
	if eb.wait > eb.maxWait/2 {
		eb.wait = eb.maxWait
		return
	}
	eb.wait <<= 1
}
