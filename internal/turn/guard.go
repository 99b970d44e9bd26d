package turn

import "sync/atomic"

// Guard enforces the single-flight invariant: at most one non-terminal
// turn per conversation at any time. Acquisition is one atomic
// check-and-set, not a check followed by a separate set.
type Guard struct {
	busy atomic.Bool
}

// Acquire claims the conversation for a new turn. It returns false,
// without blocking, if a turn is already in flight.
func (g *Guard) Acquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release frees the conversation after the turn reached a terminal state.
func (g *Guard) Release() {
	g.busy.Store(false)
}

// InFlight reports whether a turn currently holds the guard.
func (g *Guard) InFlight() bool {
	return g.busy.Load()
}
