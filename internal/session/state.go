package session

import (
	"sync/atomic"

	"warelay/internal/metrics"
)

// State holds the readiness flag. It starts NOT_READY and moves to READY once.
type State struct {
	ready atomic.Bool
}

func NewState() *State {
	return &State{}
}

// Ready reports whether the session has signalled ready.
func (s *State) Ready() bool {
	return s.ready.Load()
}

// MarkReady sets the flag. It returns true only for the call that flipped it.
func (s *State) MarkReady() bool {
	if s.ready.CompareAndSwap(false, true) {
		metrics.SessionReady.Set(1)
		return true
	}
	return false
}
