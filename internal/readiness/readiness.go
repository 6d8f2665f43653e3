// Package readiness tracks whether the synthesis model is usable, as a
// process-wide three-state machine: loading, ready, or failed.
package readiness

import "sync/atomic"

// State is the readiness of the synthesis model.
type State int32

// Readiness states. Every status starts as Loading and transitions at most
// once, to either Ready or Failed.
const (
	Loading State = iota
	Ready
	Failed
)

// Status string values used on the HTTP surface.
const (
	stateLoading = "loading"
	stateReady   = "ready"
	stateFailed  = "error"
	stateUnknown = "unknown"
)

// String returns the wire representation of the state.
func (s State) String() string {
	switch s {
	case Loading:
		return stateLoading
	case Ready:
		return stateReady
	case Failed:
		return stateFailed
	default:
		return stateUnknown
	}
}

// Status holds the readiness state. Transitions are monotonic: once Ready or
// Failed is reached the state never changes again. The model loader is the
// single writer; requests read concurrently without further locking.
type Status struct {
	state atomic.Int32
}

// NewStatus creates a status in the Loading state.
func NewStatus() *Status {
	return &Status{}
}

// State returns the current readiness state.
func (s *Status) State() State {
	return State(s.state.Load())
}

// MarkReady transitions Loading to Ready. It reports whether the transition
// happened; a status already Ready or Failed is left untouched.
func (s *Status) MarkReady() bool {
	return s.state.CompareAndSwap(int32(Loading), int32(Ready))
}

// MarkFailed transitions Loading to Failed. It reports whether the transition
// happened; a status already Ready or Failed is left untouched.
func (s *Status) MarkFailed() bool {
	return s.state.CompareAndSwap(int32(Loading), int32(Failed))
}
