package usecase

// State is a step of one portfolio request.
type State string

const (
	StateRejected    State = "rejected"
	StateAdmitted    State = "admitted"
	StateAggregating State = "aggregating"
	StateComputing   State = "computing"
	StateRendering   State = "rendering"
	StateDelivering  State = "delivering"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
	StateTimedOut    State = "timed_out"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateRejected, StateCompleted, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}
