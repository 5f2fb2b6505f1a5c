package workflows

// StateMachine enforces status transitions along a fixed set of edges
type StateMachine[S ~string] struct {
	allowedTransitions map[S][]S
}

// NewStateMachine creates a new state machine with allowed transitions.
// States that only appear as targets are terminal.
func NewStateMachine[S ~string](edges map[S][]S) *StateMachine[S] {
	allowed := make(map[S][]S, len(edges))
	for from, to := range edges {
		allowed[from] = append([]S(nil), to...)
		for _, s := range to {
			if _, ok := edges[s]; !ok {
				if _, seen := allowed[s]; !seen {
					allowed[s] = nil
				}
			}
		}
	}
	return &StateMachine[S]{allowedTransitions: allowed}
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine[S]) CanTransition(from, to S) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine[S]) GetAllowedTransitions(from S) []S {
	allowed, exists := sm.allowedTransitions[from]
	if !exists || len(allowed) == 0 {
		return []S{}
	}
	return append([]S(nil), allowed...)
}

// IsKnown reports whether s is a state of this machine.
func (sm *StateMachine[S]) IsKnown(s S) bool {
	_, ok := sm.allowedTransitions[s]
	return ok
}
