package documents

import (
	"fmt"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/pkg/workflows"
)

// Outgoing and internal documents. Rejection sends the draft back to its creator.
var approvalFlow = workflows.NewStateMachine(map[Status][]Status{
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved, StatusDraft},
	StatusApproved:        {StatusSent},
})

var incomingFlow = workflows.NewStateMachine(map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted},
})

// incomingEdgeOps names the gated operation that owns each incoming edge,
// keyed by target status. A status set through a plain update passes the
// same gate.
var incomingEdgeOps = map[Status]access.Operation{
	StatusProcessing: access.OpAssign,
	StatusCompleted:  access.OpComplete,
}

var responseFlow = workflows.NewStateMachine(map[Status][]Status{
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusRejected:        {StatusPendingApproval},
})

// requireTransition fails with ErrInvalidTransition unless from -> to is an edge.
func requireTransition(sm *workflows.StateMachine[Status], what string, from, to Status) error {
	if sm.CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s", apperr.ErrInvalidTransition, what, from, to)
}

// requireStatus fails with ErrInvalidTransition unless current is one of allowed.
func requireStatus(what string, current Status, allowed ...Status) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is %s, expected %v", apperr.ErrInvalidTransition, what, current, allowed)
}
