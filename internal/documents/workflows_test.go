package documents

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"document-portal/portal-backend/internal/apperr"
)

func TestApprovalFlowEdges(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusPendingApproval, true},
		{StatusPendingApproval, StatusApproved, true},
		{StatusPendingApproval, StatusDraft, true},
		{StatusApproved, StatusSent, true},
		{StatusDraft, StatusApproved, false},
		{StatusDraft, StatusSent, false},
		{StatusSent, StatusDraft, false},
		{StatusApproved, StatusDraft, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.ok, approvalFlow.CanTransition(tc.from, tc.to))
		})
	}
	assert.Empty(t, approvalFlow.GetAllowedTransitions(StatusSent))
}

func TestIncomingFlowEdges(t *testing.T) {
	assert.True(t, incomingFlow.CanTransition(StatusPending, StatusProcessing))
	assert.True(t, incomingFlow.CanTransition(StatusProcessing, StatusCompleted))
	assert.False(t, incomingFlow.CanTransition(StatusPending, StatusCompleted))
	assert.False(t, incomingFlow.CanTransition(StatusCompleted, StatusProcessing))
}

func TestResponseFlowEdges(t *testing.T) {
	assert.True(t, responseFlow.CanTransition(StatusRejected, StatusPendingApproval))
	assert.False(t, responseFlow.CanTransition(StatusApproved, StatusRejected))
	assert.Equal(t, []Status{}, responseFlow.GetAllowedTransitions(StatusApproved))
}

func TestRequireTransition(t *testing.T) {
	assert.NoError(t, requireTransition(approvalFlow, "document", StatusDraft, StatusPendingApproval))
	assert.ErrorIs(t, requireTransition(approvalFlow, "document", StatusSent, StatusDraft), apperr.ErrInvalidTransition)
	assert.ErrorIs(t, requireStatus("document", StatusSent, StatusDraft), apperr.ErrInvalidTransition)
}
