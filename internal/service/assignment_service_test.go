package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func TestAssignStaffMovesUserBetweenCounters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline)
	h.counter(t, "c2", "b1", domain.CounterStatusOnline)

	first, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u1"), PerformedBy: supervisor})
	require.NoError(t, err)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, domain.AssignmentAssigned, first.Entries[0].Action)
	assert.Equal(t, "Tina Teller", *first.Entries[0].UserName)

	moved, err := h.assignments.AssignStaff(ctx, AssignStaffInput{
		CounterID:   "c2",
		UserID:      strPtr("u1"),
		PerformedBy: supervisor,
		Reason:      strPtr("covering lunch"),
		IPAddress:   strPtr("10.0.0.7"),
	})
	require.NoError(t, err)
	require.Len(t, moved.Entries, 2)
	assert.Equal(t, domain.AssignmentUnassigned, moved.Entries[0].Action)
	assert.Equal(t, "c1", moved.Entries[0].CounterID)
	assert.Equal(t, "u1", *moved.Entries[0].PreviousUserID)
	assert.Equal(t, domain.AssignmentAssigned, moved.Entries[1].Action)
	assert.Equal(t, "c2", moved.Entries[1].CounterID)
	require.NotNil(t, moved.ReleasedCounter)

	assert.Nil(t, h.getCounter(t, "c1").AssignedUserID)
	assert.Equal(t, "u1", *h.getCounter(t, "c2").AssignedUserID)

	entries, err := h.assignments.ListAudit(ctx, AuditListFilter{BranchID: strPtr("b1")})
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	byUser, err := h.assignments.ListAudit(ctx, AuditListFilter{UserID: strPtr("u1"), CounterID: strPtr("c1")})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestConcurrentAssignStaffKeepsUserOnOneCounter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		h.counter(t, id, "b1", domain.CounterStatusOnline)
	}
	_, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u1"), PerformedBy: supervisor})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, target := range []string{"c2", "c3"} {
		i, target := i, target
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: target, UserID: strPtr("u1"), PerformedBy: supervisor})
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var holders []string
	for _, id := range []string{"c1", "c2", "c3"} {
		if user := h.getCounter(t, id).AssignedUserID; user != nil && *user == "u1" {
			holders = append(holders, id)
		}
	}
	require.Len(t, holders, 1)
	winner := holders[0]
	assert.Contains(t, []string{"c2", "c3"}, winner)
	loser := "c2"
	if winner == "c2" {
		loser = "c3"
	}

	entries, err := h.assignments.ListAudit(ctx, AuditListFilter{BranchID: strPtr("b1")})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assigned := map[string]int{}
	var released []string
	for _, entry := range entries {
		switch entry.Action {
		case domain.AssignmentAssigned:
			assigned[entry.CounterID]++
		case domain.AssignmentUnassigned:
			released = append(released, entry.CounterID)
		}
	}
	assert.Equal(t, map[string]int{"c1": 1, "c2": 1, "c3": 1}, assigned)
	assert.ElementsMatch(t, []string{"c1", loser}, released)
}

func TestAssignStaffReassignAndNoops(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline)

	_, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u1"), PerformedBy: supervisor})
	require.NoError(t, err)

	same, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u1"), PerformedBy: supervisor})
	require.NoError(t, err)
	assert.Empty(t, same.Entries)

	re, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u2"), PerformedBy: supervisor})
	require.NoError(t, err)
	require.Len(t, re.Entries, 1)
	assert.Equal(t, domain.AssignmentReassigned, re.Entries[0].Action)
	assert.Equal(t, "u1", *re.Entries[0].PreviousUserID)

	out, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", PerformedBy: supervisor})
	require.NoError(t, err)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, domain.AssignmentUnassigned, out.Entries[0].Action)

	empty, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", PerformedBy: supervisor})
	require.NoError(t, err)
	assert.Empty(t, empty.Entries)

	entries, err := h.assignments.ListAudit(ctx, AuditListFilter{CounterID: strPtr("c1")})
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestAssignStaffRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline)
	h.counter(t, "c2", "b1", domain.CounterStatusOnline)

	_, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u2"), PerformedBy: teller})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "teller assigning someone else: %v", err)

	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("ghost"), PerformedBy: supervisor})
	assert.True(t, apperrors.IsNotFound(err))
	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "nope", UserID: strPtr("u1"), PerformedBy: supervisor})
	assert.True(t, apperrors.IsNotFound(err))
	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u3"), PerformedBy: supervisor})
	assert.True(t, apperrors.IsValidation(err))

	self, err := h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u1"), PerformedBy: teller})
	require.NoError(t, err)
	require.Len(t, self.Entries, 1)

	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", PerformedBy: otherTell})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c1", UserID: strPtr("u2"), PerformedBy: otherTell})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "taking over a staffed counter")

	scoped := supervisor
	scoped.BranchID = strPtr("b2")
	_, err = h.assignments.AssignStaff(ctx, AssignStaffInput{CounterID: "c2", UserID: strPtr("u2"), PerformedBy: scoped})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	entries, err := h.assignments.ListAudit(ctx, AuditListFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
