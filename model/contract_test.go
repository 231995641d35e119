package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versionAt(seq int, status Status, reason string, decided time.Time) *Version {
	return &Version{
		ID:              "v" + string(rune('0'+seq)),
		Sequence:        seq,
		Status:          status,
		RejectionReason: reason,
		DecidedAt:       decided,
	}
}

func TestRecomputeStatus(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		start      Status
		versions   []*Version
		wantStatus Status
		wantReason string
	}{
		{
			name:       "no versions keeps draft",
			start:      StatusDraft,
			wantStatus: StatusDraft,
		},
		{
			name:       "all approved",
			start:      StatusSubmitted,
			versions:   []*Version{versionAt(1, StatusApproved, "", t0), versionAt(2, StatusApproved, "", t0.Add(time.Minute))},
			wantStatus: StatusApproved,
		},
		{
			name:       "pending version keeps submitted",
			start:      StatusSubmitted,
			versions:   []*Version{versionAt(1, StatusApproved, "", t0), versionAt(2, StatusSubmitted, "", time.Time{})},
			wantStatus: StatusSubmitted,
		},
		{
			name:       "approved by legacy path is corrected by pending version",
			start:      StatusApproved,
			versions:   []*Version{versionAt(1, StatusSubmitted, "", time.Time{})},
			wantStatus: StatusSubmitted,
		},
		{
			name:       "any rejected wins",
			start:      StatusSubmitted,
			versions:   []*Version{versionAt(1, StatusApproved, "", t0), versionAt(2, StatusRejected, "typo", t0.Add(time.Minute))},
			wantStatus: StatusRejected,
			wantReason: "typo",
		},
		{
			name:  "last rejected reason wins",
			start: StatusSubmitted,
			versions: []*Version{
				versionAt(2, StatusRejected, "second", t0.Add(2*time.Minute)),
				versionAt(1, StatusRejected, "first", t0),
			},
			wantStatus: StatusRejected,
			wantReason: "second",
		},
		{
			name:  "same decision time falls back to sequence",
			start: StatusSubmitted,
			versions: []*Version{
				versionAt(1, StatusRejected, "older", t0),
				versionAt(3, StatusRejected, "newer", t0),
			},
			wantStatus: StatusRejected,
			wantReason: "newer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Contract{Status: tt.start}
			c.RecomputeStatus(tt.versions)
			assert.Equal(t, tt.wantStatus, c.Status)
			assert.Equal(t, tt.wantReason, c.RejectionReason)
		})
	}
}

func TestRecomputeStatusClearsReasonOnApproval(t *testing.T) {
	c := &Contract{Status: StatusRejected, RejectionReason: "old"}
	c.RecomputeStatus([]*Version{{Sequence: 1, Status: StatusApproved}})
	assert.Equal(t, StatusApproved, c.Status)
	assert.Empty(t, c.RejectionReason)
}

func TestReopen(t *testing.T) {
	for _, s := range []Status{StatusApproved, StatusRejected, StatusDraft} {
		c := &Contract{Status: s, RejectionReason: "x"}
		c.Reopen()
		assert.Equal(t, StatusSubmitted, c.Status)
		assert.Empty(t, c.RejectionReason)
	}
}

func TestVersionTransitions(t *testing.T) {
	now := time.Now()

	v := &Version{Sequence: 1, Status: StatusSubmitted}
	require.NoError(t, v.Approve("r1", now))
	assert.Equal(t, StatusApproved, v.Status)
	assert.Equal(t, "r1", v.ApprovedBy)
	assert.Equal(t, now, v.DecidedAt)

	err := v.Approve("r1", now)
	require.ErrorIs(t, err, ErrConflict)
	err = v.Reject("late", now)
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, StatusApproved, v.Status)

	r := &Version{Sequence: 2, Status: StatusSubmitted}
	require.NoError(t, r.Reject("", now))
	assert.Equal(t, StatusRejected, r.Status)
	assert.Equal(t, DefaultRejectionReason, r.RejectionReason)
	assert.Empty(t, r.ApprovedBy)
}

func TestActorVisibility(t *testing.T) {
	a := &Contract{ID: "a", ReviewerID: "r1"}
	b := &Contract{ID: "b", ReviewerID: "r2"}
	unassigned := &Contract{ID: "c"}

	admin := Actor{ID: "admin", Role: RoleAdmin}
	r1 := Actor{ID: "r1", Role: RoleReviewer}

	assert.True(t, admin.CanSee(a))
	assert.True(t, admin.CanSee(unassigned))
	assert.True(t, r1.CanSee(a))
	assert.False(t, r1.CanSee(b))
	assert.False(t, r1.CanSee(unassigned))
	assert.False(t, Actor{Role: RoleReviewer}.CanSee(unassigned))

	assert.True(t, r1.IsReviewerOf(a))
	assert.False(t, admin.IsReviewerOf(a))
}

func TestParseRole(t *testing.T) {
	tests := map[string]Role{"ADMIN": RoleAdmin, "admin": RoleAdmin, "REVIEWER": RoleReviewer, "CLIENT": RoleReviewer}
	for in, want := range tests {
		got, ok := ParseRole(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseRole("OWNER")
	assert.False(t, ok)
}

func TestContractJSON(t *testing.T) {
	c := &Contract{ID: "c1", Title: "NDA", Status: StatusDraft, OwnerID: "admin"}
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "DRAFT", got["status"])
	assert.NotContains(t, got, "reviewer")
	assert.NotContains(t, got, "rejection_reason")
}
