package model

import (
	"time"
)

// Status is the review state of a contract or of one of its versions.
// Versions are never DRAFT.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
)

// DefaultRejectionReason is stored when a reviewer rejects without a reason.
const DefaultRejectionReason = "No reason provided"

// Contract represents a contract under review
type Contract struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Status          Status    `json:"status"`
	OwnerID         string    `json:"owner"`
	ReviewerID      string    `json:"reviewer,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Clone returns a copy that can be mutated without touching the original.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// RecomputeStatus derives the contract status from the full set of its
// versions. With no versions the status is left alone (a fresh contract
// stays DRAFT).
func (c *Contract) RecomputeStatus(versions []*Version) {
	if len(versions) == 0 {
		return
	}

	allApproved := true
	var lastRejected *Version
	for _, v := range versions {
		if v.Status != StatusApproved {
			allApproved = false
		}
		if v.Status == StatusRejected && rejectedAfter(v, lastRejected) {
			lastRejected = v
		}
	}

	switch {
	case lastRejected != nil:
		c.Status = StatusRejected
		c.RejectionReason = lastRejected.RejectionReason
	case allApproved:
		c.Status = StatusApproved
		c.RejectionReason = ""
	default:
		c.Status = StatusSubmitted
		c.RejectionReason = ""
	}
}

// Reopen moves the contract back to SUBMITTED after a new version upload.
func (c *Contract) Reopen() {
	c.Status = StatusSubmitted
	c.RejectionReason = ""
}

// rejectedAfter orders rejections by decision time, then by sequence.
func rejectedAfter(v, current *Version) bool {
	if current == nil {
		return true
	}
	if !v.DecidedAt.Equal(current.DecidedAt) {
		return v.DecidedAt.After(current.DecidedAt)
	}
	return v.Sequence > current.Sequence
}
