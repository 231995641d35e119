package model

import (
	"fmt"
	"time"
)

// Version is one uploaded revision of a contract document
type Version struct {
	ID              string    `json:"id"`
	ContractID      string    `json:"contract"`
	Sequence        int       `json:"version"`
	FileRef         string    `json:"file_ref"`
	Filename        string    `json:"filename"`
	UploadedBy      string    `json:"uploaded_by"`
	Status          Status    `json:"status"`
	ApprovedBy      string    `json:"approved_by,omitempty"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	DecidedAt       time.Time `json:"decided_at,omitzero"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (v *Version) Clone() *Version {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Approve marks a submitted version as approved by actorID.
func (v *Version) Approve(actorID string, now time.Time) error {
	if v.Status != StatusSubmitted {
		return fmt.Errorf("%w: version %d is %s", ErrConflict, v.Sequence, v.Status)
	}
	v.Status = StatusApproved
	v.ApprovedBy = actorID
	v.DecidedAt = now
	v.UpdatedAt = now
	return nil
}

// Reject marks a submitted version as rejected. An empty reason is replaced
// by DefaultRejectionReason.
func (v *Version) Reject(reason string, now time.Time) error {
	if v.Status != StatusSubmitted {
		return fmt.Errorf("%w: version %d is %s", ErrConflict, v.Sequence, v.Status)
	}
	if reason == "" {
		reason = DefaultRejectionReason
	}
	v.Status = StatusRejected
	v.RejectionReason = reason
	v.DecidedAt = now
	v.UpdatedAt = now
	return nil
}
