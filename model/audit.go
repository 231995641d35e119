package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action tags an audit log entry. The set is closed.
type Action string

const (
	ActionContractCreated  Action = "CONTRACT_CREATED"
	ActionFileUploaded     Action = "FILE_UPLOADED"
	ActionContractApproved Action = "CONTRACT_APPROVED"
	ActionContractRejected Action = "CONTRACT_REJECTED"
	ActionVersionFeedback  Action = "VERSION_FEEDBACK"
	ActionContractDeleted  Action = "CONTRACT_DELETED"
)

// Actions lists every audit action.
var Actions = []Action{
	ActionContractCreated,
	ActionFileUploaded,
	ActionContractApproved,
	ActionContractRejected,
	ActionVersionFeedback,
	ActionContractDeleted,
}

// ParseAction validates an action tag.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// AuditDetails is the action-specific payload of an audit entry. The
// implementations in this file are the only ones.
type AuditDetails interface {
	Action() Action
	// Metadata exposes the payload as a flat map, the shape it is persisted
	// and served in.
	Metadata() map[string]any
	sealed()
}

// versionScoped is implemented by details that reference a single version.
type versionScoped interface {
	versionRef() string
}

type ContractCreated struct {
	Title    string `json:"title"`
	Reviewer string `json:"reviewer,omitempty"`
}

type FileUploaded struct {
	Version   int    `json:"version"`
	VersionID string `json:"versionId"`
	Filename  string `json:"filename"`
}

type VersionApproved struct {
	Version   int    `json:"version"`
	VersionID string `json:"versionId"`
}

type VersionRejected struct {
	Version   int    `json:"version"`
	VersionID string `json:"versionId"`
	Reason    string `json:"reason"`
}

type VersionFeedback struct {
	Version   int    `json:"version"`
	VersionID string `json:"versionId"`
	Comment   string `json:"comment"`
}

// ContractApproved records the legacy whole-contract approval.
type ContractApproved struct {
	Status Status `json:"status"`
}

// ContractRejected records the legacy whole-contract rejection.
type ContractRejected struct {
	Reason string `json:"reason"`
}

type ContractDeleted struct {
	Title    string `json:"title"`
	Versions int    `json:"versions"`
}

func (ContractCreated) Action() Action  { return ActionContractCreated }
func (FileUploaded) Action() Action     { return ActionFileUploaded }
func (VersionApproved) Action() Action  { return ActionContractApproved }
func (VersionRejected) Action() Action  { return ActionContractRejected }
func (VersionFeedback) Action() Action  { return ActionVersionFeedback }
func (ContractApproved) Action() Action { return ActionContractApproved }
func (ContractRejected) Action() Action { return ActionContractRejected }
func (ContractDeleted) Action() Action  { return ActionContractDeleted }

func (ContractCreated) sealed()  {}
func (FileUploaded) sealed()     {}
func (VersionApproved) sealed()  {}
func (VersionRejected) sealed()  {}
func (VersionFeedback) sealed()  {}
func (ContractApproved) sealed() {}
func (ContractRejected) sealed() {}
func (ContractDeleted) sealed()  {}

func (d FileUploaded) versionRef() string    { return d.VersionID }
func (d VersionApproved) versionRef() string { return d.VersionID }
func (d VersionRejected) versionRef() string { return d.VersionID }
func (d VersionFeedback) versionRef() string { return d.VersionID }

func (d ContractCreated) Metadata() map[string]any {
	m := map[string]any{"title": d.Title}
	if d.Reviewer != "" {
		m["reviewer"] = d.Reviewer
	}
	return m
}

func (d FileUploaded) Metadata() map[string]any {
	return map[string]any{"version": d.Version, "versionId": d.VersionID, "filename": d.Filename}
}

func (d VersionApproved) Metadata() map[string]any {
	return map[string]any{"version": d.Version, "versionId": d.VersionID}
}

func (d VersionRejected) Metadata() map[string]any {
	return map[string]any{"version": d.Version, "versionId": d.VersionID, "reason": d.Reason}
}

func (d VersionFeedback) Metadata() map[string]any {
	return map[string]any{"version": d.Version, "versionId": d.VersionID, "comment": d.Comment}
}

func (d ContractApproved) Metadata() map[string]any {
	return map[string]any{"status": string(d.Status)}
}

func (d ContractRejected) Metadata() map[string]any {
	return map[string]any{"reason": d.Reason}
}

func (d ContractDeleted) Metadata() map[string]any {
	return map[string]any{"title": d.Title, "versions": d.Versions}
}

// AuditLogEntry is one immutable record of the audit trail
type AuditLogEntry struct {
	ID         string
	Seq        int64 // insertion order, assigned by the repository
	Action     Action
	ActorID    string
	ContractID string
	// VersionID is set for entries that concern a single version; such
	// entries are VersionScoped.
	VersionID     string
	VersionScoped bool
	Details       AuditDetails
	CreatedAt     time.Time
}

// NewAuditEntry builds an entry for details. ID, Seq and CreatedAt are left
// for the audit log to fill in.
func NewAuditEntry(actorID, contractID string, details AuditDetails) *AuditLogEntry {
	e := &AuditLogEntry{
		Action:     details.Action(),
		ActorID:    actorID,
		ContractID: contractID,
		Details:    details,
	}
	if vs, ok := details.(versionScoped); ok {
		e.VersionID = vs.versionRef()
		e.VersionScoped = true
	}
	return e
}

// Metadata returns the entry payload as a map, never nil.
func (e *AuditLogEntry) Metadata() map[string]any {
	if e.Details == nil {
		return map[string]any{}
	}
	return e.Details.Metadata()
}

type auditLogEntryJSON struct {
	ID            string         `json:"id"`
	Action        Action         `json:"action"`
	Actor         string         `json:"actor"`
	Contract      string         `json:"contract"`
	VersionID     string         `json:"version_id,omitempty"`
	VersionScoped bool           `json:"version_scoped"`
	Metadata      map[string]any `json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (e *AuditLogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(auditLogEntryJSON{
		ID:            e.ID,
		Action:        e.Action,
		Actor:         e.ActorID,
		Contract:      e.ContractID,
		VersionID:     e.VersionID,
		VersionScoped: e.VersionScoped,
		Metadata:      e.Metadata(),
		CreatedAt:     e.CreatedAt,
	})
}

// EncodeAuditDetails serializes details for storage.
func EncodeAuditDetails(d AuditDetails) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// DecodeAuditDetails restores the variant stored for action. Approvals and
// rejections exist in a version-scoped and a legacy whole-contract form.
func DecodeAuditDetails(action Action, versionScoped bool, raw []byte) (AuditDetails, error) {
	var (
		d   AuditDetails
		err error
	)
	switch {
	case action == ActionContractCreated:
		d, err = decodeAs[ContractCreated](raw)
	case action == ActionFileUploaded:
		d, err = decodeAs[FileUploaded](raw)
	case action == ActionContractApproved && versionScoped:
		d, err = decodeAs[VersionApproved](raw)
	case action == ActionContractApproved:
		d, err = decodeAs[ContractApproved](raw)
	case action == ActionContractRejected && versionScoped:
		d, err = decodeAs[VersionRejected](raw)
	case action == ActionContractRejected:
		d, err = decodeAs[ContractRejected](raw)
	case action == ActionVersionFeedback:
		d, err = decodeAs[VersionFeedback](raw)
	case action == ActionContractDeleted:
		d, err = decodeAs[ContractDeleted](raw)
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s metadata: %w", action, err)
	}
	return d, nil
}

func decodeAs[T AuditDetails](raw []byte) (AuditDetails, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
