package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/AnTengye/contracthub/store"
)

// ReviewerDirectory tells whether an id belongs to a reviewer. It is used
// to validate reviewer assignment at contract creation.
type ReviewerDirectory interface {
	IsReviewer(id string) bool
}

type WorkflowOptions struct {
	RequireRejectionReason bool
	DisableLegacyDecisions bool
	Reviewers              ReviewerDirectory
}

// Workflow is the operations layer of the review process. Every call takes
// the acting identity explicitly; every accepted mutation is followed by
// exactly one audit record; mutations of one contract are serialized.
type Workflow struct {
	contracts *ContractAggregate
	versions  *VersionStore
	audit     *AuditLog
	locker    Locker
	opts      WorkflowOptions
}

func NewWorkflow(s store.Store, locker Locker, opts WorkflowOptions) *Workflow {
	if locker == nil {
		locker = NewKeyedMutex()
	}
	return &Workflow{
		contracts: NewContractAggregate(s),
		versions:  NewVersionStore(s),
		audit:     NewAuditLog(s),
		locker:    locker,
		opts:      opts,
	}
}

// VersionDecision is the outcome of a reviewer decision on a version.
type VersionDecision struct {
	Contract *model.Contract `json:"contract"`
	Version  *model.Version  `json:"version"`
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: admin access only", model.ErrForbidden)
	}
	return nil
}

func requireReviewer(actor model.Actor) error {
	if !actor.IsReviewer() {
		return fmt.Errorf("%w: reviewer access only", model.ErrForbidden)
	}
	return nil
}

func (w *Workflow) lock(ctx context.Context, contractID string) (func(), error) {
	unlock, err := w.locker.Lock(ctx, "contract:"+contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock contract %s: %w", contractID, err)
	}
	return unlock, nil
}

// CreateContract creates a DRAFT contract owned by actor.
func (w *Workflow) CreateContract(ctx context.Context, actor model.Actor, title, reviewerID string) (*model.Contract, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID != "" && w.opts.Reviewers != nil && !w.opts.Reviewers.IsReviewer(reviewerID) {
		return nil, fmt.Errorf("%w: %s is not a reviewer", model.ErrValidation, reviewerID)
	}

	c, err := w.contracts.Create(ctx, title, actor.ID, reviewerID)
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, c.ID, model.ContractCreated{Title: c.Title, Reviewer: c.ReviewerID})
	logger.Info(ctx, "contract created", "contract_id", c.ID, "reviewer_id", c.ReviewerID)
	return c, nil
}

// ListContracts returns the contracts visible to actor, newest first.
func (w *Workflow) ListContracts(ctx context.Context, actor model.Actor) ([]*model.Contract, error) {
	return w.contracts.List(ctx, actor)
}

func (w *Workflow) GetContract(ctx context.Context, actor model.Actor, contractID string) (*model.Contract, error) {
	return w.contracts.GetVisible(ctx, actor, contractID)
}

// UploadVersion registers a new version whose payload is already stored under
// fileRef. The contract goes back to SUBMITTED.
func (w *Workflow) UploadVersion(ctx context.Context, actor model.Actor, contractID, fileRef, filename string) (*model.Version, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if fileRef == "" {
		return nil, fmt.Errorf("%w: file is required", model.ErrValidation)
	}

	unlock, err := w.lock(ctx, contractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := w.contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}

	v, err := w.versions.Upload(ctx, c, actor.ID, fileRef, filename)
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, c.ID, model.FileUploaded{Version: v.Sequence, VersionID: v.ID, Filename: filename})
	logger.Info(ctx, "version uploaded", "contract_id", c.ID, "version", v.Sequence)
	return v, nil
}

// ListVersions returns the versions of a visible contract, newest first.
func (w *Workflow) ListVersions(ctx context.Context, actor model.Actor, contractID string) ([]*model.Version, error) {
	if _, err := w.contracts.GetVisible(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return w.versions.ListByContract(ctx, contractID)
}

func (w *Workflow) GetVersion(ctx context.Context, actor model.Actor, contractID, versionID string) (*model.Version, error) {
	if _, err := w.contracts.GetVisible(ctx, actor, contractID); err != nil {
		return nil, err
	}
	return w.versions.Get(ctx, contractID, versionID)
}

// loadForReview locks and loads a contract the actor reviews.
func (w *Workflow) loadForReview(ctx context.Context, actor model.Actor, contractID string) (*model.Contract, func(), error) {
	if err := requireReviewer(actor); err != nil {
		return nil, nil, err
	}

	unlock, err := w.lock(ctx, contractID)
	if err != nil {
		return nil, nil, err
	}

	c, err := w.contracts.Get(ctx, contractID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	if !actor.IsReviewerOf(c) {
		unlock()
		return nil, nil, fmt.Errorf("%w: contract %s is not assigned to you", model.ErrForbidden, contractID)
	}
	return c, unlock, nil
}

// ApproveVersion approves a submitted version. The contract becomes APPROVED
// once every version is approved.
func (w *Workflow) ApproveVersion(ctx context.Context, actor model.Actor, contractID, versionID string) (*VersionDecision, error) {
	c, unlock, err := w.loadForReview(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, err := w.versions.Approve(ctx, c, versionID, actor.ID)
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, c.ID, model.VersionApproved{Version: v.Sequence, VersionID: v.ID})
	logger.Info(ctx, "version approved", "contract_id", c.ID, "version", v.Sequence, "contract_status", c.Status)
	return &VersionDecision{Contract: c, Version: v}, nil
}

// RejectVersion rejects a submitted version; the contract becomes REJECTED
// with the version's reason.
func (w *Workflow) RejectVersion(ctx context.Context, actor model.Actor, contractID, versionID, reason string) (*VersionDecision, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" && w.opts.RequireRejectionReason {
		return nil, fmt.Errorf("%w: rejection reason is required", model.ErrValidation)
	}

	c, unlock, err := w.loadForReview(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, err := w.versions.Reject(ctx, c, versionID, reason)
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, c.ID, model.VersionRejected{Version: v.Sequence, VersionID: v.ID, Reason: v.RejectionReason})
	logger.Info(ctx, "version rejected", "contract_id", c.ID, "version", v.Sequence)
	return &VersionDecision{Contract: c, Version: v}, nil
}

// FeedbackOnVersion stores a comment on a version. Feedback lives only in the
// audit trail and changes no state.
func (w *Workflow) FeedbackOnVersion(ctx context.Context, actor model.Actor, contractID, versionID, comment string) error {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return fmt.Errorf("%w: comment is required", model.ErrValidation)
	}

	v, err := w.GetVersion(ctx, actor, contractID, versionID)
	if err != nil {
		return err
	}

	w.audit.Record(ctx, actor.ID, contractID, model.VersionFeedback{Version: v.Sequence, VersionID: v.ID, Comment: comment})
	return nil
}

// ApproveContract sets the contract status directly, bypassing version
// aggregation.
//
// Deprecated: kept for older clients; use ApproveVersion. The next
// version decision recomputes the status from the versions.
func (w *Workflow) ApproveContract(ctx context.Context, actor model.Actor, contractID string) (*model.Contract, error) {
	return w.legacyDecision(ctx, actor, contractID, func(c *model.Contract) model.AuditDetails {
		c.Status = model.StatusApproved
		c.RejectionReason = ""
		return model.ContractApproved{Status: model.StatusApproved}
	})
}

// RejectContract sets the contract to REJECTED directly, bypassing version
// aggregation.
//
// Deprecated: kept for older clients; use RejectVersion.
func (w *Workflow) RejectContract(ctx context.Context, actor model.Actor, contractID, reason string) (*model.Contract, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		if w.opts.RequireRejectionReason {
			return nil, fmt.Errorf("%w: rejection reason is required", model.ErrValidation)
		}
		reason = model.DefaultRejectionReason
	}
	return w.legacyDecision(ctx, actor, contractID, func(c *model.Contract) model.AuditDetails {
		c.Status = model.StatusRejected
		c.RejectionReason = reason
		return model.ContractRejected{Reason: reason}
	})
}

func (w *Workflow) legacyDecision(ctx context.Context, actor model.Actor, contractID string, apply func(*model.Contract) model.AuditDetails) (*model.Contract, error) {
	if w.opts.DisableLegacyDecisions {
		return nil, fmt.Errorf("%w: whole-contract decisions are disabled, decide on a version", model.ErrConflict)
	}

	c, unlock, err := w.loadForReview(ctx, actor, contractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	details := apply(c)
	if err := w.contracts.Update(ctx, c); err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, c.ID, details)
	logger.Warn(ctx, "legacy contract decision applied", "contract_id", c.ID, "status", c.Status)
	return c, nil
}

// DeleteContract removes a contract with its versions and audit entries and
// returns the removed versions so their files can be cleaned up. The
// CONTRACT_DELETED entry is recorded before the cascade and goes with it.
func (w *Workflow) DeleteContract(ctx context.Context, actor model.Actor, contractID string) ([]*model.Version, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	unlock, err := w.lock(ctx, contractID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	c, err := w.contracts.Get(ctx, contractID)
	if err != nil {
		return nil, err
	}
	versions, err := w.versions.ListByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	w.audit.Record(ctx, actor.ID, contractID, model.ContractDeleted{Title: c.Title, Versions: len(versions)})

	removed, err := w.contracts.Delete(ctx, contractID)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "contract deleted", "contract_id", contractID, "versions", removed)
	return versions, nil
}

// ContractLogs returns the audit trail of a contract, newest first. Only
// admins may read it.
func (w *Workflow) ContractLogs(ctx context.Context, actor model.Actor, contractID string, q store.AuditQuery) ([]*model.AuditLogEntry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return w.audit.ByContract(ctx, contractID, q)
}

// VersionLogs returns the entries of one version plus all feedback of the
// contract, newest first.
func (w *Workflow) VersionLogs(ctx context.Context, actor model.Actor, contractID, versionID string) ([]*model.AuditLogEntry, error) {
	if _, err := w.GetVersion(ctx, actor, contractID, versionID); err != nil {
		return nil, err
	}
	return w.audit.ByVersion(ctx, contractID, versionID)
}
