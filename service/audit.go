package service

import (
	"context"
	"time"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/pkg/logger"
	"github.com/AnTengye/contracthub/store"
	"github.com/google/uuid"
)

const defaultAuditTimeout = 5 * time.Second

// AuditLog is the append-only trail of accepted mutations.
type AuditLog struct {
	repo    store.AuditRepository
	timeout time.Duration
	now     func() time.Time
}

func NewAuditLog(repo store.AuditRepository) *AuditLog {
	return &AuditLog{
		repo:    repo,
		timeout: defaultAuditTimeout,
		now:     time.Now,
	}
}

// Record appends one entry. It never fails the caller: write errors and
// panics are logged and dropped. The write is detached from ctx
// cancellation so an aborted request still records what it changed.
func (a *AuditLog) Record(ctx context.Context, actorID, contractID string, details model.AuditDetails) {
	entry := model.NewAuditEntry(actorID, contractID, details)
	entry.ID = uuid.NewString()
	entry.CreatedAt = a.now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "audit log write panicked",
				"action", entry.Action,
				"contract_id", contractID,
				"panic", r,
			)
		}
	}()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	if err := a.repo.AppendAudit(writeCtx, entry); err != nil {
		logger.Error(ctx, "failed to write audit log",
			"action", entry.Action,
			"contract_id", contractID,
			"version_id", entry.VersionID,
			"error", err,
		)
		return
	}

	logger.Debug(ctx, "audit log written",
		"action", entry.Action,
		"contract_id", contractID,
		"seq", entry.Seq,
	)
}

// ByContract returns the contract's entries newest first. q.ContractID is
// overwritten with contractID.
func (a *AuditLog) ByContract(ctx context.Context, contractID string, q store.AuditQuery) ([]*model.AuditLogEntry, error) {
	q.ContractID = contractID
	return a.repo.ListAudit(ctx, q)
}

// ByVersion returns the entries of one version plus every feedback entry of
// the contract, newest first.
func (a *AuditLog) ByVersion(ctx context.Context, contractID, versionID string) ([]*model.AuditLogEntry, error) {
	return a.repo.ListAudit(ctx, store.AuditQuery{
		ContractID:      contractID,
		VersionID:       versionID,
		IncludeFeedback: true,
	})
}
