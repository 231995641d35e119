// Package store persists contracts, their versions and the audit trail.
//
// Two backends implement Store: MemoryStore for single-process deployments
// and tests, and PostgresStore. Both enforce reference integrity in code:
// versions belong to exactly one contract, (contract, sequence) is unique,
// and deleting a contract removes its versions and audit entries.
package store

import (
	"context"
	"time"

	"github.com/AnTengye/contracthub/model"
)

// ContractFilter narrows ListContracts. Empty fields match everything.
type ContractFilter struct {
	ReviewerID string
	OwnerID    string
	Status     model.Status
}

// Matches reports whether c passes the filter.
func (f ContractFilter) Matches(c *model.Contract) bool {
	if f.ReviewerID != "" && c.ReviewerID != f.ReviewerID {
		return false
	}
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// AuditQuery selects audit entries of one contract.
type AuditQuery struct {
	ContractID string
	// VersionID restricts to entries of that version. With IncludeFeedback,
	// feedback entries of any version are returned as well.
	VersionID         string
	IncludeFeedback   bool
	VersionScopedOnly bool
	Actions           []model.Action
	ActorID           string
	Since             time.Time // inclusive
	Until             time.Time // exclusive
	Limit             int
}

// Matches reports whether e passes the query.
func (q AuditQuery) Matches(e *model.AuditLogEntry) bool {
	if e.ContractID != q.ContractID {
		return false
	}
	if q.VersionID != "" {
		if e.VersionID != q.VersionID && !(q.IncludeFeedback && e.Action == model.ActionVersionFeedback) {
			return false
		}
	}
	if q.VersionScopedOnly && !e.VersionScoped {
		return false
	}
	if len(q.Actions) > 0 {
		found := false
		for _, a := range q.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if !q.Since.IsZero() && e.CreatedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.CreatedAt.Before(q.Until) {
		return false
	}
	return true
}

type ContractRepository interface {
	CreateContract(ctx context.Context, c *model.Contract) error
	// GetContract returns model.ErrNotFound for unknown ids.
	GetContract(ctx context.Context, id string) (*model.Contract, error)
	// ListContracts returns matching contracts, newest first.
	ListContracts(ctx context.Context, f ContractFilter) ([]*model.Contract, error)
	UpdateContract(ctx context.Context, c *model.Contract) error
	// DeleteContract removes the contract, its versions and its audit
	// entries and returns the number of versions removed.
	DeleteContract(ctx context.Context, id string) (int, error)
}

type VersionRepository interface {
	// CreateVersion inserts v and, when contract is non-nil, updates the
	// contract in the same unit of work. A duplicate (contract, sequence)
	// fails with model.ErrConflict.
	CreateVersion(ctx context.Context, v *model.Version, contract *model.Contract) error
	// UpdateVersion updates v and, when contract is non-nil, the contract.
	UpdateVersion(ctx context.Context, v *model.Version, contract *model.Contract) error
	GetVersion(ctx context.Context, id string) (*model.Version, error)
	// ListVersions returns the versions of a contract, highest sequence first.
	ListVersions(ctx context.Context, contractID string) ([]*model.Version, error)
	CountVersions(ctx context.Context, contractID string) (int, error)
}

type AuditRepository interface {
	// AppendAudit stores e and assigns its Seq.
	AppendAudit(ctx context.Context, e *model.AuditLogEntry) error
	// ListAudit returns matching entries, newest first.
	ListAudit(ctx context.Context, q AuditQuery) ([]*model.AuditLogEntry, error)
}

// Store is the full persistence surface used by the workflow.
type Store interface {
	ContractRepository
	VersionRepository
	AuditRepository
	Close() error
}
