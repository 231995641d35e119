package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/store"
	"github.com/google/uuid"
)

// VersionStore manages the ordered versions of each contract and their
// approval state. Every mutation persists the owning contract in the same
// unit of work, with its status already derived from the new version set.
type VersionStore struct {
	repo store.VersionRepository
	now  func() time.Time
}

func NewVersionStore(repo store.VersionRepository) *VersionStore {
	return &VersionStore{repo: repo, now: time.Now}
}

// Upload adds the next version of c. The contract is reopened (SUBMITTED)
// whatever its previous state.
func (s *VersionStore) Upload(ctx context.Context, c *model.Contract, actorID, fileRef, filename string) (*model.Version, error) {
	count, err := s.repo.CountVersions(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	v := &model.Version{
		ID:         uuid.NewString(),
		ContractID: c.ID,
		Sequence:   count + 1,
		FileRef:    fileRef,
		Filename:   filename,
		UploadedBy: actorID,
		Status:     model.StatusSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	c.Reopen()
	c.UpdatedAt = now

	if err := s.repo.CreateVersion(ctx, v, c); err != nil {
		return nil, err
	}
	return v, nil
}

// Get returns a version of contractID. A version that exists under another
// contract is reported as not found.
func (s *VersionStore) Get(ctx context.Context, contractID, versionID string) (*model.Version, error) {
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.ContractID != contractID {
		return nil, fmt.Errorf("%w: version %s for contract %s", model.ErrNotFound, versionID, contractID)
	}
	return v, nil
}

// Approve approves a submitted version and recomputes c.
func (s *VersionStore) Approve(ctx context.Context, c *model.Contract, versionID, actorID string) (*model.Version, error) {
	return s.decide(ctx, c, versionID, func(v *model.Version, now time.Time) error {
		return v.Approve(actorID, now)
	})
}

// Reject rejects a submitted version and recomputes c. An empty reason is
// stored as model.DefaultRejectionReason.
func (s *VersionStore) Reject(ctx context.Context, c *model.Contract, versionID, reason string) (*model.Version, error) {
	return s.decide(ctx, c, versionID, func(v *model.Version, now time.Time) error {
		return v.Reject(reason, now)
	})
}

func (s *VersionStore) decide(ctx context.Context, c *model.Contract, versionID string, apply func(*model.Version, time.Time) error) (*model.Version, error) {
	v, err := s.Get(ctx, c.ID, versionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := apply(v, now); err != nil {
		return nil, err
	}

	all, err := s.repo.ListVersions(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == v.ID {
			all[i] = v
		}
	}
	c.RecomputeStatus(all)
	c.UpdatedAt = now

	if err := s.repo.UpdateVersion(ctx, v, c); err != nil {
		return nil, err
	}
	return v, nil
}

// ListByContract returns the versions of a contract, newest sequence first.
func (s *VersionStore) ListByContract(ctx context.Context, contractID string) ([]*model.Version, error) {
	return s.repo.ListVersions(ctx, contractID)
}
