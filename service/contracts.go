package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/store"
	"github.com/google/uuid"
)

// ContractAggregate creates, scopes and deletes contracts.
type ContractAggregate struct {
	repo store.ContractRepository
	now  func() time.Time
}

func NewContractAggregate(repo store.ContractRepository) *ContractAggregate {
	return &ContractAggregate{repo: repo, now: time.Now}
}

// Create stores a new DRAFT contract.
func (a *ContractAggregate) Create(ctx context.Context, title, ownerID, reviewerID string) (*model.Contract, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
	}

	now := a.now()
	c := &model.Contract{
		ID:         uuid.NewString(),
		Title:      title,
		Status:     model.StatusDraft,
		OwnerID:    ownerID,
		ReviewerID: strings.TrimSpace(reviewerID),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := a.repo.CreateContract(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get loads a contract regardless of who asks.
func (a *ContractAggregate) Get(ctx context.Context, id string) (*model.Contract, error) {
	return a.repo.GetContract(ctx, id)
}

// GetVisible loads a contract the actor may see. Contracts outside the
// actor's scope are reported as not found.
func (a *ContractAggregate) GetVisible(ctx context.Context, actor model.Actor, id string) (*model.Contract, error) {
	c, err := a.repo.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(c) {
		return nil, fmt.Errorf("%w: contract %s", model.ErrNotFound, id)
	}
	return c, nil
}

// VisibleTo returns the repository filter selecting exactly the contracts
// actor may see. ok is false when the actor sees nothing.
func VisibleTo(actor model.Actor) (f store.ContractFilter, ok bool) {
	if actor.ID == "" {
		return f, false
	}
	switch actor.Role {
	case model.RoleAdmin:
		return f, true
	case model.RoleReviewer:
		f.ReviewerID = actor.ID
		return f, true
	default:
		return f, false
	}
}

// List returns the contracts visible to actor, newest first.
func (a *ContractAggregate) List(ctx context.Context, actor model.Actor) ([]*model.Contract, error) {
	f, ok := VisibleTo(actor)
	if !ok {
		return []*model.Contract{}, nil
	}
	contracts, err := a.repo.ListContracts(ctx, f)
	if err != nil {
		return nil, err
	}

	// a reviewer never sees a contract assigned to someone else
	visible := contracts[:0]
	for _, c := range contracts {
		if actor.CanSee(c) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Update persists a contract changed outside the version flow.
func (a *ContractAggregate) Update(ctx context.Context, c *model.Contract) error {
	c.UpdatedAt = a.now()
	return a.repo.UpdateContract(ctx, c)
}

// Delete removes the contract with its versions and audit entries.
func (a *ContractAggregate) Delete(ctx context.Context, id string) (int, error) {
	return a.repo.DeleteContract(ctx, id)
}
