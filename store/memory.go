package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AnTengye/contracthub/model"
	"github.com/AnTengye/contracthub/pkg/logger"
)

// MemoryStore is an in-memory Store.
// Values are copied on the way in and out so callers never share state with
// the store.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[string]*model.Contract
	versions  map[string]*model.Version
	// byContract holds version ids per contract in upload order
	byContract map[string][]string
	audit      []*model.AuditLogEntry
	auditSeq   int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contracts:  make(map[string]*model.Contract),
		versions:   make(map[string]*model.Version),
		byContract: make(map[string][]string),
	}
}

func (s *MemoryStore) CreateContract(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[c.ID]; ok {
		return fmt.Errorf("%w: contract %s already exists", model.ErrConflict, c.ID)
	}
	s.contracts[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) GetContract(_ context.Context, id string) (*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", model.ErrNotFound, id)
	}
	return c.Clone(), nil
}

func (s *MemoryStore) ListContracts(_ context.Context, f ContractFilter) ([]*model.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.Contract, 0)
	for _, c := range s.contracts {
		if f.Matches(c) {
			result = append(result, c.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) UpdateContract(_ context.Context, c *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateContractLocked(c)
}

// updateContractLocked must be called with the write lock held.
func (s *MemoryStore) updateContractLocked(c *model.Contract) error {
	if _, ok := s.contracts[c.ID]; !ok {
		return fmt.Errorf("%w: contract %s", model.ErrNotFound, c.ID)
	}
	s.contracts[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) DeleteContract(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[id]; !ok {
		return 0, fmt.Errorf("%w: contract %s", model.ErrNotFound, id)
	}

	ids := s.byContract[id]
	for _, vid := range ids {
		delete(s.versions, vid)
	}
	delete(s.byContract, id)

	kept := s.audit[:0]
	removed := 0
	for _, e := range s.audit {
		if e.ContractID == id {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	// clear the tail so dropped entries can be collected
	for i := len(kept); i < len(s.audit); i++ {
		s.audit[i] = nil
	}
	s.audit = kept

	delete(s.contracts, id)

	logger.Debug(ctx, "contract removed from memory store",
		"contract_id", id,
		"versions", len(ids),
		"audit_entries", removed,
	)
	return len(ids), nil
}

func (s *MemoryStore) CreateVersion(_ context.Context, v *model.Version, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contracts[v.ContractID]; !ok {
		return fmt.Errorf("%w: contract %s", model.ErrNotFound, v.ContractID)
	}
	if _, ok := s.versions[v.ID]; ok {
		return fmt.Errorf("%w: version %s already exists", model.ErrConflict, v.ID)
	}
	for _, vid := range s.byContract[v.ContractID] {
		if s.versions[vid].Sequence == v.Sequence {
			return fmt.Errorf("%w: contract %s already has version %d", model.ErrConflict, v.ContractID, v.Sequence)
		}
	}
	if contract != nil {
		if err := s.updateContractLocked(contract); err != nil {
			return err
		}
	}

	s.versions[v.ID] = v.Clone()
	s.byContract[v.ContractID] = append(s.byContract[v.ContractID], v.ID)
	return nil
}

func (s *MemoryStore) UpdateVersion(_ context.Context, v *model.Version, contract *model.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.versions[v.ID]
	if !ok || existing.ContractID != v.ContractID {
		return fmt.Errorf("%w: version %s", model.ErrNotFound, v.ID)
	}
	if contract != nil {
		if err := s.updateContractLocked(contract); err != nil {
			return err
		}
	}
	s.versions[v.ID] = v.Clone()
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, id string) (*model.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("%w: version %s", model.ErrNotFound, id)
	}
	return v.Clone(), nil
}

func (s *MemoryStore) ListVersions(_ context.Context, contractID string) ([]*model.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byContract[contractID]
	result := make([]*model.Version, 0, len(ids))
	for _, vid := range ids {
		result = append(result, s.versions[vid].Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Sequence > result[j].Sequence
	})
	return result, nil
}

func (s *MemoryStore) CountVersions(_ context.Context, contractID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byContract[contractID]), nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, e *model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditSeq++
	e.Seq = s.auditSeq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	cp := *e
	s.audit = append(s.audit, &cp)
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, q AuditQuery) ([]*model.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*model.AuditLogEntry, 0)
	// s.audit is in insertion order; walk it backwards for newest first
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if !q.Matches(e) {
			continue
		}
		cp := *e
		result = append(result, &cp)
		if q.Limit > 0 && len(result) >= q.Limit {
			break
		}
	}
	return result, nil
}

// Count returns the number of contracts in the store
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contracts)
}

func (s *MemoryStore) Close() error { return nil }
