package store

import (
	"context"
	"sort"
	"sync"

	"claimreg/internal/claims/models"
	id "claimreg/pkg/domain"
	"claimreg/pkg/platform/sentinel"
)

// InMemory is a process-local claim table. It is safe for concurrent use but
// does not serialize multi-call operations; callers do that.
type InMemory struct {
	mu     sync.RWMutex
	claims map[id.Fingerprint]models.Claim
}

func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[id.Fingerprint]models.Claim)}
}

// Get returns a copy of the stored claim.
func (s *InMemory) Get(_ context.Context, fingerprint id.Fingerprint) (*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	claim, ok := s.claims[fingerprint]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &claim, nil
}

func (s *InMemory) Insert(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.Fingerprint]; ok {
		return sentinel.ErrConflict
	}
	s.claims[claim.Fingerprint] = *claim
	return nil
}

func (s *InMemory) Update(_ context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[claim.Fingerprint]; !ok {
		return sentinel.ErrNotFound
	}
	s.claims[claim.Fingerprint] = *claim
	return nil
}

func (s *InMemory) Delete(_ context.Context, fingerprint id.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[fingerprint]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.claims, fingerprint)
	return nil
}

// MaxSequence returns the highest sequence held by any claim, or zero.
func (s *InMemory) MaxSequence(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var highest uint64
	for _, claim := range s.claims {
		highest = max(highest, claim.Sequence)
	}
	return highest, nil
}

// ListByOwner returns up to limit claims held by owner, ordered by
// fingerprint bytes. A non-positive limit returns all of them.
func (s *InMemory) ListByOwner(_ context.Context, owner id.AccountID, limit int) ([]*models.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Claim
	for _, claim := range s.claims {
		if claim.Owner == owner {
			c := claim
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Snapshot copies the whole table.
func (s *InMemory) Snapshot() map[id.Fingerprint]models.Claim {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.Fingerprint]models.Claim, len(s.claims))
	for k, v := range s.claims {
		out[k] = v
	}
	return out
}
