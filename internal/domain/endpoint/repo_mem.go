package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// InMemoryRepository keeps endpoints in a mutex-guarded map and enforces the
// address-uniqueness invariant.
type InMemoryRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	byAddress map[string]string // address -> id
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		endpoints: make(map[string]*Endpoint),
		byAddress: make(map[string]string),
	}
}

func (r *InMemoryRepository) Create(ctx context.Context, e *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[e.ID]; exists {
		return fhir.ErrConflict
	}
	if owner, taken := r.byAddress[e.Address]; taken {
		return fmt.Errorf("address %q already used by Endpoint/%s: %w", e.Address, owner, fhir.ErrConflict)
	}
	r.endpoints[e.ID] = e.clone()
	r.byAddress[e.Address] = e.ID
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.endpoints[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	return e.clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, e *Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.endpoints[e.ID]
	if !ok {
		return fhir.ErrNotFound
	}
	if owner, taken := r.byAddress[e.Address]; taken && owner != e.ID {
		return fmt.Errorf("address %q already used by Endpoint/%s: %w", e.Address, owner, fhir.ErrConflict)
	}
	delete(r.byAddress, stored.Address)
	r.endpoints[e.ID] = e.clone()
	r.byAddress[e.Address] = e.ID
	return nil
}

func (r *InMemoryRepository) Search(ctx context.Context, params SearchParams) ([]*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*Endpoint
	for _, e := range r.endpoints {
		if params.Thumbprint != "" && !hasThumbprint(e, params.Thumbprint) {
			continue
		}
		results = append(results, e.clone())
	}
	return results, nil
}

func (r *InMemoryRepository) ByManagingOrg(ctx context.Context, orgID string) ([]*Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*Endpoint
	for _, e := range r.endpoints {
		if e.ManagingOrgID() == orgID {
			results = append(results, e.clone())
		}
	}
	return results, nil
}

func hasThumbprint(e *Endpoint, thumbprint string) bool {
	for _, t := range e.Thumbprints() {
		if t == thumbprint {
			return true
		}
	}
	return false
}

var _ Repository = (*InMemoryRepository)(nil)
