package organization

import (
	"context"
	"strings"
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// InMemoryRepository keeps organizations in a mutex-guarded map. All state is
// rebuilt from the bootstrap set at start.
type InMemoryRepository struct {
	mu   sync.RWMutex
	orgs map[string]*Organization
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{orgs: make(map[string]*Organization)}
}

func (r *InMemoryRepository) Create(ctx context.Context, org *Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orgs[org.ID]; exists {
		return fhir.ErrConflict
	}
	r.orgs[org.ID] = org.clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	return org.clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, org *Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orgs[org.ID]; !ok {
		return fhir.ErrNotFound
	}
	r.orgs[org.ID] = org.clone()
	return nil
}

func (r *InMemoryRepository) Search(ctx context.Context, params SearchParams) ([]*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*Organization
	for _, org := range r.orgs {
		if !matches(org, params) {
			continue
		}
		results = append(results, org.clone())
	}
	return results, nil
}

func matches(org *Organization, params SearchParams) bool {
	if params.Type != "" {
		code := params.Type
		if _, v, ok := strings.Cut(params.Type, "|"); ok {
			code = v
		}
		if !org.HasType(code) {
			return false
		}
	}
	if params.Name != "" && !strings.HasPrefix(strings.ToLower(org.Name), strings.ToLower(params.Name)) {
		return false
	}
	if params.Identifier != "" {
		found := false
		for i := range org.Identifier {
			if org.Identifier[i].MatchesToken(params.Identifier) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

var _ Repository = (*InMemoryRepository)(nil)
