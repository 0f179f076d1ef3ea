package consent

import (
	"context"
	"strings"
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// InMemoryRepository keeps consents in a mutex-guarded map.
type InMemoryRepository struct {
	mu       sync.RWMutex
	consents map[string]*Consent
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{consents: make(map[string]*Consent)}
}

func (r *InMemoryRepository) Create(ctx context.Context, c *Consent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.consents[c.ID]; exists {
		return fhir.ErrConflict
	}
	r.consents[c.ID] = c.clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consents[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	return c.clone(), nil
}

func (r *InMemoryRepository) Mutate(ctx context.Context, id string, fn func(c *Consent) error) (*Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.consents[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	working := stored.clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.consents[id] = working
	return working.clone(), nil
}

func (r *InMemoryRepository) Search(ctx context.Context, params SearchParams) ([]*Consent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*Consent
	for _, c := range r.consents {
		if !matches(c, params) {
			continue
		}
		results = append(results, c.clone())
	}
	return results, nil
}

func matches(c *Consent, params SearchParams) bool {
	if params.ID != "" && c.ID != params.ID {
		return false
	}
	if params.Status != "" && c.Status != params.Status {
		return false
	}
	if params.Patient != "" {
		id := c.PatientIdentifier()
		if id == nil || !(id.MatchesToken(params.Patient) || id.Value == params.Patient) {
			return false
		}
	}
	if params.PatientIdentifier != "" {
		id := c.PatientIdentifier()
		if id == nil || !id.MatchesToken(params.PatientIdentifier) {
			return false
		}
	}
	if params.PCMService != "" {
		want := strings.TrimPrefix(params.PCMService, "HealthcareService/")
		if c.ServiceID() != want {
			return false
		}
	}
	return true
}

var _ Repository = (*InMemoryRepository)(nil)
