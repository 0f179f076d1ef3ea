package verificationresult

import (
	"context"
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// InMemoryRepository keeps verification results in a mutex-guarded map.
type InMemoryRepository struct {
	mu      sync.RWMutex
	results map[string]*VerificationResult
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{results: make(map[string]*VerificationResult)}
}

func (r *InMemoryRepository) Create(ctx context.Context, v *VerificationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.results[v.ID]; exists {
		return fhir.ErrConflict
	}
	r.results[v.ID] = v.clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*VerificationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.results[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	return v.clone(), nil
}

func (r *InMemoryRepository) Search(ctx context.Context, params SearchParams) ([]*VerificationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*VerificationResult
	for _, v := range r.results {
		if params.Status != "" && v.Status != params.Status {
			continue
		}
		if params.Target != "" && !hasTarget(v, params.Target) {
			continue
		}
		results = append(results, v.clone())
	}
	return results, nil
}

func hasTarget(v *VerificationResult, ref string) bool {
	for i := range v.Target {
		if v.Target[i].Reference == ref {
			return true
		}
	}
	return false
}

var _ Repository = (*InMemoryRepository)(nil)
