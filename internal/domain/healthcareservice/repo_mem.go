package healthcareservice

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// InMemoryRepository keeps healthcare services in a mutex-guarded map.
type InMemoryRepository struct {
	mu       sync.RWMutex
	services map[string]*HealthcareService
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{services: make(map[string]*HealthcareService)}
}

func (r *InMemoryRepository) Create(ctx context.Context, s *HealthcareService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[s.ID]; exists {
		return fhir.ErrConflict
	}
	r.services[s.ID] = s.clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*HealthcareService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[id]
	if !ok {
		return nil, fhir.ErrNotFound
	}
	return s.clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, s *HealthcareService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[s.ID]; !ok {
		return fhir.ErrNotFound
	}
	r.services[s.ID] = s.clone()
	return nil
}

func (r *InMemoryRepository) Search(ctx context.Context, params SearchParams) ([]*HealthcareService, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var results []*HealthcareService
	for _, s := range r.services {
		if !matches(s, params) {
			continue
		}
		results = append(results, s.clone())
	}
	return results, nil
}

func matches(s *HealthcareService, params SearchParams) bool {
	if params.ProvidedBy != "" {
		want := strings.TrimPrefix(params.ProvidedBy, "Organization/")
		if s.ProvidedBy.ID() != want {
			return false
		}
	}
	if params.Category != "" && !hasConceptCode(s.Category, params.Category) {
		return false
	}
	if params.Type != "" && !hasConceptCode(s.Type, params.Type) {
		return false
	}
	if params.Identifier != "" {
		found := false
		for i := range s.Identifier {
			if s.Identifier[i].MatchesToken(params.Identifier) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if params.Name != "" && !strings.HasPrefix(strings.ToLower(s.Name), strings.ToLower(params.Name)) {
		return false
	}
	if params.Active != "" {
		want, err := strconv.ParseBool(params.Active)
		if err != nil {
			return false
		}
		active := s.Active == nil || *s.Active
		if active != want {
			return false
		}
	}
	return true
}

func hasConceptCode(concepts []fhir.CodeableConcept, token string) bool {
	system, code, hasSystem := "", token, false
	if s, c, ok := strings.Cut(token, "|"); ok {
		system, code, hasSystem = s, c, true
	}
	for i := range concepts {
		for _, coding := range concepts[i].Coding {
			if coding.Code == code && (!hasSystem || coding.System == system) {
				return true
			}
		}
	}
	return false
}

var _ Repository = (*InMemoryRepository)(nil)
