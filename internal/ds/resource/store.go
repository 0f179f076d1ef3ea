package resource

import (
	"sync"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// Observation is the minimal FHIR Observation the Data Source serves.
type Observation struct {
	ResourceType      string                 `json:"resourceType"`
	ID                string                 `json:"id,omitempty"`
	Meta              *fhir.Meta             `json:"meta,omitempty"`
	Status            string                 `json:"status,omitempty"`
	Category          []fhir.CodeableConcept `json:"category,omitempty"`
	Code              *fhir.CodeableConcept  `json:"code,omitempty"`
	Subject           *fhir.Reference        `json:"subject,omitempty"`
	EffectiveDateTime string                 `json:"effectiveDateTime,omitempty"`
	ValueString       string                 `json:"valueString,omitempty"`
}

// ObservationStore keys observations by the hashed local patient subject.
type ObservationStore struct {
	mu           sync.RWMutex
	observations map[string][]*Observation
}

func NewObservationStore() *ObservationStore {
	return &ObservationStore{observations: make(map[string][]*Observation)}
}

// Add stores an observation under a local patient subject ("Patient/<hash>").
func (s *ObservationStore) Add(localPatient string, obs *Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs.ResourceType = "Observation"
	if obs.Subject == nil {
		obs.Subject = &fhir.Reference{Reference: localPatient}
	}
	s.observations[localPatient] = append(s.observations[localPatient], obs)
}

// ForPatient lists the observations stored for a local patient subject.
func (s *ObservationStore) ForPatient(localPatient string) []*Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Observation(nil), s.observations[localPatient]...)
}
