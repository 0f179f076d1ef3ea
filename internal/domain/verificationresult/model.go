package verificationresult

import (
	"time"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// VerificationResult records an attestation over platform resources.
type VerificationResult struct {
	ResourceType string           `json:"resourceType"`
	ID           string           `json:"id,omitempty"`
	Meta         *fhir.Meta       `json:"meta,omitempty"`
	Target       []fhir.Reference `json:"target,omitempty"`
	Status       string           `json:"status,omitempty"`
	StatusDate   *time.Time       `json:"statusDate,omitempty"`
	Validator    []Validator      `json:"validator,omitempty"`
}

type Validator struct {
	Organization fhir.Reference `json:"organization"`
}

func (v *VerificationResult) clone() *VerificationResult {
	dup := *v
	dup.Target = append([]fhir.Reference(nil), v.Target...)
	dup.Validator = append([]Validator(nil), v.Validator...)
	if v.StatusDate != nil {
		sd := *v.StatusDate
		dup.StatusDate = &sd
	}
	if v.Meta != nil {
		meta := *v.Meta
		dup.Meta = &meta
	}
	return &dup
}
