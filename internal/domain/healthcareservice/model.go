package healthcareservice

import (
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// HealthcareService is the FHIR HealthcareService resource. A catalog-tagged
// service is the operator-managed template; an instance-tagged one is owned
// by an SP organization and links back to its catalog through the canonical
// extension.
type HealthcareService struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *fhir.Meta             `json:"meta,omitempty"`
	Identifier   []fhir.Identifier      `json:"identifier,omitempty"`
	Active       *bool                  `json:"active,omitempty"`
	ProvidedBy   *fhir.Reference        `json:"providedBy,omitempty"`
	Category     []fhir.CodeableConcept `json:"category,omitempty"`
	Type         []fhir.CodeableConcept `json:"type,omitempty"`
	Name         string                 `json:"name,omitempty"`
	Extension    []fhir.Extension       `json:"extension,omitempty"`
}

func (s *HealthcareService) IsCatalog() bool {
	return s.Meta.HasTag(fhirmodels.SystemMetaTag, fhirmodels.TagCatalog)
}

func (s *HealthcareService) IsInstance() bool {
	return s.Meta.HasTag(fhirmodels.SystemMetaTag, fhirmodels.TagInstance)
}

// CatalogIdentifier returns the identifier under the catalog-id system, or
// nil when the service carries none.
func (s *HealthcareService) CatalogIdentifier() *fhir.Identifier {
	for i := range s.Identifier {
		if s.Identifier[i].System == fhirmodels.SystemCatalogID {
			return &s.Identifier[i]
		}
	}
	return nil
}

// CanonicalID returns the id of the catalog service this instance is based
// on, or "" when the canonical extension is absent.
func (s *HealthcareService) CanonicalID() string {
	ext := fhir.FindExtension(s.Extension, fhirmodels.ExtBasedOnCanonical)
	if ext == nil || ext.ValueReference == nil {
		return ""
	}
	return ext.ValueReference.ID()
}

func (s *HealthcareService) tag(code string) {
	if s.Meta == nil {
		s.Meta = &fhir.Meta{}
	}
	if !s.Meta.HasTag(fhirmodels.SystemMetaTag, code) {
		s.Meta.Tag = append(s.Meta.Tag, fhir.Coding{System: fhirmodels.SystemMetaTag, Code: code})
	}
}

func (s *HealthcareService) clone() *HealthcareService {
	dup := *s
	dup.Identifier = append([]fhir.Identifier(nil), s.Identifier...)
	dup.Category = append([]fhir.CodeableConcept(nil), s.Category...)
	dup.Type = append([]fhir.CodeableConcept(nil), s.Type...)
	dup.Extension = append([]fhir.Extension(nil), s.Extension...)
	if s.Active != nil {
		active := *s.Active
		dup.Active = &active
	}
	if s.ProvidedBy != nil {
		ref := *s.ProvidedBy
		dup.ProvidedBy = &ref
	}
	if s.Meta != nil {
		meta := *s.Meta
		meta.Tag = append([]fhir.Coding(nil), s.Meta.Tag...)
		dup.Meta = &meta
	}
	return &dup
}
