package organization

import (
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// Organization is the FHIR Organization resource as stored and served.
type Organization struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *fhir.Meta             `json:"meta,omitempty"`
	Identifier   []fhir.Identifier      `json:"identifier,omitempty"`
	Active       *bool                  `json:"active,omitempty"`
	Type         []fhir.CodeableConcept `json:"type,omitempty"`
	Name         string                 `json:"name,omitempty"`
	PartOf       *fhir.Reference        `json:"partOf,omitempty"`
	Endpoint     []fhir.Reference       `json:"endpoint,omitempty"`
	Extension    []fhir.Extension       `json:"extension,omitempty"`
}

// HasType reports whether the organization carries the given pcm-org-type
// code.
func (o *Organization) HasType(code string) bool {
	for i := range o.Type {
		if o.Type[i].HasCoding(fhirmodels.SystemOrgType, code) {
			return true
		}
	}
	return false
}

// Thumbprints returns the certificate thumbprints carried by the
// applicable-certificates extension.
func (o *Organization) Thumbprints() []string {
	ext := fhir.FindExtension(o.Extension, fhirmodels.ExtApplicableCertificates)
	if ext == nil {
		return nil
	}
	var prints []string
	for _, nested := range ext.Extension {
		if nested.URL == fhirmodels.ExtThumbprintField && nested.ValueString != "" {
			prints = append(prints, nested.ValueString)
		}
	}
	return prints
}

// IsActive treats an absent active flag as active.
func (o *Organization) IsActive() bool {
	return o.Active == nil || *o.Active
}

func (o *Organization) clone() *Organization {
	dup := *o
	dup.Identifier = append([]fhir.Identifier(nil), o.Identifier...)
	dup.Type = append([]fhir.CodeableConcept(nil), o.Type...)
	dup.Endpoint = append([]fhir.Reference(nil), o.Endpoint...)
	dup.Extension = append([]fhir.Extension(nil), o.Extension...)
	if o.Active != nil {
		active := *o.Active
		dup.Active = &active
	}
	if o.PartOf != nil {
		partOf := *o.PartOf
		dup.PartOf = &partOf
	}
	if o.Meta != nil {
		meta := *o.Meta
		dup.Meta = &meta
	}
	return &dup
}
