package endpoint

import (
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// Endpoint is the FHIR Endpoint resource. Its address doubles as the RFC 8707
// resource indicator and the introspection audience.
type Endpoint struct {
	ResourceType         string                 `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Meta                 *fhir.Meta             `json:"meta,omitempty"`
	Identifier           []fhir.Identifier      `json:"identifier,omitempty"`
	Status               string                 `json:"status,omitempty"`
	ConnectionType       *fhir.Coding           `json:"connectionType,omitempty"`
	Name                 string                 `json:"name,omitempty"`
	ManagingOrganization *fhir.Reference        `json:"managingOrganization,omitempty"`
	PayloadType          []fhir.CodeableConcept `json:"payloadType,omitempty"`
	Address              string                 `json:"address,omitempty"`
	Extension            []fhir.Extension       `json:"extension,omitempty"`
}

// ManagingOrgID returns the id portion of managingOrganization.
func (e *Endpoint) ManagingOrgID() string {
	return e.ManagingOrganization.ID()
}

// Thumbprints returns the certificate thumbprints carried by the
// applicable-certificates extension.
func (e *Endpoint) Thumbprints() []string {
	ext := fhir.FindExtension(e.Extension, fhirmodels.ExtApplicableCertificates)
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

func (e *Endpoint) clone() *Endpoint {
	dup := *e
	dup.Identifier = append([]fhir.Identifier(nil), e.Identifier...)
	dup.PayloadType = append([]fhir.CodeableConcept(nil), e.PayloadType...)
	dup.Extension = append([]fhir.Extension(nil), e.Extension...)
	if e.ManagingOrganization != nil {
		ref := *e.ManagingOrganization
		dup.ManagingOrganization = &ref
	}
	if e.ConnectionType != nil {
		ct := *e.ConnectionType
		dup.ConnectionType = &ct
	}
	if e.Meta != nil {
		meta := *e.Meta
		dup.Meta = &meta
	}
	return &dup
}
