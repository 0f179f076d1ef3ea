package consent

import (
	"time"

	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// Consent is the FHIR Consent resource. The patient is carried as a logical
// identifier reference; the bound healthcare service hangs off the
// pcm-service extension.
type Consent struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *fhir.Meta             `json:"meta,omitempty"`
	Identifier   []fhir.Identifier      `json:"identifier,omitempty"`
	Status       string                 `json:"status,omitempty"`
	Scope        *fhir.CodeableConcept  `json:"scope,omitempty"`
	Category     []fhir.CodeableConcept `json:"category,omitempty"`
	Patient      *fhir.Reference        `json:"patient,omitempty"`
	DateTime     *time.Time             `json:"dateTime,omitempty"`
	Provision    *Provision             `json:"provision,omitempty"`
	Extension    []fhir.Extension       `json:"extension,omitempty"`
}

type Provision struct {
	Period  *fhir.Period     `json:"period,omitempty"`
	Actor   []ProvisionActor `json:"actor,omitempty"`
	Purpose []fhir.Coding    `json:"purpose,omitempty"`
}

type ProvisionActor struct {
	Role      *fhir.CodeableConcept `json:"role,omitempty"`
	Reference *fhir.Reference       `json:"reference,omitempty"`
}

// ActorRole returns the participation-type code of the actor.
func (a *ProvisionActor) ActorRole() string {
	if a.Role == nil {
		return ""
	}
	for _, c := range a.Role.Coding {
		if c.System == fhirmodels.SystemParticipationType {
			return c.Code
		}
	}
	return ""
}

// OrganizationID returns the id of the referenced actor organization.
func (a *ProvisionActor) OrganizationID() string {
	return a.Reference.ID()
}

// Actors returns the provision actors, tolerating a nil provision.
func (c *Consent) Actors() []ProvisionActor {
	if c.Provision == nil {
		return nil
	}
	return c.Provision.Actor
}

// IsActor reports whether the organization appears as an actor in any role.
func (c *Consent) IsActor(orgID string) bool {
	for i := range c.Actors() {
		if c.Provision.Actor[i].OrganizationID() == orgID {
			return true
		}
	}
	return false
}

// RequestorOrgID returns the organization of the IRCP actor, "" if absent.
func (c *Consent) RequestorOrgID() string {
	for i := range c.Actors() {
		if c.Provision.Actor[i].ActorRole() == fhirmodels.RoleRequestor {
			return c.Provision.Actor[i].OrganizationID()
		}
	}
	return ""
}

// CustodianOrgIDs returns the organizations of the CST actors.
func (c *Consent) CustodianOrgIDs() []string {
	var orgs []string
	for i := range c.Actors() {
		if c.Provision.Actor[i].ActorRole() == fhirmodels.RoleCustodian {
			orgs = append(orgs, c.Provision.Actor[i].OrganizationID())
		}
	}
	return orgs
}

// PatientIdentifier returns the patient's logical identifier, nil if unset.
func (c *Consent) PatientIdentifier() *fhir.Identifier {
	if c.Patient == nil {
		return nil
	}
	return c.Patient.Identifier
}

// BusinessIdentifier returns the pcm-consent-id identifier, nil if absent.
func (c *Consent) BusinessIdentifier() *fhir.Identifier {
	for i := range c.Identifier {
		if c.Identifier[i].System == fhirmodels.SystemConsentID {
			return &c.Identifier[i]
		}
	}
	return nil
}

// ServiceID returns the id of the healthcare service bound through the
// pcm-service extension, "" if absent.
func (c *Consent) ServiceID() string {
	ext := fhir.FindExtension(c.Extension, fhirmodels.ExtPCMService)
	if ext == nil || ext.ValueReference == nil {
		return ""
	}
	return ext.ValueReference.ID()
}

func (c *Consent) clone() *Consent {
	dup := *c
	dup.Identifier = append([]fhir.Identifier(nil), c.Identifier...)
	dup.Category = append([]fhir.CodeableConcept(nil), c.Category...)
	dup.Extension = append([]fhir.Extension(nil), c.Extension...)
	if c.Scope != nil {
		scope := *c.Scope
		dup.Scope = &scope
	}
	if c.Patient != nil {
		patient := *c.Patient
		if c.Patient.Identifier != nil {
			id := *c.Patient.Identifier
			patient.Identifier = &id
		}
		dup.Patient = &patient
	}
	if c.DateTime != nil {
		dt := *c.DateTime
		dup.DateTime = &dt
	}
	if c.Meta != nil {
		meta := *c.Meta
		dup.Meta = &meta
	}
	if c.Provision != nil {
		provision := *c.Provision
		provision.Actor = append([]ProvisionActor(nil), c.Provision.Actor...)
		provision.Purpose = append([]fhir.Coding(nil), c.Provision.Purpose...)
		dup.Provision = &provision
	}
	return &dup
}

// CanTransition is the consent state machine for non-admin callers: the UI
// moves proposed to active or rejected, and the requestor may deactivate an
// active consent. The operator bypasses this function entirely.
func CanTransition(from, to string) bool {
	switch from {
	case fhirmodels.ConsentProposed:
		return to == fhirmodels.ConsentActive || to == fhirmodels.ConsentRejected
	case fhirmodels.ConsentActive:
		return to == fhirmodels.ConsentInactive
	default:
		// rejected and inactive are terminal
		return false
	}
}
