package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// OrganizationResolver checks an organization's existence and type codes.
// Satisfied by the organization service.
type OrganizationResolver interface {
	Exists(ctx context.Context, orgID string) (bool, error)
	HasType(ctx context.Context, orgID, typeCode string) (bool, error)
}

type Service struct {
	repo   Repository
	orgs   OrganizationResolver
	logger zerolog.Logger
}

func NewService(repo Repository, orgs OrganizationResolver, logger zerolog.Logger) *Service {
	return &Service{repo: repo, orgs: orgs, logger: logger}
}

// Create stores a new consent proposal. The server owns the id, the business
// identifier, the default codings, and the actor list: the caller becomes the
// sole IRCP actor and the status starts at proposed regardless of input.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, c *Consent) (*Consent, error) {
	if c.PatientIdentifier() == nil || c.PatientIdentifier().Value == "" {
		return nil, fmt.Errorf("patient.identifier is required")
	}
	if ok, err := s.orgs.Exists(ctx, caller.OrganizationID); err != nil || !ok {
		return nil, fmt.Errorf("caller organization %s is not known: %w", caller.OrganizationID, fhir.ErrForbidden)
	}

	now := time.Now().UTC()
	c.ResourceType = "Consent"
	c.ID = uuid.New().String()
	c.Status = fhirmodels.ConsentProposed
	c.DateTime = &now
	c.Identifier = append(c.Identifier, fhir.Identifier{
		System: fhirmodels.SystemConsentID,
		Value:  uuid.New().String(),
	})
	if c.Scope == nil {
		c.Scope = &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: "http://terminology.hl7.org/CodeSystem/consentscope",
			Code:   "patient-privacy",
		}}}
	}
	if len(c.Category) == 0 {
		c.Category = []fhir.CodeableConcept{{Coding: []fhir.Coding{{
			System: "http://loinc.org",
			Code:   "59284-0",
		}}}}
	}
	if c.Provision == nil {
		c.Provision = &Provision{}
	}
	c.Provision.Actor = []ProvisionActor{requestorActor(caller.OrganizationID)}
	if len(c.Provision.Purpose) == 0 {
		c.Provision.Purpose = []fhir.Coding{{
			System: "http://terminology.hl7.org/CodeSystem/v3-ActReason",
			Code:   "TREAT",
		}}
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info().Str("consent_id", c.ID).Str("requestor", caller.OrganizationID).Msg("consent proposed")
	return c, nil
}

func requestorActor(orgID string) ProvisionActor {
	return ProvisionActor{
		Role: &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: fhirmodels.SystemParticipationType,
			Code:   fhirmodels.RoleRequestor,
		}}},
		Reference: &fhir.Reference{Reference: fhir.FormatReference("Organization", orgID)},
	}
}

func custodianActor(orgID string) ProvisionActor {
	return ProvisionActor{
		Role: &fhir.CodeableConcept{Coding: []fhir.Coding{{
			System: fhirmodels.SystemParticipationType,
			Code:   fhirmodels.RoleCustodian,
		}}},
		Reference: &fhir.Reference{Reference: fhir.FormatReference("Organization", orgID)},
	}
}

// Get returns a consent to the operator or to an actor organization. Other
// callers get not-found rather than forbidden so existence is not disclosed.
func (s *Service) Get(ctx context.Context, caller *auth.Caller, id string) (*Consent, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin && !c.IsActor(caller.OrganizationID) {
		return nil, fhir.ErrNotFound
	}
	return c, nil
}

// Lookup resolves a consent with no visibility check; used by the token
// issuance pipeline and the approval collaborator.
func (s *Service) Lookup(ctx context.Context, id string) (*Consent, error) {
	return s.repo.GetByID(ctx, id)
}

// Search lists consents visible to the caller: everything for the operator,
// only consents where the caller is an actor otherwise.
func (s *Service) Search(ctx context.Context, caller *auth.Caller, params SearchParams) ([]*Consent, error) {
	consents, err := s.repo.Search(ctx, params)
	if err != nil {
		return nil, err
	}
	if caller.IsAdmin {
		return consents, nil
	}
	visible := consents[:0]
	for _, c := range consents {
		if c.IsActor(caller.OrganizationID) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

// Update replaces a consent. The operator may set any field. Any other
// caller must be the IRCP actor, and the only accepted change is the
// transition of an active consent to inactive with everything else intact.
func (s *Service) Update(ctx context.Context, caller *auth.Caller, id string, incoming *Consent) (*Consent, error) {
	incoming.ResourceType = "Consent"
	incoming.ID = id

	if caller.IsAdmin {
		return s.repo.Mutate(ctx, id, func(stored *Consent) error {
			*stored = *incoming.clone()
			return nil
		})
	}

	return s.repo.Mutate(ctx, id, func(stored *Consent) error {
		if stored.RequestorOrgID() != caller.OrganizationID {
			return fmt.Errorf("only the requesting organization may update this consent: %w", fhir.ErrForbidden)
		}
		if incoming.Status != fhirmodels.ConsentInactive || !CanTransition(stored.Status, fhirmodels.ConsentInactive) {
			return fmt.Errorf("the only permitted transition is to inactive: %w", fhir.ErrForbidden)
		}
		if !equalExceptStatus(stored, incoming) {
			return fmt.Errorf("only the status field may change: %w", fhir.ErrForbidden)
		}
		stored.Status = fhirmodels.ConsentInactive
		s.logger.Info().Str("consent_id", id).Str("by", caller.OrganizationID).Msg("consent deactivated")
		return nil
	})
}

// equalExceptStatus compares the incoming consent to storage with the status
// normalized away.
func equalExceptStatus(stored, incoming *Consent) bool {
	a := stored.clone()
	b := incoming.clone()
	a.Status = ""
	b.Status = ""
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// Approve is the approval collaborator's transition: proposed to active,
// adding one CST actor per custodian organization. Every custodian must be a
// Data Source organization.
func (s *Service) Approve(ctx context.Context, id string, custodianOrgIDs []string) (*Consent, error) {
	if len(custodianOrgIDs) == 0 {
		return nil, fmt.Errorf("at least one custodian organization is required")
	}
	for _, orgID := range custodianOrgIDs {
		isSource, err := s.orgs.HasType(ctx, orgID, fhirmodels.OrgTypeSource)
		if err != nil {
			return nil, fmt.Errorf("custodian organization %s: %w", orgID, err)
		}
		if !isSource {
			return nil, fmt.Errorf("custodian organization %s is not a data source", orgID)
		}
	}

	return s.repo.Mutate(ctx, id, func(stored *Consent) error {
		if !CanTransition(stored.Status, fhirmodels.ConsentActive) {
			return fmt.Errorf("consent %s cannot move from %s to active: %w", id, stored.Status, fhir.ErrConflict)
		}
		stored.Status = fhirmodels.ConsentActive
		// Seeded or admin-written consents may lack a provision.
		if stored.Provision == nil {
			stored.Provision = &Provision{}
		}
		for _, orgID := range custodianOrgIDs {
			stored.Provision.Actor = append(stored.Provision.Actor, custodianActor(orgID))
		}
		s.logger.Info().Str("consent_id", id).Strs("custodians", custodianOrgIDs).Msg("consent approved")
		return nil
	})
}

// Reject is the approval collaborator's terminal denial: proposed to rejected.
func (s *Service) Reject(ctx context.Context, id string) (*Consent, error) {
	return s.repo.Mutate(ctx, id, func(stored *Consent) error {
		if !CanTransition(stored.Status, fhirmodels.ConsentRejected) {
			return fmt.Errorf("consent %s cannot move from %s to rejected: %w", id, stored.Status, fhir.ErrConflict)
		}
		stored.Status = fhirmodels.ConsentRejected
		s.logger.Info().Str("consent_id", id).Msg("consent rejected")
		return nil
	})
}
