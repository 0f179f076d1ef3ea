package healthcareservice

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a healthcare service. The operator may create either
// variant as given. A non-admin catalog-tagged resource is stored as a
// catalog; anything else a non-admin sends becomes an instance owned by the
// caller, and without an explicit canonical link a paired catalog entry is
// auto-created first so the instance never references a missing canonical.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, hs *HealthcareService) (*HealthcareService, error) {
	if hs.ID == "" {
		hs.ID = uuid.New().String()
	}
	hs.ResourceType = "HealthcareService"

	if caller.IsAdmin || hs.IsCatalog() {
		if hs.IsCatalog() && hs.CatalogIdentifier() == nil {
			hs.Identifier = append(hs.Identifier, generatedCatalogIdentifier())
		}
		if err := s.repo.Create(ctx, hs); err != nil {
			return nil, err
		}
		return hs, nil
	}

	hs.tag(fhirmodels.TagInstance)
	hs.ProvidedBy = &fhir.Reference{Reference: fhir.FormatReference("Organization", caller.OrganizationID)}
	if hs.Active == nil {
		inactive := false
		hs.Active = &inactive
	}

	if hs.CanonicalID() == "" {
		canonical := s.buildCanonical(hs)
		if err := s.repo.Create(ctx, canonical); err != nil {
			return nil, err
		}
		hs.Extension = append(hs.Extension, fhir.Extension{
			URL:            fhirmodels.ExtBasedOnCanonical,
			ValueReference: &fhir.Reference{Reference: fhir.FormatReference("HealthcareService", canonical.ID)},
		})
	} else if _, err := s.repo.GetByID(ctx, hs.CanonicalID()); err != nil {
		return nil, fmt.Errorf("canonical HealthcareService/%s: %w", hs.CanonicalID(), err)
	}

	if err := s.repo.Create(ctx, hs); err != nil {
		return nil, err
	}
	return hs, nil
}

// buildCanonical derives the catalog copy of an instance.
func (s *Service) buildCanonical(instance *HealthcareService) *HealthcareService {
	canonical := instance.clone()
	canonical.ID = uuid.New().String()
	canonical.Meta = &fhir.Meta{}
	canonical.tag(fhirmodels.TagCatalog)
	canonical.ProvidedBy = nil
	canonical.Active = nil
	canonical.Identifier = []fhir.Identifier{generatedCatalogIdentifier()}
	canonical.Extension = nil
	return canonical
}

func generatedCatalogIdentifier() fhir.Identifier {
	return fhir.Identifier{System: fhirmodels.SystemCatalogID, Value: uuid.New().String()}
}

func (s *Service) Get(ctx context.Context, id string) (*HealthcareService, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces a healthcare service. Non-admins may not touch catalog
// entries and keep ownership of their instances.
func (s *Service) Update(ctx context.Context, caller *auth.Caller, id string, incoming *HealthcareService) (*HealthcareService, error) {
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		if stored.IsCatalog() {
			return nil, fmt.Errorf("catalog services are operator-managed: %w", fhir.ErrForbidden)
		}
		if stored.ProvidedBy.ID() != caller.OrganizationID {
			return nil, fmt.Errorf("service %s is not provided by the caller's organization: %w", id, fhir.ErrForbidden)
		}
		incoming.ProvidedBy = stored.ProvidedBy
	}
	incoming.ResourceType = "HealthcareService"
	incoming.ID = id
	if err := s.repo.Update(ctx, incoming); err != nil {
		return nil, err
	}
	return incoming, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams) ([]*HealthcareService, error) {
	return s.repo.Search(ctx, params)
}

// CatalogIdentifier resolves the catalog identifier behind a service id for
// the token's fhirContext: an instance is followed to its canonical, and a
// service without a catalog identifier falls back to its logical id.
func (s *Service) CatalogIdentifier(ctx context.Context, serviceID string) (string, string, error) {
	hs, err := s.repo.GetByID(ctx, serviceID)
	if err != nil {
		return "", "", err
	}
	if canonicalID := hs.CanonicalID(); canonicalID != "" {
		if canonical, err := s.repo.GetByID(ctx, canonicalID); err == nil {
			hs = canonical
		}
	}
	if id := hs.CatalogIdentifier(); id != nil {
		return id.System, id.Value, nil
	}
	return fhirmodels.SystemCatalogID, hs.ID, nil
}
