package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create stores a new organization. Organizations are part of the seeded
// trust fabric, so only the operator may add them through the API.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, org *Organization) (*Organization, error) {
	if !caller.IsAdmin {
		return nil, fmt.Errorf("only the operator may create organizations: %w", fhir.ErrForbidden)
	}
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	org.ResourceType = "Organization"
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces an organization. Non-admin callers may only update their
// own organization, and the stored partOf, type, and a previous deactivation
// survive the update.
func (s *Service) Update(ctx context.Context, caller *auth.Caller, id string, incoming *Organization) (*Organization, error) {
	if !caller.IsAdmin && caller.OrganizationID != id {
		return nil, fmt.Errorf("organization %s is not the caller's own: %w", id, fhir.ErrForbidden)
	}
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	incoming.ResourceType = "Organization"
	incoming.ID = id
	if !caller.IsAdmin {
		incoming.PartOf = stored.PartOf
		incoming.Type = stored.Type
		// Re-activation is an operator decision.
		if !stored.IsActive() && incoming.IsActive() {
			inactive := false
			incoming.Active = &inactive
		}
	}
	if err := s.repo.Update(ctx, incoming); err != nil {
		return nil, err
	}
	return incoming, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams) ([]*Organization, error) {
	return s.repo.Search(ctx, params)
}

// Exists reports whether an organization id resolves.
func (s *Service) Exists(ctx context.Context, orgID string) (bool, error) {
	_, err := s.repo.GetByID(ctx, orgID)
	if errors.Is(err, fhir.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ParentOf returns the id of the organization's partOf parent, "" when the
// organization stands alone.
func (s *Service) ParentOf(ctx context.Context, orgID string) (string, error) {
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.PartOf.ID(), nil
}

// HasType answers the operator check for the request middleware.
func (s *Service) HasType(ctx context.Context, orgID, typeCode string) (bool, error) {
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return false, err
	}
	return org.HasType(typeCode), nil
}
