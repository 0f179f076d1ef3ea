package endpoint

import (
	"context"
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

// Create stores an endpoint. Non-admin callers must register the endpoint
// under their own organization.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, e *Endpoint) (*Endpoint, error) {
	if e.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if !caller.IsAdmin && e.ManagingOrgID() != caller.OrganizationID {
		return nil, fmt.Errorf("managingOrganization must be the caller's organization: %w", fhir.ErrForbidden)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.ResourceType = "Endpoint"
	if e.Status == "" {
		e.Status = "active"
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Endpoint, error) {
	return s.repo.GetByID(ctx, id)
}

// Update replaces an endpoint. Non-admin callers may only modify endpoints
// their organization manages, and cannot move them to another organization.
func (s *Service) Update(ctx context.Context, caller *auth.Caller, id string, incoming *Endpoint) (*Endpoint, error) {
	stored, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		if stored.ManagingOrgID() != caller.OrganizationID {
			return nil, fmt.Errorf("endpoint %s is not managed by the caller's organization: %w", id, fhir.ErrForbidden)
		}
		incoming.ManagingOrganization = stored.ManagingOrganization
	}
	incoming.ResourceType = "Endpoint"
	incoming.ID = id
	if err := s.repo.Update(ctx, incoming); err != nil {
		return nil, err
	}
	return incoming, nil
}

func (s *Service) Search(ctx context.Context, params SearchParams) ([]*Endpoint, error) {
	return s.repo.Search(ctx, params)
}

// AddressesForOrganization lists the endpoint addresses an organization
// manages; the issuance pipeline matches resource indicators against them.
func (s *Service) AddressesForOrganization(ctx context.Context, orgID string) ([]string, error) {
	endpoints, err := s.repo.ByManagingOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	addresses := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		addresses = append(addresses, e.Address)
	}
	return addresses, nil
}
