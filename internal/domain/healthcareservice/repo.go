package healthcareservice

import "context"

// SearchParams are the supported HealthcareService search parameters.
type SearchParams struct {
	ProvidedBy string
	Category   string
	Type       string
	Identifier string
	Name       string
	Active     string
}

type Repository interface {
	Create(ctx context.Context, s *HealthcareService) error
	GetByID(ctx context.Context, id string) (*HealthcareService, error)
	Update(ctx context.Context, s *HealthcareService) error
	Search(ctx context.Context, params SearchParams) ([]*HealthcareService, error)
}
