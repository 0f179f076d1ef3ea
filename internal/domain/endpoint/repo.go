package endpoint

import "context"

// SearchParams are the supported Endpoint search parameters.
type SearchParams struct {
	Thumbprint string
}

type Repository interface {
	Create(ctx context.Context, e *Endpoint) error
	GetByID(ctx context.Context, id string) (*Endpoint, error)
	Update(ctx context.Context, e *Endpoint) error
	Search(ctx context.Context, params SearchParams) ([]*Endpoint, error)
	ByManagingOrg(ctx context.Context, orgID string) ([]*Endpoint, error)
}
