package organization

import "context"

// SearchParams are the supported Organization search parameters; empty
// fields are not applied.
type SearchParams struct {
	Type       string
	Name       string
	Identifier string
}

type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	Update(ctx context.Context, org *Organization) error
	Search(ctx context.Context, params SearchParams) ([]*Organization, error)
}
