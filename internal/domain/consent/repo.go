package consent

import "context"

// SearchParams are the supported Consent search parameters.
type SearchParams struct {
	ID                string // _id
	Status            string
	Patient           string
	PatientIdentifier string
	PCMService        string
}

type Repository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id string) (*Consent, error)
	// Mutate applies fn to the stored consent under the write lock, so a
	// status transition reads and writes atomically.
	Mutate(ctx context.Context, id string, fn func(c *Consent) error) (*Consent, error)
	Search(ctx context.Context, params SearchParams) ([]*Consent, error)
}
