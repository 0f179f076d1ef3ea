package verificationresult

import "context"

// SearchParams are the supported VerificationResult search parameters.
type SearchParams struct {
	Target string
	Status string
}

type Repository interface {
	Create(ctx context.Context, v *VerificationResult) error
	GetByID(ctx context.Context, id string) (*VerificationResult, error)
	Search(ctx context.Context, params SearchParams) ([]*VerificationResult, error)
}
