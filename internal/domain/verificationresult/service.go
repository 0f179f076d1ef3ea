package verificationresult

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
)

// ParentResolver resolves an organization's partOf parent. Satisfied by the
// organization service.
type ParentResolver interface {
	ParentOf(ctx context.Context, orgID string) (string, error)
}

type Service struct {
	repo Repository
	orgs ParentResolver
}

func NewService(repo Repository, orgs ParentResolver) *Service {
	return &Service{repo: repo, orgs: orgs}
}

// Create stores a verification result. Status defaults to validated; an
// absent validator defaults to the caller's parent organization, or the
// caller itself when it has no parent.
func (s *Service) Create(ctx context.Context, caller *auth.Caller, v *VerificationResult) (*VerificationResult, error) {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.ResourceType = "VerificationResult"
	if v.Status == "" {
		v.Status = "validated"
	}
	if v.StatusDate == nil {
		now := time.Now().UTC()
		v.StatusDate = &now
	}
	if len(v.Validator) == 0 {
		validatorOrg := caller.OrganizationID
		if parent, err := s.orgs.ParentOf(ctx, caller.OrganizationID); err == nil && parent != "" {
			validatorOrg = parent
		}
		v.Validator = []Validator{{
			Organization: fhir.Reference{Reference: fhir.FormatReference("Organization", validatorOrg)},
		}}
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Get(ctx context.Context, id string) (*VerificationResult, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Search(ctx context.Context, params SearchParams) ([]*VerificationResult, error) {
	return s.repo.Search(ctx, params)
}
