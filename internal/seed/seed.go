package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/domain/consent"
	"github.com/hdp/pcm/internal/domain/endpoint"
	"github.com/hdp/pcm/internal/domain/healthcareservice"
	"github.com/hdp/pcm/internal/domain/organization"
	"github.com/hdp/pcm/internal/domain/verificationresult"
	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// ClientSeed registers one OAuth client. CertFile is resolved relative to
// the bootstrap file when not absolute.
type ClientSeed struct {
	ClientID       string   `json:"clientId"`
	OrganizationID string   `json:"organizationId"`
	CertFile       string   `json:"certFile"`
	AllowedScopes  []string `json:"allowedScopes"`
}

// Bootstrap is the seeded state the servers rebuild on every start.
type Bootstrap struct {
	Organizations       []*organization.Organization             `json:"organizations"`
	Endpoints           []*endpoint.Endpoint                     `json:"endpoints"`
	HealthcareServices  []*healthcareservice.HealthcareService   `json:"healthcareServices"`
	Consents            []*consent.Consent                       `json:"consents"`
	VerificationResults []*verificationresult.VerificationResult `json:"verificationResults"`
	Clients             []ClientSeed                             `json:"clients"`

	dir string
}

// Load reads and validates a bootstrap file.
func Load(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bootstrap file: %w", err)
	}
	var b Bootstrap
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing bootstrap file: %w", err)
	}
	b.dir = filepath.Dir(path)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks the referential shape of the bootstrap set.
func (b *Bootstrap) Validate() error {
	orgIDs := make(map[string]bool)
	pcmCount := 0
	for _, org := range b.Organizations {
		if org.ID == "" {
			return fmt.Errorf("organization without id")
		}
		if orgIDs[org.ID] {
			return fmt.Errorf("duplicate organization id %q", org.ID)
		}
		orgIDs[org.ID] = true
		if org.HasType(fhirmodels.OrgTypePCM) {
			pcmCount++
		}
	}
	if pcmCount != 1 {
		return fmt.Errorf("exactly one organization of type %q required, found %d", fhirmodels.OrgTypePCM, pcmCount)
	}

	addresses := make(map[string]bool)
	for _, e := range b.Endpoints {
		if e.Address == "" {
			return fmt.Errorf("endpoint %q without address", e.ID)
		}
		if addresses[e.Address] {
			return fmt.Errorf("duplicate endpoint address %q", e.Address)
		}
		addresses[e.Address] = true
		if orgID := e.ManagingOrgID(); orgID != "" && !orgIDs[orgID] {
			return fmt.Errorf("endpoint %q references unknown organization %q", e.ID, orgID)
		}
	}

	consentStatuses := map[string]bool{
		fhirmodels.ConsentProposed: true,
		fhirmodels.ConsentActive:   true,
		fhirmodels.ConsentRejected: true,
		fhirmodels.ConsentInactive: true,
	}
	for _, c := range b.Consents {
		if c.ID == "" {
			return fmt.Errorf("consent without id")
		}
		if !consentStatuses[c.Status] {
			return fmt.Errorf("consent %q has unknown status %q", c.ID, c.Status)
		}
		if c.PatientIdentifier() == nil || c.PatientIdentifier().Value == "" {
			return fmt.Errorf("consent %q has no patient identifier", c.ID)
		}
		requestors := 0
		for _, a := range c.Actors() {
			if a.ActorRole() == fhirmodels.RoleRequestor {
				requestors++
			}
			if orgID := a.OrganizationID(); orgID != "" && !orgIDs[orgID] {
				return fmt.Errorf("consent %q references unknown organization %q", c.ID, orgID)
			}
		}
		if requestors != 1 {
			return fmt.Errorf("consent %q needs exactly one requesting actor, found %d", c.ID, requestors)
		}
	}

	for _, c := range b.Clients {
		if c.ClientID == "" || c.CertFile == "" {
			return fmt.Errorf("client registration needs clientId and certFile")
		}
		if !orgIDs[c.OrganizationID] {
			return fmt.Errorf("client %q references unknown organization %q", c.ClientID, c.OrganizationID)
		}
	}
	return nil
}

// Summary is what the seed subcommand prints.
func (b *Bootstrap) Summary() string {
	return fmt.Sprintf("%d organizations, %d endpoints, %d healthcare services, %d consents, %d clients",
		len(b.Organizations), len(b.Endpoints), len(b.HealthcareServices), len(b.Consents), len(b.Clients))
}

// Stores collects the repositories the bootstrap set is applied to.
type Stores struct {
	Organizations       organization.Repository
	Endpoints           endpoint.Repository
	HealthcareServices  healthcareservice.Repository
	Consents            consent.Repository
	VerificationResults verificationresult.Repository
	Clients             *auth.ClientStore
}

// Apply writes the bootstrap set into the stores, bypassing the API-level
// authorization rules: the seed is the trust anchor those rules assume.
func (b *Bootstrap) Apply(ctx context.Context, stores Stores, logger zerolog.Logger) error {
	for _, org := range b.Organizations {
		org.ResourceType = "Organization"
		if err := stores.Organizations.Create(ctx, org); err != nil {
			return fmt.Errorf("seeding Organization/%s: %w", org.ID, err)
		}
	}
	for _, e := range b.Endpoints {
		e.ResourceType = "Endpoint"
		if err := stores.Endpoints.Create(ctx, e); err != nil {
			return fmt.Errorf("seeding Endpoint/%s: %w", e.ID, err)
		}
	}
	for _, hs := range b.HealthcareServices {
		hs.ResourceType = "HealthcareService"
		if err := stores.HealthcareServices.Create(ctx, hs); err != nil {
			return fmt.Errorf("seeding HealthcareService/%s: %w", hs.ID, err)
		}
	}
	for _, c := range b.Consents {
		c.ResourceType = "Consent"
		if err := stores.Consents.Create(ctx, c); err != nil {
			return fmt.Errorf("seeding Consent/%s: %w", c.ID, err)
		}
	}
	for _, v := range b.VerificationResults {
		v.ResourceType = "VerificationResult"
		if err := stores.VerificationResults.Create(ctx, v); err != nil {
			return fmt.Errorf("seeding VerificationResult/%s: %w", v.ID, err)
		}
	}
	for _, c := range b.Clients {
		certPath := c.CertFile
		if !filepath.IsAbs(certPath) {
			certPath = filepath.Join(b.dir, certPath)
		}
		pem, err := os.ReadFile(certPath)
		if err != nil {
			return fmt.Errorf("client %q certificate: %w", c.ClientID, err)
		}
		if _, err := stores.Clients.RegisterFromPEM(c.ClientID, c.OrganizationID, c.AllowedScopes, pem); err != nil {
			return err
		}
	}
	logger.Info().Msg("bootstrap applied: " + b.Summary())
	return nil
}
