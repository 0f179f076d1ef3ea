package endpoint

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

var (
	operator = &auth.Caller{ClientID: "pcm-admin", OrganizationID: "org-pcm", IsAdmin: true}
	dsCaller = &auth.Caller{ClientID: "ds-client", OrganizationID: "org-vaccine-repo"}
)

func managedEndpoint(address, orgID string) *Endpoint {
	return &Endpoint{
		Address:              address,
		ManagingOrganization: &fhir.Reference{Reference: fhir.FormatReference("Organization", orgID)},
	}
}

func TestCreateRequiresAddress(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	if _, err := svc.Create(context.Background(), operator, &Endpoint{}); err == nil {
		t.Fatal("expected error without address")
	}
}

func TestCreateDefaultsStatus(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	created, err := svc.Create(context.Background(), dsCaller, managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != "active" {
		t.Errorf("status = %q, want active", created.Status)
	}
	if created.ID == "" {
		t.Error("id not assigned")
	}
}

func TestCreateRejectsForeignOrganization(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	_, err := svc.Create(context.Background(), dsCaller, managedEndpoint("https://ds-b:8080/fhir", "org-hospital-b"))
	if !errors.Is(err, fhir.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	// The operator may register endpoints for any organization.
	if _, err := svc.Create(context.Background(), operator, managedEndpoint("https://ds-b:8080/fhir", "org-hospital-b")); err != nil {
		t.Fatalf("operator create: %v", err)
	}
}

func TestAddressUniqueness(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	ctx := context.Background()
	if _, err := svc.Create(ctx, dsCaller, managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo")); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, dsCaller, managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo"))
	if !errors.Is(err, fhir.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict for a duplicate address", err)
	}
}

func TestUpdateKeepsManagingOrganization(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	ctx := context.Background()
	created, err := svc.Create(ctx, dsCaller, managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	other := &auth.Caller{ClientID: "other", OrganizationID: "org-hospital-b"}
	if _, err := svc.Update(ctx, other, created.ID, managedEndpoint("https://ds-gw:8080/fhir", "org-hospital-b")); !errors.Is(err, fhir.ErrForbidden) {
		t.Errorf("foreign update: err = %v, want ErrForbidden", err)
	}

	updated, err := svc.Update(ctx, dsCaller, created.ID, managedEndpoint("https://ds-gw:8081/fhir", "org-hospital-b"))
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if updated.ManagingOrgID() != "org-vaccine-repo" {
		t.Errorf("managingOrganization = %q after update, want org-vaccine-repo", updated.ManagingOrgID())
	}
	if updated.Address != "https://ds-gw:8081/fhir" {
		t.Errorf("address = %q", updated.Address)
	}
}

func TestAddressesForOrganization(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	ctx := context.Background()
	if _, err := svc.Create(ctx, dsCaller, managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, dsCaller, managedEndpoint("https://ds-gw:8080/fhir-v2", "org-vaccine-repo")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, operator, managedEndpoint("https://ds-b:8080/fhir", "org-hospital-b")); err != nil {
		t.Fatalf("create: %v", err)
	}

	addresses, err := svc.AddressesForOrganization(ctx, "org-vaccine-repo")
	if err != nil {
		t.Fatalf("AddressesForOrganization: %v", err)
	}
	sort.Strings(addresses)
	want := []string{"https://ds-gw:8080/fhir", "https://ds-gw:8080/fhir-v2"}
	if len(addresses) != 2 || addresses[0] != want[0] || addresses[1] != want[1] {
		t.Errorf("addresses = %v, want %v", addresses, want)
	}
}

func TestSearchByThumbprint(t *testing.T) {
	svc := NewService(NewInMemoryRepository())
	ctx := context.Background()

	e := managedEndpoint("https://ds-gw:8080/fhir", "org-vaccine-repo")
	e.Extension = []fhir.Extension{{
		URL: fhirmodels.ExtApplicableCertificates,
		Extension: []fhir.Extension{
			{URL: fhirmodels.ExtThumbprintField, ValueString: "thumb-a"},
		},
	}}
	if _, err := svc.Create(ctx, dsCaller, e); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, operator, managedEndpoint("https://ds-b:8080/fhir", "org-hospital-b")); err != nil {
		t.Fatalf("create: %v", err)
	}

	results, err := svc.Search(ctx, SearchParams{Thumbprint: "thumb-a"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].Address != "https://ds-gw:8080/fhir" {
		t.Errorf("thumbprint search returned %d results", len(results))
	}
	none, err := svc.Search(ctx, SearchParams{Thumbprint: "thumb-z"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown thumbprint matched %d endpoints", len(none))
	}
}
