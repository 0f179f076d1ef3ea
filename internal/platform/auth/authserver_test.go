package auth

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/pkg/fhirmodels"
)

const (
	dsEndpointAddress    = "https://ds-gw:8080/fhir"
	otherEndpointAddress = "https://ds-b:8080/fhir"
)

type fakeConsentDirectory map[string]*ConsentInfo

func (d fakeConsentDirectory) ConsentInfo(ctx context.Context, id string) (*ConsentInfo, error) {
	info, ok := d[id]
	if !ok {
		return nil, echo.ErrNotFound
	}
	return info, nil
}

type fakeEndpointDirectory map[string][]string

func (d fakeEndpointDirectory) AddressesForOrganization(ctx context.Context, orgID string) ([]string, error) {
	return d[orgID], nil
}

type fakeServiceDirectory map[string][2]string

func (d fakeServiceDirectory) CatalogIdentifier(ctx context.Context, serviceID string) (string, string, error) {
	id, ok := d[serviceID]
	if !ok {
		return "", "", echo.ErrNotFound
	}
	return id[0], id[1], nil
}

type fixture struct {
	e       *echo.Echo
	tokens  *TokenStore
	spCert  *x509.Certificate
	spKey   *rsa.PrivateKey
	pepCert *x509.Certificate
	pepKey  *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	spCert, spKey, _ := newTestCertificate(t, "sp-client")
	pepCert, pepKey, _ := newTestCertificate(t, "pep-client")

	clients := NewClientStore()
	mustRegister(t, clients, &Client{
		ClientID:       "sp-client",
		OrganizationID: "org-sp",
		AllowedScopes:  []string{ScopeDefaultCRUDS},
		Certificate:    spCert,
	})
	mustRegister(t, clients, &Client{
		ClientID:       "pep-client",
		OrganizationID: "org-vaccine-repo",
		AllowedScopes:  []string{ScopeIntrospection},
		Certificate:    pepCert,
	})

	consents := fakeConsentDirectory{
		"consent-1": {
			ID:               "consent-1",
			Status:           fhirmodels.ConsentActive,
			PatientSystem:    fhirmodels.SystemNationalID,
			PatientValue:     "99887766",
			IdentifierSystem: fhirmodels.SystemConsentID,
			IdentifierValue:  "biz-1",
			ServiceID:        "service-1",
			Actors: []ConsentActor{
				{Role: fhirmodels.RoleRequestor, OrganizationID: "org-sp"},
				{Role: fhirmodels.RoleCustodian, OrganizationID: "org-vaccine-repo"},
			},
		},
		"consent-proposed": {
			ID:     "consent-proposed",
			Status: fhirmodels.ConsentProposed,
			Actors: []ConsentActor{
				{Role: fhirmodels.RoleRequestor, OrganizationID: "org-sp"},
			},
		},
		"consent-hospital-b": {
			ID:     "consent-hospital-b",
			Status: fhirmodels.ConsentActive,
			Actors: []ConsentActor{
				{Role: fhirmodels.RoleRequestor, OrganizationID: "org-hospital-b-sp"},
				{Role: fhirmodels.RoleCustodian, OrganizationID: "org-vaccine-repo"},
			},
		},
	}
	endpoints := fakeEndpointDirectory{
		"org-vaccine-repo": {dsEndpointAddress},
		"org-ds-b":         {otherEndpointAddress},
	}
	services := fakeServiceDirectory{
		"service-1": {fhirmodels.SystemCatalogID, "catalog-1"},
	}

	tokens := NewTokenStore()
	srv := NewAuthServer(clients, tokens, consents, endpoints, services,
		"https://pcm.example:8443", []string{testTokenURL}, 30*time.Second, zerolog.Nop())

	e := echo.New()
	srv.RegisterRoutes(e)
	return &fixture{e: e, tokens: tokens, spCert: spCert, spKey: spKey, pepCert: pepCert, pepKey: pepKey}
}

func mustRegister(t *testing.T, store *ClientStore, client *Client) {
	t.Helper()
	if err := store.Register(client); err != nil {
		t.Fatalf("registering client %s: %v", client.ClientID, err)
	}
}

func (f *fixture) postForm(path string, form url.Values, peer *x509.Certificate, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	if peer != nil {
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{peer}}
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func tokenForm(assertion, resource string) url.Values {
	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {AssertionTypeJWTBearer},
		"client_assertion":      {assertion},
	}
	if resource != "" {
		form.Set("resource", resource)
	}
	return form
}

func b2bClaims(clientID, orgID string, consentRefs []string) jwt.MapClaims {
	claims := baseClaims(clientID)
	claims["extensions"] = map[string]interface{}{
		"hl7-b2b": map[string]interface{}{
			"organization_id":   "https://pcm.example/r4/Organization/" + orgID,
			"purpose_of_use":    []string{"TREAT"},
			"consent_reference": consentRefs,
		},
	}
	return claims
}

func decodeOAuthError(t *testing.T, rec *httptest.ResponseRecorder) *OAuthError {
	t.Helper()
	var e OAuthError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decoding error response %q: %v", rec.Body.String(), err)
	}
	return &e
}

func decodeTokenResponse(t *testing.T, rec *httptest.ResponseRecorder) (accessToken, scope string) {
	t.Helper()
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
		Scope       string `json:"scope"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding token response %q: %v", rec.Body.String(), err)
	}
	if body.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", body.TokenType)
	}
	if body.ExpiresIn != 30 {
		t.Errorf("expires_in = %d, want 30", body.ExpiresIn)
	}
	return body.AccessToken, body.Scope
}

func TestTokenB2BHappyPath(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/consent-1"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	token, scope := decodeTokenResponse(t, rec)
	if scope != ScopeDSData {
		t.Errorf("scope = %q, want the consented DS scope", scope)
	}

	stored, ok := f.tokens.Get(token)
	if !ok {
		t.Fatal("issued token not in store")
	}
	if stored.Patient != fhirmodels.SystemNationalID+"|99887766" {
		t.Errorf("patient = %q", stored.Patient)
	}
	if stored.Aud != dsEndpointAddress {
		t.Errorf("aud = %q, want %q", stored.Aud, dsEndpointAddress)
	}
	if stored.OrganizationID != "org-sp" {
		t.Errorf("organization_id = %q", stored.OrganizationID)
	}
	if stored.Cnf.X5tS256 != Thumbprint(f.spCert.Raw) {
		t.Errorf("cnf thumbprint does not match the registered certificate")
	}

	var gotConsent, gotService bool
	for _, entry := range stored.FHIRContext {
		switch entry.Type {
		case "Consent":
			gotConsent = true
			if entry.Identifier.System != fhirmodels.SystemConsentID || entry.Identifier.Value != "biz-1" {
				t.Errorf("consent context identifier = %+v", entry.Identifier)
			}
		case "HealthcareService":
			gotService = true
			if entry.Identifier.System != fhirmodels.SystemCatalogID || entry.Identifier.Value != "catalog-1" {
				t.Errorf("service context identifier = %+v", entry.Identifier)
			}
		}
	}
	if !gotConsent || !gotService {
		t.Errorf("fhirContext = %+v, want Consent and HealthcareService entries", stored.FHIRContext)
	}
}

func TestTokenWithoutB2BGetsDefaultScope(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, baseClaims("sp-client"))
	rec := f.postForm("/token", tokenForm(assertion, "https://pcm.example:8443"), f.spCert, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	_, scope := decodeTokenResponse(t, rec)
	if scope != ScopeDefaultCRUDS {
		t.Errorf("scope = %q, want %q", scope, ScopeDefaultCRUDS)
	}
}

func TestTokenRequiresMTLS(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, baseClaims("sp-client"))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeAccessDenied {
		t.Errorf("error = %q, want access_denied", e.Code)
	}
}

func TestTokenRejectsWrongGrantType(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, baseClaims("sp-client"))
	form := tokenForm(assertion, dsEndpointAddress)
	form.Set("grant_type", "authorization_code")
	rec := f.postForm("/token", form, f.spCert, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeUnsupportedGrantType {
		t.Errorf("error = %q, want unsupported_grant_type", e.Code)
	}
}

func TestTokenRequiresResource(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, baseClaims("sp-client"))
	rec := f.postForm("/token", tokenForm(assertion, ""), f.spCert, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeInvalidRequest {
		t.Errorf("error = %q, want invalid_request", e.Code)
	}
}

func TestTokenRejectsUnknownClient(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, baseClaims("ghost-client"))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeInvalidClient {
		t.Errorf("error = %q, want invalid_client", e.Code)
	}
}

func TestTokenRejectsForeignOrganization(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-hospital-b-sp", []string{"Consent/consent-1"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeUnauthorizedClient {
		t.Errorf("error = %q, want unauthorized_client", e.Code)
	}
}

func TestTokenRejectsMissingConsent(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/no-such"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeInvalidGrant {
		t.Errorf("error = %q, want invalid_grant", e.Code)
	}
}

func TestTokenRejectsInactiveConsent(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/consent-proposed"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeInvalidGrant {
		t.Errorf("error = %q, want invalid_grant", e.Code)
	}
}

func TestTokenRejectsNonParty(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/consent-hospital-b"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.spCert, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	e := decodeOAuthError(t, rec)
	if e.Code != ErrCodeAccessDenied {
		t.Errorf("error = %q, want access_denied", e.Code)
	}
	if e.Description != "Client is not a party to this consent" {
		t.Errorf("description = %q", e.Description)
	}
}

func TestTokenRejectsForeignResource(t *testing.T) {
	f := newFixture(t)

	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/consent-1"}))
	rec := f.postForm("/token", tokenForm(assertion, "https://evil.example/fhir"), f.spCert, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if e := decodeOAuthError(t, rec); e.Code != ErrCodeInvalidTarget {
		t.Errorf("error = %q, want invalid_target", e.Code)
	}
}

func TestTokenPeerCertMismatchIsAdvisory(t *testing.T) {
	f := newFixture(t)

	// Present the PEP's certificate over mTLS while asserting as the SP.
	// The registered certificate stays authoritative; issuance proceeds.
	assertion := signAssertion(t, f.spKey, b2bClaims("sp-client", "org-sp", []string{"Consent/consent-1"}))
	rec := f.postForm("/token", tokenForm(assertion, dsEndpointAddress), f.pepCert, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (mismatch is warn-only), body %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeTokenResponse(t, rec)
	stored, _ := f.tokens.Get(token)
	if stored.Cnf.X5tS256 != Thumbprint(f.spCert.Raw) {
		t.Error("cnf must carry the registered certificate thumbprint")
	}
}

// obtainToken runs the full token flow and returns the opaque token.
func (f *fixture) obtainToken(t *testing.T, key *rsa.PrivateKey, cert *x509.Certificate, claims jwt.MapClaims, resource string) string {
	t.Helper()
	assertion := signAssertion(t, key, claims)
	rec := f.postForm("/token", tokenForm(assertion, resource), cert, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("obtaining token: status = %d, body %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeTokenResponse(t, rec)
	return token
}

type introspectionBody struct {
	Active         bool   `json:"active"`
	Sub            string `json:"sub"`
	ClientID       string `json:"client_id"`
	OrganizationID string `json:"organization_id"`
	Scope          string `json:"scope"`
	Aud            string `json:"aud"`
	Patient        string `json:"patient"`
	Cnf            struct {
		X5tS256 string `json:"x5t#S256"`
	} `json:"cnf"`
}

func (f *fixture) introspect(t *testing.T, target string) (*httptest.ResponseRecorder, *introspectionBody) {
	t.Helper()
	pepToken := f.obtainToken(t, f.pepKey, f.pepCert, baseClaims("pep-client"), "https://pcm.example:8443")
	rec := f.postForm("/introspect", url.Values{"token": {target}}, f.pepCert, pepToken)
	if rec.Code != http.StatusOK {
		return rec, nil
	}
	var body introspectionBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding introspection response: %v", err)
	}
	return rec, &body
}

func TestIntrospectionRoundTrip(t *testing.T) {
	f := newFixture(t)

	spToken := f.obtainToken(t, f.spKey, f.spCert,
		b2bClaims("sp-client", "org-sp", []string{"Consent/consent-1"}), dsEndpointAddress)

	rec, body := f.introspect(t, spToken)
	if body == nil {
		t.Fatalf("introspection status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !body.Active {
		t.Fatal("active = false for a fresh token with matching audience")
	}
	if body.Sub != "sp-client" || body.ClientID != "sp-client" {
		t.Errorf("sub/client_id = %q/%q", body.Sub, body.ClientID)
	}
	if body.Cnf.X5tS256 != Thumbprint(f.spCert.Raw) {
		t.Error("cnf did not round-trip through introspection")
	}
	if body.Patient != fhirmodels.SystemNationalID+"|99887766" {
		t.Errorf("patient = %q", body.Patient)
	}
}

func TestIntrospectionAudienceMismatch(t *testing.T) {
	f := newFixture(t)

	// Token bound to a different resource server than the introspector.
	spToken := f.obtainToken(t, f.spKey, f.spCert, baseClaims("sp-client"), otherEndpointAddress)

	_, body := f.introspect(t, spToken)
	if body == nil || body.Active {
		t.Fatal("expected active=false for an audience the caller does not own")
	}
}

func TestIntrospectionUnknownToken(t *testing.T) {
	f := newFixture(t)

	_, body := f.introspect(t, "not-a-token")
	if body == nil || body.Active {
		t.Fatal("expected active=false for an unknown token")
	}
}

func TestIntrospectionRequiresScope(t *testing.T) {
	f := newFixture(t)

	// The SP client holds no introspection scope.
	spToken := f.obtainToken(t, f.spKey, f.spCert, baseClaims("sp-client"), dsEndpointAddress)
	rec := f.postForm("/introspect", url.Values{"token": {spToken}}, f.spCert, spToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestIntrospectionRequiresBearer(t *testing.T) {
	f := newFixture(t)

	rec := f.postForm("/introspect", url.Values{"token": {"x"}}, f.pepCert, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
