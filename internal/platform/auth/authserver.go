package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// ---------------------------------------------------------------------------
// Directories
//
// The authorization server reads the resource graph through narrow
// interfaces; the domain services implement them and are wired in main.
// ---------------------------------------------------------------------------

// ConsentActor is one provision.actor entry of a consent.
type ConsentActor struct {
	Role           string
	OrganizationID string
}

// ConsentInfo is the slice of a Consent the issuance pipeline needs.
type ConsentInfo struct {
	ID               string
	Status           string
	PatientSystem    string
	PatientValue     string
	IdentifierSystem string
	IdentifierValue  string
	ServiceID        string
	Actors           []ConsentActor
}

// IsActor reports whether the organization appears as an actor in any role.
func (ci *ConsentInfo) IsActor(orgID string) bool {
	for _, a := range ci.Actors {
		if a.OrganizationID == orgID {
			return true
		}
	}
	return false
}

// CustodianOrgs returns the organization ids of the CST actors.
func (ci *ConsentInfo) CustodianOrgs() []string {
	var orgs []string
	for _, a := range ci.Actors {
		if a.Role == fhirmodels.RoleCustodian {
			orgs = append(orgs, a.OrganizationID)
		}
	}
	return orgs
}

// ConsentDirectory resolves consents referenced by client assertions.
type ConsentDirectory interface {
	ConsentInfo(ctx context.Context, id string) (*ConsentInfo, error)
}

// EndpointDirectory resolves the endpoint addresses an organization manages.
type EndpointDirectory interface {
	AddressesForOrganization(ctx context.Context, orgID string) ([]string, error)
}

// ServiceDirectory resolves the catalog identifier of a healthcare service,
// following the canonical link of an instance when present.
type ServiceDirectory interface {
	CatalogIdentifier(ctx context.Context, serviceID string) (system, value string, err error)
}

// ---------------------------------------------------------------------------
// AuthServer
// ---------------------------------------------------------------------------

// AuthServer implements the token and introspection endpoints.
type AuthServer struct {
	clients   *ClientStore
	tokens    *TokenStore
	consents  ConsentDirectory
	endpoints EndpointDirectory
	services  ServiceDirectory

	issuer    string
	audiences []string
	tokenTTL  time.Duration
	logger    zerolog.Logger
}

func NewAuthServer(clients *ClientStore, tokens *TokenStore, consents ConsentDirectory, endpoints EndpointDirectory, services ServiceDirectory, issuer string, audiences []string, tokenTTL time.Duration, logger zerolog.Logger) *AuthServer {
	return &AuthServer{
		clients:   clients,
		tokens:    tokens,
		consents:  consents,
		endpoints: endpoints,
		services:  services,
		issuer:    issuer,
		audiences: audiences,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// RegisterRoutes registers the OAuth endpoints on the mTLS listener.
func (s *AuthServer) RegisterRoutes(e *echo.Echo, tokenMiddleware ...echo.MiddlewareFunc) {
	e.POST("/token", s.HandleToken, tokenMiddleware...)
	e.POST("/introspect", s.HandleIntrospect)
}

// tokenResponse is the successful token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// HandleToken implements POST /token: client_credentials with a private-key
// JWT assertion, consent/resource/actor binding, and holder-of-key
// confirmation.
func (s *AuthServer) HandleToken(c echo.Context) error {
	ctx := c.Request().Context()

	// mTLS gate. The peer certificate is kept for the advisory thumbprint
	// comparison after the client is identified.
	peer := PeerCertificate(c)
	if peer == nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{
			Code:        ErrCodeAccessDenied,
			Description: "a verified client certificate is required",
		})
	}

	if c.FormValue("grant_type") != "client_credentials" {
		return c.JSON(http.StatusBadRequest, &OAuthError{
			Code:        ErrCodeUnsupportedGrantType,
			Description: "grant_type must be 'client_credentials'",
		})
	}
	assertion := c.FormValue("client_assertion")
	if c.FormValue("client_assertion_type") != AssertionTypeJWTBearer || assertion == "" {
		return c.JSON(http.StatusUnauthorized, &OAuthError{
			Code:        ErrCodeInvalidClient,
			Description: "a jwt-bearer client assertion is required",
		})
	}
	resource := c.FormValue("resource")
	if resource == "" {
		return c.JSON(http.StatusBadRequest, &OAuthError{
			Code:        ErrCodeInvalidRequest,
			Description: "the resource parameter is required",
		})
	}

	clientID, err := DecodeAssertionIssuer(assertion)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: err.Error()})
	}
	client, err := s.clients.Get(clientID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: "unknown client"})
	}
	claims, err := VerifyAssertion(assertion, client.Certificate.PublicKey, s.audiences)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: err.Error()})
	}

	b2b, err := ExtractB2B(claims)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: err.Error()})
	}

	scope := ScopeDefaultCRUDS
	patient := ""
	var fhirContext []FHIRContextEntry

	if b2b != nil {
		if b2b.OrganizationSuffix() != client.OrganizationID {
			return c.JSON(http.StatusUnauthorized, &OAuthError{
				Code:        ErrCodeUnauthorizedClient,
				Description: "organization_id does not match the registered client organization",
			})
		}

		for _, ref := range b2b.ConsentReference {
			consentID := strings.TrimPrefix(ref, "Consent/")
			info, err := s.consents.ConsentInfo(ctx, consentID)
			if err != nil {
				return c.JSON(http.StatusBadRequest, &OAuthError{
					Code:        ErrCodeInvalidGrant,
					Description: "consent " + consentID + " not found",
				})
			}
			if info.Status != fhirmodels.ConsentActive {
				return c.JSON(http.StatusBadRequest, &OAuthError{
					Code:        ErrCodeInvalidGrant,
					Description: "consent " + consentID + " is not active",
				})
			}
			if !info.IsActor(client.OrganizationID) {
				return c.JSON(http.StatusUnauthorized, &OAuthError{
					Code:        ErrCodeAccessDenied,
					Description: "Client is not a party to this consent",
				})
			}
			if !s.resourceOwnedByCustodian(ctx, info, resource) {
				return c.JSON(http.StatusBadRequest, &OAuthError{
					Code:        ErrCodeInvalidTarget,
					Description: "resource is not an endpoint of any consent custodian",
				})
			}

			scope = ScopeDSData
			if info.PatientValue != "" {
				patient = info.PatientSystem + "|" + info.PatientValue
			}
			fhirContext = append(fhirContext, s.consentContext(ctx, info)...)
		}
	}

	// Holder-of-key: the registered certificate is authoritative. A peer
	// certificate that differs is logged, not rejected.
	peerThumbprint := Thumbprint(peer.Raw)
	if peerThumbprint != client.Thumbprint {
		s.logger.Warn().
			Str("client_id", client.ClientID).
			Str("registered_x5t", client.Thumbprint).
			Str("peer_x5t", peerThumbprint).
			Msg("mTLS peer certificate does not match the registered client certificate")
	}

	now := time.Now()
	rec := &TokenRecord{
		Token:          uuid.New().String(),
		Sub:            client.ClientID,
		ClientID:       client.ClientID,
		OrganizationID: client.OrganizationID,
		Scope:          scope,
		Iss:            s.issuer,
		Aud:            resource,
		Patient:        patient,
		FHIRContext:    fhirContext,
		Cnf:            Confirmation{X5tS256: client.Thumbprint},
		IAT:            now.Unix(),
		EXP:            now.Add(s.tokenTTL).Unix(),
	}
	s.tokens.Insert(rec)

	s.logger.Info().
		Str("client_id", client.ClientID).
		Str("organization_id", client.OrganizationID).
		Str("aud", resource).
		Str("scope", scope).
		Msg("access token issued")

	return c.JSON(http.StatusOK, &tokenResponse{
		AccessToken: rec.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Scope:       scope,
	})
}

// resourceOwnedByCustodian checks the requested resource URL against the
// endpoint addresses of the consent's CST actors (exact match).
func (s *AuthServer) resourceOwnedByCustodian(ctx context.Context, info *ConsentInfo, resource string) bool {
	for _, orgID := range info.CustodianOrgs() {
		addresses, err := s.endpoints.AddressesForOrganization(ctx, orgID)
		if err != nil {
			continue
		}
		for _, addr := range addresses {
			if addr == resource {
				return true
			}
		}
	}
	return false
}

// consentContext assembles the fhirContext entries for one consent: the
// consent itself, and the catalog identifier of its bound service.
func (s *AuthServer) consentContext(ctx context.Context, info *ConsentInfo) []FHIRContextEntry {
	entries := []FHIRContextEntry{
		{
			Type:       "Consent",
			Identifier: fhir.Identifier{System: info.IdentifierSystem, Value: info.IdentifierValue},
		},
	}
	if entries[0].Identifier.Value == "" {
		entries[0].Identifier = fhir.Identifier{System: fhirmodels.SystemConsentID, Value: info.ID}
	}

	if info.ServiceID != "" {
		system, value, err := s.services.CatalogIdentifier(ctx, info.ServiceID)
		if err == nil {
			entries = append(entries, FHIRContextEntry{
				Type:       "HealthcareService",
				Identifier: fhir.Identifier{System: system, Value: value},
			})
		}
	}
	return entries
}

// introspectionResponse embeds the token record so an active response carries
// the record verbatim.
type introspectionResponse struct {
	Active bool `json:"active"`
	*TokenRecord
}

// HandleIntrospect implements POST /introspect. The caller must hold a valid
// bearer token, its client must carry the introspection scope, and the target
// token's audience must be one of the caller's own endpoint addresses.
func (s *AuthServer) HandleIntrospect(c echo.Context) error {
	ctx := c.Request().Context()

	if PeerCertificate(c) == nil {
		return c.JSON(http.StatusUnauthorized, &OAuthError{
			Code:        ErrCodeAccessDenied,
			Description: "a verified client certificate is required",
		})
	}

	bearer := BearerToken(c)
	if bearer == "" {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: "bearer token required"})
	}
	callerRec, ok := s.tokens.Get(bearer)
	if !ok {
		return c.JSON(http.StatusUnauthorized, &OAuthError{Code: ErrCodeInvalidClient, Description: "bearer token is not active"})
	}
	caller, err := s.clients.Get(callerRec.ClientID)
	if err != nil || !caller.HasScope(ScopeIntrospection) {
		return echo.NewHTTPError(http.StatusForbidden, "introspection scope required")
	}

	// Audience binding: the introspector address is the caller's own
	// endpoint. Without one there is nothing to bind against.
	addresses, err := s.endpoints.AddressesForOrganization(ctx, caller.OrganizationID)
	if err != nil || len(addresses) == 0 {
		return echo.NewHTTPError(http.StatusForbidden, "caller organization has no endpoint")
	}

	target := c.FormValue("token")
	rec, ok := s.tokens.Get(target)
	if !ok || !contains(addresses, rec.Aud) {
		return c.JSON(http.StatusOK, &introspectionResponse{Active: false})
	}

	s.logger.Info().
		Str("caller", caller.ClientID).
		Str("token_sub", rec.Sub).
		Str("aud", rec.Aud).
		Msg("token introspected")

	return c.JSON(http.StatusOK, &introspectionResponse{Active: true, TokenRecord: rec})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
