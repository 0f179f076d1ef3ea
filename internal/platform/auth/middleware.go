package auth

import (
	"context"
	"crypto/x509"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hdp/pcm/internal/platform/fhir"
)

const callerContextKey = "auth_caller"

// Caller is the authenticated identity attached to a request.
type Caller struct {
	ClientID       string
	OrganizationID string
	Scope          string

	// IsAdmin is true when the caller's organization is the platform
	// operator (type pcm).
	IsAdmin bool
}

// OrganizationDirectory answers whether an organization carries a given
// type code. The authorization middleware uses it to recognize the operator.
type OrganizationDirectory interface {
	HasType(ctx context.Context, orgID, typeCode string) (bool, error)
}

// PeerCertificate returns the verified mTLS peer certificate of the request,
// or nil when the connection carried none.
func PeerCertificate(c echo.Context) *x509.Certificate {
	tlsState := c.Request().TLS
	if tlsState == nil || len(tlsState.PeerCertificates) == 0 {
		return nil
	}
	return tlsState.PeerCertificates[0]
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth gates FHIR API routes: the request must arrive over mTLS and
// carry an active bearer token. The resolved Caller is stored on the context.
func RequireAuth(tokens *TokenStore, orgs OrganizationDirectory, pcmTypeCode string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if PeerCertificate(c) == nil {
				return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome("a verified client certificate is required"))
			}
			bearer := BearerToken(c)
			if bearer == "" {
				return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome("bearer token required"))
			}
			rec, ok := tokens.Get(bearer)
			if !ok {
				return c.JSON(http.StatusUnauthorized, fhir.LoginOutcome("bearer token is not active"))
			}

			caller := &Caller{
				ClientID:       rec.ClientID,
				OrganizationID: rec.OrganizationID,
				Scope:          rec.Scope,
			}
			if orgs != nil {
				isAdmin, err := orgs.HasType(c.Request().Context(), rec.OrganizationID, pcmTypeCode)
				if err == nil {
					caller.IsAdmin = isAdmin
				}
			}
			c.Set(callerContextKey, caller)
			return next(c)
		}
	}
}

// CallerFrom returns the authenticated caller attached by RequireAuth.
func CallerFrom(c echo.Context) *Caller {
	caller, _ := c.Get(callerContextKey).(*Caller)
	return caller
}
