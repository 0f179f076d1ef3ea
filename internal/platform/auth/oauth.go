package auth

import "fmt"

// OAuthError represents an OAuth 2.0 error response.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *OAuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// OAuth error codes used by the token and introspection endpoints.
const (
	ErrCodeAccessDenied         = "access_denied"
	ErrCodeInvalidClient        = "invalid_client"
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeInvalidGrant         = "invalid_grant"
	ErrCodeInvalidTarget        = "invalid_target"
	ErrCodeUnauthorizedClient   = "unauthorized_client"
	ErrCodeUnsupportedGrantType = "unsupported_grant_type"
)

// Scope strings.
const (
	// ScopeIntrospection marks clients permitted to call /introspect.
	ScopeIntrospection = "introspection"

	// ScopeDefaultCRUDS is granted on plain client-credentials tokens.
	ScopeDefaultCRUDS = "system/*.cruds"

	// ScopeDSData is the fixed consented scope carried by B2B tokens.
	ScopeDSData = "patient/Observation.rs?_security=http://fhir.health.gov.il/cs/hdp-information-buckets|laboratoryTests&date=ge2024-01-01"
)
