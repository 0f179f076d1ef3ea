package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SMARTConfiguration is the discovery document served under
// /.well-known/smart-configuration.
type SMARTConfiguration struct {
	TokenEndpoint                       string   `json:"token_endpoint"`
	IntrospectionEndpoint               string   `json:"introspection_endpoint"`
	GrantTypesSupported                 []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported   []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValues   []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	Capabilities                        []string `json:"capabilities"`
}

// SMARTConfigurationHandler serves the discovery document for the given
// authorization base URL.
func SMARTConfigurationHandler(baseURL string) echo.HandlerFunc {
	doc := &SMARTConfiguration{
		TokenEndpoint:                     baseURL + "/token",
		IntrospectionEndpoint:             baseURL + "/introspect",
		GrantTypesSupported:               []string{"client_credentials"},
		TokenEndpointAuthMethodsSupported: []string{"private_key_jwt"},
		TokenEndpointAuthSigningAlgValues: []string{"RS256"},
		Capabilities:                      []string{"client-confidential-asymmetric"},
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, doc)
	}
}
