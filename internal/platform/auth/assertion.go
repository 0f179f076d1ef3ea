package auth

import (
	"crypto"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionTypeJWTBearer is the only accepted client_assertion_type.
const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// B2BExtension is the structured hl7-b2b claim carried inside a client
// assertion's "extensions" object.
type B2BExtension struct {
	OrganizationID   string   `json:"organization_id"`
	PurposeOfUse     []string `json:"purpose_of_use"`
	ConsentReference []string `json:"consent_reference"`
}

// OrganizationSuffix returns the trailing path segment of the extension's
// organization_id URL, which must match the client's bound organization.
func (b *B2BExtension) OrganizationSuffix() string {
	id := strings.TrimSuffix(b.OrganizationID, "/")
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

// DecodeAssertionIssuer parses the assertion without verification and returns
// its issuer. sub and iss must both be present and equal.
func DecodeAssertionIssuer(assertion string) (string, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	unverified, _, err := parser.ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parsing client assertion: %w", err)
	}
	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid assertion claims")
	}
	iss, _ := claims["iss"].(string)
	sub, _ := claims["sub"].(string)
	if iss == "" || sub == "" {
		return "", fmt.Errorf("assertion must carry both iss and sub")
	}
	if iss != sub {
		return "", fmt.Errorf("assertion sub (%q) must equal iss (%q)", sub, iss)
	}
	return iss, nil
}

// VerifyAssertion verifies the assertion signature with the client's
// registered public key. The signing algorithm must be RS256 and the audience
// must intersect the accepted token-endpoint URLs.
func VerifyAssertion(assertion string, key crypto.PublicKey, audiences []string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(assertion, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "RS256" {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verifying assertion: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("assertion signature is invalid")
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, fmt.Errorf("assertion audience: %w", err)
	}
	for _, a := range aud {
		for _, accepted := range audiences {
			if a == accepted {
				return claims, nil
			}
		}
	}
	return nil, fmt.Errorf("assertion aud %v does not match the token endpoint", []string(aud))
}

// ExtractB2B returns the hl7-b2b extension from verified assertion claims,
// or nil when the assertion carries none.
func ExtractB2B(claims jwt.MapClaims) (*B2BExtension, error) {
	extensions, ok := claims["extensions"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	raw, ok := extensions["hl7-b2b"]
	if !ok {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding hl7-b2b extension: %w", err)
	}
	var b2b B2BExtension
	if err := json.Unmarshal(data, &b2b); err != nil {
		return nil, fmt.Errorf("decoding hl7-b2b extension: %w", err)
	}
	return &b2b, nil
}
