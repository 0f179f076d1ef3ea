package resource

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// LocalClaims is what the resource server reads out of the internal token.
type LocalClaims struct {
	Patient string `json:"patient"`
	Scope   string `json:"scope"`
	jwt.RegisteredClaims
}

// ParseLocalToken validates the PEP-minted internal token. Only HS256 with
// the shared secret is accepted; any externally minted bearer fails here.
func ParseLocalToken(secret []byte, token string) (*LocalClaims, error) {
	claims := &LocalClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %s", t.Method.Alg())
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing local token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("local token is invalid")
	}
	if claims.Patient == "" {
		return nil, fmt.Errorf("local token carries no patient")
	}
	return claims, nil
}
