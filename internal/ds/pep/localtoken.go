package pep

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hdp/pcm/internal/platform/auth"
)

// localTokenTTL bounds the internal token's life the same way PCM bounds the
// external one.
const localTokenTTL = 30 * time.Second

// MintLocalToken converts an active introspection result into the internal
// HS256 token the DS resource server trusts. Identity claims are copied
// through; the patient is the hashed local subject.
func MintLocalToken(secret []byte, rec *auth.TokenRecord, localPatient string) (string, error) {
	iat := time.Unix(rec.IAT, 0)
	claims := jwt.MapClaims{
		"sub":          rec.ClientID,
		"client_id":    rec.ClientID,
		"scope":        rec.Scope,
		"iss":          rec.Iss,
		"aud":          rec.Aud,
		"jti":          uuid.New().String(),
		"iat":          rec.IAT,
		"exp":          iat.Add(localTokenTTL).Unix(),
		"patient":      localPatient,
		"cnf":          rec.Cnf,
	}
	if len(rec.FHIRContext) > 0 {
		claims["fhirContext"] = rec.FHIRContext
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
