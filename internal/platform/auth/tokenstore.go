package auth

import (
	"sync"
	"time"

	"github.com/hdp/pcm/internal/platform/fhir"
)

// FHIRContextEntry is a downstream-policy hint attached to an access token.
type FHIRContextEntry struct {
	Type       string          `json:"type"`
	Identifier fhir.Identifier `json:"identifier"`
}

// Confirmation is the holder-of-key confirmation claim (RFC 8705).
type Confirmation struct {
	X5tS256 string `json:"x5t#S256"`
}

// TokenRecord is the server-side state behind an opaque access token. Its
// JSON form is the introspection response body (minus "active").
type TokenRecord struct {
	Token          string             `json:"-"`
	Sub            string             `json:"sub"`
	ClientID       string             `json:"client_id"`
	OrganizationID string             `json:"organization_id"`
	Scope          string             `json:"scope"`
	Iss            string             `json:"iss"`
	Aud            string             `json:"aud"`
	Patient        string             `json:"patient,omitempty"`
	FHIRContext    []FHIRContextEntry `json:"fhirContext,omitempty"`
	Cnf            Confirmation       `json:"cnf"`
	IAT            int64              `json:"iat"`
	EXP            int64              `json:"exp"`
}

// TokenStore holds issued opaque tokens in process memory. Expiry is checked
// lazily on lookup; there is no background sweeper and no restart safety.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*TokenRecord
	now    func() time.Time
}

func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*TokenRecord),
		now:    time.Now,
	}
}

// Insert stores a token record, last writer wins on id collision.
func (s *TokenStore) Insert(rec *TokenRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[rec.Token] = rec
}

// Get returns the record for a token. An expired record is deleted on
// observation and reported as absent.
func (s *TokenStore) Get(token string) (*TokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	if rec.EXP < s.now().Unix() {
		delete(s.tokens, token)
		return nil, false
	}
	return rec, true
}

// Delete removes a token record.
func (s *TokenStore) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// Len reports the number of stored records, expired or not.
func (s *TokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
