package auth

import (
	"crypto/x509"
	"fmt"
	"sync"
)

// Client is a registered OAuth client. Registrations are seeded at boot and
// are not mutable through the API.
type Client struct {
	ClientID       string
	OrganizationID string
	AllowedScopes  []string

	// Certificate is the client's registered certificate; its public key
	// verifies client assertions and its thumbprint becomes the token's
	// holder-of-key confirmation.
	Certificate *x509.Certificate
	Thumbprint  string
}

// HasScope reports whether the client was granted the given scope.
func (c *Client) HasScope(scope string) bool {
	for _, s := range c.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// ClientStore is a thread-safe in-memory registry of seeded clients.
type ClientStore struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientStore() *ClientStore {
	return &ClientStore{clients: make(map[string]*Client)}
}

// Register adds a client registration. The certificate thumbprint is
// precomputed so issuance never re-hashes the DER bytes.
func (s *ClientStore) Register(client *Client) error {
	if client.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if client.Certificate == nil {
		return fmt.Errorf("client %q has no certificate", client.ClientID)
	}
	client.Thumbprint = Thumbprint(client.Certificate.Raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.ClientID]; exists {
		return fmt.Errorf("client %q already registered", client.ClientID)
	}
	s.clients[client.ClientID] = client
	return nil
}

// RegisterFromPEM parses a PEM certificate and registers the client.
func (s *ClientStore) RegisterFromPEM(clientID, organizationID string, scopes []string, certPEM []byte) (*Client, error) {
	cert, err := ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", clientID, err)
	}
	client := &Client{
		ClientID:       clientID,
		OrganizationID: organizationID,
		AllowedScopes:  scopes,
		Certificate:    cert,
	}
	if err := s.Register(client); err != nil {
		return nil, err
	}
	return client, nil
}

// Get returns the client registration for a client id.
func (s *ClientStore) Get(clientID string) (*Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	client, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %q not found", clientID)
	}
	return client, nil
}
