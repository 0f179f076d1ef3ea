package pep

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/auth"
)

// IntrospectionResult is the PCM introspection response.
type IntrospectionResult struct {
	Active bool `json:"active"`
	auth.TokenRecord
}

type smartConfiguration struct {
	TokenEndpoint         string `json:"token_endpoint"`
	IntrospectionEndpoint string `json:"introspection_endpoint"`
}

// PCMClient talks to the PCM authorization server over mTLS: it maintains
// the PEP's own introspection-scoped access token and the discovered
// introspection endpoint, both cached.
type PCMClient struct {
	http                  *http.Client
	tokenURL              string
	fhirBase              string
	fallbackIntrospection string
	clientID              string
	signingKey            *rsa.PrivateKey
	logger                zerolog.Logger

	mu               sync.Mutex
	accessToken      string
	accessTokenExp   time.Time
	introspectionURL string
}

// PCMClientConfig carries the material NewPCMClient needs.
type PCMClientConfig struct {
	TokenURL              string
	FHIRBase              string
	FallbackIntrospection string
	ClientID              string
	KeyFile               string
	CertFile              string
	TrustCAFile           string
	Timeout               time.Duration
}

func NewPCMClient(cfg PCMClientConfig, logger zerolog.Logger) (*PCMClient, error) {
	keyPEM, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading client key: %w", err)
	}
	signingKey, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing client key: %w", err)
	}

	clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading client certificate: %w", err)
	}
	caPEM, err := os.ReadFile(cfg.TrustCAFile)
	if err != nil {
		return nil, fmt.Errorf("reading trust anchor: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("trust anchor %q contains no certificates", cfg.TrustCAFile)
	}

	return &PCMClient{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					Certificates: []tls.Certificate{clientCert},
					RootCAs:      pool,
				},
			},
		},
		tokenURL:              cfg.TokenURL,
		fhirBase:              cfg.FHIRBase,
		fallbackIntrospection: cfg.FallbackIntrospection,
		clientID:              cfg.ClientID,
		signingKey:            signingKey,
		logger:                logger,
	}, nil
}

// authorizationBase is the PCM base the PEP names as its resource indicator:
// the token endpoint URL with the /token path stripped.
func (c *PCMClient) authorizationBase() string {
	return strings.TrimSuffix(c.tokenURL, "/token")
}

func (c *PCMClient) buildAssertion(now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"iss": c.clientID,
		"sub": c.clientID,
		"aud": c.tokenURL,
		"jti": uuid.New().String(),
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.signingKey)
}

// token returns the cached PEP access token, fetching a fresh one when the
// cache is empty or expired.
func (c *PCMClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.accessTokenExp) {
		return c.accessToken, nil
	}

	assertion, err := c.buildAssertion(time.Now())
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}
	form := url.Values{
		"grant_type":            {"client_credentials"},
		"client_assertion_type": {auth.AssertionTypeJWTBearer},
		"client_assertion":      {assertion},
		"resource":              {c.authorizationBase()},
		"scope":                 {auth.ScopeIntrospection},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	c.accessToken = body.AccessToken
	// Renew slightly early so a token never expires mid-introspection.
	c.accessTokenExp = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - 5*time.Second)
	return c.accessToken, nil
}

// invalidate drops the cached access token.
func (c *PCMClient) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// introspectionEndpoint discovers the introspection endpoint through the PCM
// SMART configuration document, caching the result and falling back to the
// configured default when discovery fails.
func (c *PCMClient) introspectionEndpoint(ctx context.Context) string {
	c.mu.Lock()
	if c.introspectionURL != "" {
		defer c.mu.Unlock()
		return c.introspectionURL
	}
	c.mu.Unlock()

	discovered := c.discoverIntrospection(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if discovered != "" {
		c.introspectionURL = discovered
		return c.introspectionURL
	}
	return c.fallbackIntrospection
}

func (c *PCMClient) discoverIntrospection(ctx context.Context) string {
	wellKnown := strings.TrimSuffix(c.fhirBase, "/") + "/.well-known/smart-configuration"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return ""
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", wellKnown).Msg("smart-configuration discovery failed, using fallback")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Str("url", wellKnown).Msg("smart-configuration discovery failed, using fallback")
		return ""
	}
	var cfg smartConfiguration
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return ""
	}
	return cfg.IntrospectionEndpoint
}

// Introspect resolves an opaque token at PCM. A 401 or 403 invalidates the
// PEP's own cached token and the call is retried once with a fresh one.
func (c *PCMClient) Introspect(ctx context.Context, token string) (*IntrospectionResult, error) {
	result, status, err := c.introspectOnce(ctx, token)
	if err == nil && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		c.invalidate()
		result, status, err = c.introspectOnce(ctx, token)
	}
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("introspection returned %d", status)
	}
	return result, nil
}

func (c *PCMClient) introspectOnce(ctx context.Context, token string) (*IntrospectionResult, int, error) {
	own, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}
	endpoint := c.introspectionEndpoint(ctx)
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+own)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling introspection: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}
	var result IntrospectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding introspection response: %w", err)
	}
	return &result, resp.StatusCode, nil
}
