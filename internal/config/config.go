package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the settings for the PCM server (authorization server,
// resource server, and the consent UI mutation listener).
type Config struct {
	Env        string `mapstructure:"ENV"`
	APIPort    string `mapstructure:"API_PORT"`
	UIPort     string `mapstructure:"UI_PORT"`
	PublicHost string `mapstructure:"PUBLIC_HOST"`

	TLSCertFile  string `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile   string `mapstructure:"TLS_KEY_FILE"`
	ClientCAFile string `mapstructure:"CLIENT_CA_FILE"`

	BootstrapFile string `mapstructure:"BOOTSTRAP_FILE"`

	TokenTTLSeconds int     `mapstructure:"TOKEN_TTL_SECONDS"`
	RateLimitRPS    float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int     `mapstructure:"RATE_LIMIT_BURST"`
}

// Load reads PCM server configuration from the environment (and an optional
// .env file in the working directory).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("API_PORT", "8443")
	v.SetDefault("UI_PORT", "8081")
	v.SetDefault("PUBLIC_HOST", "localhost:8443")
	v.SetDefault("TOKEN_TTL_SECONDS", 30)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("API_PORT")
	v.BindEnv("UI_PORT")
	v.BindEnv("PUBLIC_HOST")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")
	v.BindEnv("CLIENT_CA_FILE")
	v.BindEnv("BOOTSTRAP_FILE")
	v.BindEnv("TOKEN_TTL_SECONDS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the PCM server has the material it needs to terminate
// mTLS and seed its stores.
func (c *Config) Validate() error {
	if c.TLSCertFile == "" || c.TLSKeyFile == "" {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE are required (the API listener is HTTPS-only)")
	}
	if c.ClientCAFile == "" {
		return fmt.Errorf("CLIENT_CA_FILE is required (client certificates must chain to a trust anchor)")
	}
	if c.BootstrapFile == "" {
		return fmt.Errorf("BOOTSTRAP_FILE is required (all state is rebuilt from the bootstrap set at start)")
	}
	if c.APIPort == c.UIPort {
		return fmt.Errorf("API_PORT and UI_PORT must differ (the UI must not share a host with the API listener)")
	}
	if c.TokenTTLSeconds <= 0 {
		return fmt.Errorf("TOKEN_TTL_SECONDS must be positive, got %d", c.TokenTTLSeconds)
	}
	return nil
}

// TokenEndpointURLs returns the accepted audience values for client
// assertions. Both schemes are accepted to tolerate TLS-terminating proxies
// in front of the token endpoint.
func (c *Config) TokenEndpointURLs() []string {
	host := strings.TrimSuffix(c.PublicHost, "/")
	return []string{
		"https://" + host + "/token",
		"http://" + host + "/token",
	}
}

// FHIRBaseURL returns the public base URL of the PCM resource server.
func (c *Config) FHIRBaseURL() string {
	return "https://" + strings.TrimSuffix(c.PublicHost, "/") + "/r4"
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// DSConfig holds the settings for the Data Source server (PEP and internal
// resource server).
type DSConfig struct {
	Env     string `mapstructure:"ENV"`
	PEPPort string `mapstructure:"PEP_PORT"`
	RSPort  string `mapstructure:"RS_PORT"`

	PCMTokenURL         string `mapstructure:"PCM_TOKEN_URL"`
	PCMFHIRBase         string `mapstructure:"PCM_FHIR_BASE"`
	PCMIntrospectionURL string `mapstructure:"PCM_INTROSPECTION_URL"`

	ClientID       string `mapstructure:"CLIENT_ID"`
	ClientKeyFile  string `mapstructure:"CLIENT_KEY_FILE"`
	ClientCertFile string `mapstructure:"CLIENT_CERT_FILE"`
	TrustCAFile    string `mapstructure:"TRUST_CA_FILE"`

	InternalSecret   string `mapstructure:"INTERNAL_SECRET"`
	ClientCertHeader string `mapstructure:"CLIENT_CERT_HEADER"`
	HTTPTimeoutSecs  int    `mapstructure:"HTTP_TIMEOUT_SECONDS"`
}

// LoadDS reads Data Source server configuration from the environment.
func LoadDS() (*DSConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PEP_PORT", "8085")
	v.SetDefault("RS_PORT", "8086")
	v.SetDefault("CLIENT_CERT_HEADER", "X-Client-Cert")
	v.SetDefault("HTTP_TIMEOUT_SECONDS", 10)

	v.BindEnv("ENV")
	v.BindEnv("PEP_PORT")
	v.BindEnv("RS_PORT")
	v.BindEnv("PCM_TOKEN_URL")
	v.BindEnv("PCM_FHIR_BASE")
	v.BindEnv("PCM_INTROSPECTION_URL")
	v.BindEnv("CLIENT_ID")
	v.BindEnv("CLIENT_KEY_FILE")
	v.BindEnv("CLIENT_CERT_FILE")
	v.BindEnv("TRUST_CA_FILE")
	v.BindEnv("INTERNAL_SECRET")
	v.BindEnv("CLIENT_CERT_HEADER")
	v.BindEnv("HTTP_TIMEOUT_SECONDS")

	_ = v.ReadInConfig()

	cfg := &DSConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal DS config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the PEP can authenticate to PCM and mint internal
// tokens.
func (c *DSConfig) Validate() error {
	if c.PCMTokenURL == "" {
		return fmt.Errorf("PCM_TOKEN_URL is required")
	}
	if c.PCMFHIRBase == "" && c.PCMIntrospectionURL == "" {
		return fmt.Errorf("one of PCM_FHIR_BASE (for discovery) or PCM_INTROSPECTION_URL (fallback) is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("CLIENT_ID is required")
	}
	if c.ClientKeyFile == "" || c.ClientCertFile == "" {
		return fmt.Errorf("CLIENT_KEY_FILE and CLIENT_CERT_FILE are required (the PEP authenticates to PCM with mTLS and a signed assertion)")
	}
	if c.InternalSecret == "" {
		return fmt.Errorf("INTERNAL_SECRET is required (shared with the internal resource server)")
	}
	return nil
}
