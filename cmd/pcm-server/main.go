package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hdp/pcm/internal/config"
	"github.com/hdp/pcm/internal/domain/consent"
	"github.com/hdp/pcm/internal/domain/endpoint"
	"github.com/hdp/pcm/internal/domain/healthcareservice"
	"github.com/hdp/pcm/internal/domain/organization"
	"github.com/hdp/pcm/internal/domain/verificationresult"
	"github.com/hdp/pcm/internal/platform/auth"
	"github.com/hdp/pcm/internal/platform/fhir"
	"github.com/hdp/pcm/internal/platform/middleware"
	"github.com/hdp/pcm/internal/seed"
	"github.com/hdp/pcm/pkg/fhirmodels"
)

// consentDirectoryAdapter adapts the consent service to the issuance
// pipeline's directory view, avoiding a circular import between the auth and
// consent packages.
type consentDirectoryAdapter struct {
	svc *consent.Service
}

func (a *consentDirectoryAdapter) ConsentInfo(ctx context.Context, id string) (*auth.ConsentInfo, error) {
	c, err := a.svc.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	info := &auth.ConsentInfo{
		ID:        c.ID,
		Status:    c.Status,
		ServiceID: c.ServiceID(),
	}
	if pid := c.PatientIdentifier(); pid != nil {
		info.PatientSystem = pid.System
		info.PatientValue = pid.Value
	}
	if bid := c.BusinessIdentifier(); bid != nil {
		info.IdentifierSystem = bid.System
		info.IdentifierValue = bid.Value
	}
	for _, actor := range c.Actors() {
		info.Actors = append(info.Actors, auth.ConsentActor{
			Role:           actor.ActorRole(),
			OrganizationID: actor.OrganizationID(),
		})
	}
	return info, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "pcm-server",
		Short: "Patient Consent Manager authorization and resource server",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the PCM API and UI listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Validate the bootstrap file and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.BootstrapFile == "" {
				return fmt.Errorf("BOOTSTRAP_FILE is required")
			}
			bootstrap, err := seed.Load(cfg.BootstrapFile)
			if err != nil {
				return err
			}
			fmt.Println("bootstrap ok:", bootstrap.Summary())
			return nil
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Stores and services
	orgRepo := organization.NewInMemoryRepository()
	endpointRepo := endpoint.NewInMemoryRepository()
	serviceRepo := healthcareservice.NewInMemoryRepository()
	consentRepo := consent.NewInMemoryRepository()
	vrRepo := verificationresult.NewInMemoryRepository()
	clients := auth.NewClientStore()
	tokens := auth.NewTokenStore()

	orgSvc := organization.NewService(orgRepo)
	endpointSvc := endpoint.NewService(endpointRepo)
	serviceSvc := healthcareservice.NewService(serviceRepo)
	consentSvc := consent.NewService(consentRepo, orgSvc, logger)
	vrSvc := verificationresult.NewService(vrRepo, orgSvc)

	bootstrap, err := seed.Load(cfg.BootstrapFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load bootstrap file")
	}
	err = bootstrap.Apply(ctx, seed.Stores{
		Organizations:       orgRepo,
		Endpoints:           endpointRepo,
		HealthcareServices:  serviceRepo,
		Consents:            consentRepo,
		VerificationResults: vrRepo,
		Clients:             clients,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to apply bootstrap set")
	}

	// Include expansion over the Consent -> Organization -> Endpoint/parent
	// reference graph.
	includes := fhir.NewIncludeResolver()
	includes.RegisterFetcher("Organization", func(ctx context.Context, id string) (interface{}, error) {
		return orgSvc.Get(ctx, id)
	})
	includes.RegisterFetcher("Endpoint", func(ctx context.Context, id string) (interface{}, error) {
		return endpointSvc.Get(ctx, id)
	})
	includes.RegisterReference("Consent", "actor", "Organization", fhir.ActorReferences())
	includes.RegisterReference("Organization", "endpoint", "Endpoint", fhir.ReferenceList("endpoint"))
	includes.RegisterReference("Organization", "partof", "Organization", fhir.SingleReference("partOf"))

	authServer := auth.NewAuthServer(
		clients,
		tokens,
		&consentDirectoryAdapter{svc: consentSvc},
		endpointSvc,
		serviceSvc,
		"https://"+strings.TrimSuffix(cfg.PublicHost, "/"),
		cfg.TokenEndpointURLs(),
		time.Duration(cfg.TokenTTLSeconds)*time.Second,
		logger,
	)

	// API listener (mTLS)
	api := echo.New()
	api.HideBanner = true
	api.HidePort = true
	api.Use(middleware.Recovery(logger))
	api.Use(middleware.RequestID())
	api.Use(middleware.Logger(logger))

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	authServer.RegisterRoutes(api, rateLimit)

	api.GET("/healthz", healthz)

	// Discovery endpoints stay open; everything else under /r4 needs mTLS
	// plus a bearer token.
	authBase := "https://" + strings.TrimSuffix(cfg.PublicHost, "/")
	api.GET("/r4/.well-known/smart-configuration", auth.SMARTConfigurationHandler(authBase))
	api.GET("/r4/metadata", capabilityHandler(cfg.FHIRBaseURL()))

	r4 := api.Group("/r4", auth.RequireAuth(tokens, orgSvc, fhirmodels.OrgTypePCM))
	organization.NewHandler(orgSvc, includes).RegisterRoutes(r4)
	endpoint.NewHandler(endpointSvc).RegisterRoutes(r4)
	healthcareservice.NewHandler(serviceSvc).RegisterRoutes(r4)
	consent.NewHandler(consentSvc, includes).RegisterRoutes(r4)
	verificationresult.NewHandler(vrSvc).RegisterRoutes(r4)

	tlsConfig, err := serverTLSConfig(cfg.ClientCAFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build TLS config")
	}
	apiServer := &http.Server{
		Addr:      ":" + cfg.APIPort,
		Handler:   api,
		TLSConfig: tlsConfig,
	}

	// UI listener (plain HTTP, approval mutations only)
	ui := echo.New()
	ui.HideBanner = true
	ui.HidePort = true
	ui.Use(middleware.Recovery(logger))
	ui.Use(middleware.RequestID())
	ui.Use(middleware.Logger(logger))
	ui.GET("/healthz", healthz)
	consent.NewUIHandler(consentSvc).RegisterRoutes(ui)

	go func() {
		logger.Info().Str("port", cfg.APIPort).Msg("PCM API listener started (mTLS)")
		if err := apiServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("API listener failed")
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.UIPort).Msg("PCM UI listener started")
		if err := ui.Start(":" + cfg.UIPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("UI listener failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API listener shutdown")
	}
	if err := ui.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("UI listener shutdown")
	}
	return nil
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// serverTLSConfig requires client certificates chaining to the configured
// trust anchor.
func serverTLSConfig(clientCAFile string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(clientCAFile)
	if err != nil {
		return nil, fmt.Errorf("reading client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("client CA %q contains no certificates", clientCAFile)
	}
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		ClientAuth: tls.RequireAndVerifyClientCert,
		ClientCAs:  pool,
	}, nil
}

func capabilityHandler(baseURL string) echo.HandlerFunc {
	statement := fhir.NewCapabilityStatement(baseURL, []fhir.CSResource{
		fhir.ResourceCapability("Organization", []fhir.CSSearchParam{
			{Name: "type", Type: "token"},
			{Name: "name", Type: "string"},
			{Name: "identifier", Type: "token"},
		}, []string{"Organization:endpoint", "Organization:partof"}),
		fhir.ResourceCapability("Endpoint", []fhir.CSSearchParam{
			{Name: "thumbprint", Type: "string"},
		}, nil),
		fhir.ResourceCapability("HealthcareService", []fhir.CSSearchParam{
			{Name: "providedBy", Type: "reference"},
			{Name: "category", Type: "token"},
			{Name: "type", Type: "token"},
			{Name: "identifier", Type: "token"},
			{Name: "name", Type: "string"},
			{Name: "active", Type: "token"},
		}, nil),
		fhir.ResourceCapability("Consent", []fhir.CSSearchParam{
			{Name: "_id", Type: "token"},
			{Name: "status", Type: "token"},
			{Name: "patient", Type: "token"},
			{Name: "patient.identifier", Type: "token"},
			{Name: "pcm-service", Type: "reference"},
		}, []string{"Consent:actor"}),
		fhir.ResourceCapability("VerificationResult", []fhir.CSSearchParam{
			{Name: "target", Type: "reference"},
			{Name: "status", Type: "token"},
		}, nil),
	})
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, statement)
	}
}
