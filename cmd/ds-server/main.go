package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hdp/pcm/internal/config"
	"github.com/hdp/pcm/internal/ds/pep"
	"github.com/hdp/pcm/internal/ds/resource"
	"github.com/hdp/pcm/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ds-server",
		Short: "Data Source policy enforcement point and resource server",
	}
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the PEP and resource server listeners",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.LoadDS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	pcmClient, err := pep.NewPCMClient(pep.PCMClientConfig{
		TokenURL:              cfg.PCMTokenURL,
		FHIRBase:              cfg.PCMFHIRBase,
		FallbackIntrospection: cfg.PCMIntrospectionURL,
		ClientID:              cfg.ClientID,
		KeyFile:               cfg.ClientKeyFile,
		CertFile:              cfg.ClientCertFile,
		TrustCAFile:           cfg.TrustCAFile,
		Timeout:               time.Duration(cfg.HTTPTimeoutSecs) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build PCM client")
	}

	secret := []byte(cfg.InternalSecret)

	// PEP listener
	pepEcho := echo.New()
	pepEcho.HideBanner = true
	pepEcho.HidePort = true
	pepEcho.Use(middleware.Recovery(logger))
	pepEcho.Use(middleware.RequestID())
	pepEcho.Use(middleware.Logger(logger))
	pepEcho.GET("/healthz", healthz)
	pep.NewHandler(pcmClient, secret, cfg.ClientCertHeader, logger).RegisterRoutes(pepEcho)

	// Internal resource server listener
	rsEcho := echo.New()
	rsEcho.HideBanner = true
	rsEcho.HidePort = true
	rsEcho.Use(middleware.Recovery(logger))
	rsEcho.Use(middleware.RequestID())
	rsEcho.Use(middleware.Logger(logger))
	rsEcho.GET("/healthz", healthz)
	resource.NewHandler(secret, resource.NewObservationStore(), logger).RegisterRoutes(rsEcho)

	go func() {
		logger.Info().Str("port", cfg.PEPPort).Msg("PEP listener started")
		if err := pepEcho.Start(":" + cfg.PEPPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("PEP listener failed")
		}
	}()
	go func() {
		logger.Info().Str("port", cfg.RSPort).Msg("DS resource server started")
		if err := rsEcho.Start(":" + cfg.RSPort); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("DS resource server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := pepEcho.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("PEP listener shutdown")
	}
	if err := rsEcho.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("DS resource server shutdown")
	}
	return nil
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
