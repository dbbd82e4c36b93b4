package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poster-studio/internal/catalog"
	"poster-studio/internal/config"
	"poster-studio/internal/gemini"
	"poster-studio/internal/httpclient"
	"poster-studio/internal/logging"
	"poster-studio/internal/prompt"
	"poster-studio/internal/telemetry"
	"poster-studio/internal/webapi"
	"poster-studio/internal/wizard"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("poster-studio", "", "info")
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.ServiceName, cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry")
	}

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
		Logger:     logger,
	})

	gem := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: httpClient,
		Logger:     logger,
		Models: gemini.Models{
			Proposals: cfg.ProposalModel,
			Analysis:  cfg.AnalysisModel,
			Edit:      cfg.EditModel,
			Standard:  cfg.StandardImageModel,
			Premium:   cfg.PremiumImageModel,
		},
		Prompts: prompt.New(prompt.Options{Language: cfg.CopyLanguage}),
	})

	ctrl, err := wizard.New(wizard.Options{
		Service: gem,
		Catalog: catalog.Default(),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("wizard")
	}

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		logger.Fatal().Err(err).Msg("static files")
	}

	api := webapi.New(webapi.Options{
		Wizard:         ctrl,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout(),
		Static:         staticSub,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", cfg.WebAddr).Msg("web started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server error")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown")
	}
}
