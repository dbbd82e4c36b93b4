package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"poster-studio/internal/catalog"
	"poster-studio/internal/config"
	"poster-studio/internal/gemini"
	"poster-studio/internal/handlers"
	"poster-studio/internal/httpclient"
	"poster-studio/internal/logging"
	"poster-studio/internal/mediagroup"
	"poster-studio/internal/prompt"
	"poster-studio/internal/session"
	"poster-studio/internal/telegram"
	"poster-studio/internal/telemetry"
	"poster-studio/internal/wizard"
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateBot()
	}
	if err != nil {
		bootLogger := logging.New("poster-studio", "", "info")
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.ServiceName+"-bot", cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout(),
		Logger:     logger,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error().Err(err).Msg("telegram init failed")
		return
	}

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
		logger.Error().Err(err).Msg("wizard init failed")
		return
	}

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Wizard:   ctrl,
		Drafts:   session.NewStore(session.Options{}),
		OwnerID:  cfg.TelegramOwnerID,
		Logger:   logger,
	})

	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrent))
	onGroupFlush := func(group mediagroup.Group) {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}

		go func() {
			defer sem.Release(1)

			reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
			defer cancel()

			handler.HandleMediaGroup(reqCtx, group)
		}()
	}

	aggregator := mediagroup.New(mediagroup.Options{
		Debounce: cfg.MediaGroupDebounce(),
		OnFlush:  onGroupFlush,
	})
	defer aggregator.Stop()
	handler.SetMediaGroupAggregator(aggregator)

	logger.Info().Str("username", tg.Username()).Int64("owner_id", cfg.TelegramOwnerID).Msg("bot started")

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info().Msg("updates channel closed")
				return
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}

			go func(update telegram.Update) {
				defer sem.Release(1)

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error().Err(err).Msg("handle update failed")
				}
			}(update)
		}
	}
}
