package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpollo/site-backend/internal/config"
	"github.com/magpollo/site-backend/internal/logger"
	"github.com/magpollo/site-backend/internal/mailer"
	"github.com/magpollo/site-backend/internal/render"
	"github.com/magpollo/site-backend/internal/server"
	"github.com/magpollo/site-backend/internal/upload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "site-backend").Logger()

	var transport mailer.Transport
	if strings.EqualFold(cfg.App.Env, "development") || strings.EqualFold(cfg.App.Env, "dev") {
		transport = mailer.NewMockTransport(log.With().Str("component", "mock-transport").Logger())
		log.Warn().Msg("development mode: outbound mail is recorded, not sent")
	} else {
		smtpTransport, err := mailer.NewSMTPTransport(cfg.SMTP, log.With().Str("component", "smtp-transport").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialise smtp transport")
		}
		transport = smtpTransport
	}

	pool, err := mailer.NewPool(transport, cfg.Pool, log.With().Str("component", "mail-pool").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise mail pool")
	}

	renderer := render.New(log.With().Str("component", "renderer").Logger())

	limits := upload.Limits{
		MaxFiles:     cfg.Upload.MaxFiles,
		MaxFileBytes: cfg.Upload.MaxFileBytes,
	}

	handlers, err := server.NewHandlers(cfg.Mail, limits, renderer, pool, log.With().Str("component", "handlers").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise handlers")
	}

	router := server.NewRouter(cfg.App.Env, cfg.App.StaticDir, handlers, log.With().Str("component", "http").Logger())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Int("port", cfg.App.Port).Str("relay", cfg.SMTP.Host).Msg("site backend started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server terminated with error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("site backend init failed")
}
