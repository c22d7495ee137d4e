//	@title			Storage Gateway API
//	@version		1.0
//	@description	Object storage gateway for the tutoring dashboard: upload grants, server-side uploads, range-aware streaming and deletion.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bimbel/storagegw/internal/config"
	"github.com/bimbel/storagegw/internal/db"
	"github.com/bimbel/storagegw/internal/objects"
	"github.com/bimbel/storagegw/internal/server"
	"github.com/bimbel/storagegw/internal/storage"

	_ "github.com/bimbel/storagegw/docs/swagger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("storage gateway stopped with error")
	}
}

func run() error {
	cfg := config.Load()
	setupLogger(cfg)

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		// Keep serving; every storage request answers with a configuration error.
		if !errors.Is(err, storage.ErrNotConfigured) {
			err = fmt.Errorf("%w: %w", storage.ErrNotConfigured, err)
		}
		log.Warn().Err(err).Str("driver", cfg.StorageDriver).Msg("object storage unavailable")
		store = storage.Unconfigured{Reason: err}
	} else {
		log.Info().Str("driver", cfg.StorageDriver).Str("bucket", cfg.StorageBucket).Msg("object storage ready")
	}

	var ledger objects.Recorder
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
		ledger = objects.NewRepository(pool)
	} else {
		log.Info().Msg("DATABASE_URL not set, upload ledger disabled")
	}

	handler := server.NewRouter(server.Deps{
		Config: cfg,
		Store:  store,
		Ledger: ledger,
		Logger: log.Logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       cfg.HTTPWriteTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down gracefully...")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsProduction() {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "storage-gateway").Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}
