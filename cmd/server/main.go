package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/config"
	apphttp "storefront/internal/http"
	"storefront/internal/obs"
	"storefront/internal/security/password"
	storepkg "storefront/internal/store"
	"storefront/internal/store/memory"
	"storefront/internal/store/postgres"
)

func main() {
	loaded, envErr := config.LoadDotEnv(".env")
	cfg := config.Load()
	logger := obs.NewLogger(os.Stdout, "json", cfg.LogLevel)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Warn("failed to load .env", "error", envErr)
	} else if loaded > 0 {
		logger.Info("loaded .env", "keys", loaded)
	}

	st := openStore(cfg, logger)
	defer st.Close()

	hasher := password.New(0)
	if cfg.SeedFile != "" {
		if err := seedStore(cfg.SeedFile, st, hasher); err != nil {
			logger.Error("seed failed", "file", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		logger.Info("catalog seeded", "file", cfg.SeedFile)
	}

	srv := apphttp.NewServer(cfg, st, hasher, logger)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("storefront API listening", "addr", cfg.ListenAddr, "store", cfg.StoreMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func openStore(cfg config.Config, logger *slog.Logger) storepkg.Store {
	if cfg.StoreMode == "postgres" && cfg.DatabaseURL != "" {
		pgStore, err := postgres.NewStore(cfg.DatabaseURL)
		if err == nil {
			return pgStore
		}
		logger.Warn("postgres store unavailable, falling back to memory store", "error", err)
	}
	return memory.NewStore()
}

func seedStore(path string, st storepkg.Store, hasher *password.Hasher) error {
	seed, err := catalog.LoadSeed(path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return seed.Apply(ctx, st, hasher.Hash)
}
