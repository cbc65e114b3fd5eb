// Command aegisd runs the wallet request/consent core as a local
// daemon: a relay-facing endpoint for provider requests and a UI
// surface for listing and completing pending consent events.
package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Aegis-Wallet/aegis/pkg/accounts"
	"github.com/Aegis-Wallet/aegis/pkg/config"
	"github.com/Aegis-Wallet/aegis/pkg/dispatcher"
	"github.com/Aegis-Wallet/aegis/pkg/netcap"
	"github.com/Aegis-Wallet/aegis/pkg/observability"
	"github.com/Aegis-Wallet/aegis/pkg/relay"
	"github.com/Aegis-Wallet/aegis/pkg/signing"
	"github.com/Aegis-Wallet/aegis/pkg/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, accts, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		logger.Error("failed to load settings", "error", err)
		return 1
	}

	stores, db, err := openStores(cfg)
	if err != nil {
		logger.Error("failed to open wallet store", "error", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:  "aegisd",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.OTLPEnabled,
	})
	if err != nil {
		logger.Error("failed to init telemetry", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	signer, err := newSigner()
	if err != nil {
		logger.Error("failed to init signer", "error", err)
		return 1
	}

	repo := accounts.NewMemoryRepository(accts...)
	hub := relay.NewHub(logger)

	disp, err := dispatcher.New(dispatcher.Deps{
		Sessions: stores,
		Queue:    stores,
		Hub:      hub,
		Table:    netcap.New(netcap.NewStatic(settings)),
		Accounts: repo,
		Signer:   signer,
		Limiter:  relay.NewLimiter(10, 20),
		Obs:      obs,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newServer(disp, stores, hub, logger).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("aegisd listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	}
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func openStores(cfg *config.Config) (*store.SQLStores, *sql.DB, error) {
	if cfg.DatabaseURL != "" {
		stores, db, err := store.OpenPostgres(cfg.DatabaseURL)
		return stores, db, err
	}
	stores, db, err := store.OpenSQLite(cfg.SQLitePath)
	return stores, db, err
}

// newSigner builds the in-memory signing service. A fixed seed comes
// from AEGIS_MASTER_SEED (hex); otherwise a fresh random seed is
// generated, which is fine for a demo daemon whose accounts are
// derived at boot.
func newSigner() (*signing.MemorySigner, error) {
	if h := os.Getenv("AEGIS_MASTER_SEED"); h != "" {
		seed, err := hex.DecodeString(h)
		if err != nil {
			return nil, err
		}
		return signing.NewMemorySigner(seed)
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return signing.NewMemorySigner(seed)
}
