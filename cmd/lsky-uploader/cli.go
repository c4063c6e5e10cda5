package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Missiu/lsky-uploader/internal/config"
	"github.com/Missiu/lsky-uploader/internal/logging"
	"github.com/Missiu/lsky-uploader/internal/lsky"
	"github.com/Missiu/lsky-uploader/internal/state"
	"github.com/Missiu/lsky-uploader/internal/vault"
)

// app bundles the wired-up dependencies every command needs.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	state    *state.State
	client   *lsky.Client
	store    *vault.Store
	resolver *vault.Resolver
}

// newApp loads configuration, opens the state database, and constructs
// the vault store and API client. The cached token from a previous
// session is loaded into the client, and every refreshed token is
// persisted back.
func newApp() (*app, error) {
	// The --vault flag overrides the environment before config loading,
	// so it goes through the same validation and normalization.
	if vaultDir != "" {
		os.Setenv("VAULT_DIR", vaultDir)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, verbose)

	appState, err := state.Load()
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	store, err := vault.NewStore(cfg.VaultDir)
	if err != nil {
		appState.Close()

		return nil, fmt.Errorf("opening vault: %w", err)
	}

	client := lsky.NewClient(&lsky.AuthConfig{
		ServerURL:  cfg.ServerURL,
		Email:      cfg.Email,
		Password:   cfg.Password,
		Token:      appState.Token(),
		StrategyID: cfg.StrategyID,
	}, nil)

	client.OnTokenRefresh(func(token string) {
		if err := appState.SetToken(token); err != nil {
			logger.Warn("failed to save token", slog.String("error", err.Error()))
		}
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		state:    appState,
		client:   client,
		store:    store,
		resolver: vault.NewResolver(store, cfg.AttachmentFolder),
	}, nil
}

func (a *app) Close() {
	if err := a.state.Close(); err != nil {
		a.logger.Warn("closing state db", slog.String("error", err.Error()))
	}
}

// commandContext creates a context that cancels on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp wires up the app, runs fn, and tears down.
func withApp(fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := commandContext()
	defer stop()

	return fn(ctx, a)
}
