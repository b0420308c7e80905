package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pysugar/cloud-nexus/internal/activity"
	"github.com/pysugar/cloud-nexus/internal/api"
	"github.com/pysugar/cloud-nexus/internal/auth/token"
	"github.com/pysugar/cloud-nexus/internal/config"
	"github.com/pysugar/cloud-nexus/internal/db"
	"github.com/pysugar/cloud-nexus/internal/gateway"
	"github.com/pysugar/cloud-nexus/internal/logging"
	"github.com/pysugar/cloud-nexus/internal/preview"
	"github.com/pysugar/cloud-nexus/internal/provider"
	"github.com/pysugar/cloud-nexus/internal/provider/drive"
	"github.com/pysugar/cloud-nexus/internal/provider/dropbox"
	"github.com/pysugar/cloud-nexus/internal/provider/graph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides config)")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			database, err := db.InitDB(cfg.DBPath, cfg.VerboseSQL)
			if err != nil {
				return err
			}
			closeDB(database)
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready at %s\n", cfg.DBPath)
			return nil
		},
	}
}

func newPurgeCmd() *cobra.Command {
	var retention time.Duration
	cmd := &cobra.Command{
		Use:   "purge-activity",
		Short: "Delete activity entries older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if retention <= 0 {
				retention = cfg.ActivityRetention
			}
			database, err := db.InitDB(cfg.DBPath, cfg.VerboseSQL)
			if err != nil {
				return err
			}
			defer closeDB(database)

			n, err := activity.NewMonitor(db.NewActivityStore(database), nil).Purge(cmd.Context(), retention)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d activity entries older than %s\n", n, retention)
			return nil
		},
	}
	cmd.Flags().DurationVar(&retention, "older-than", 0, "retention window (default: activity_retention from config)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	database, err := db.InitDB(cfg.DBPath, cfg.VerboseSQL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(database)

	adapters := buildAdapters(cfg, logger)
	if len(adapters) == 0 {
		logger.Warn("No provider is configured; set client credentials in the config file or CLOUDNEXUS_<PROVIDER>_CLIENT_ID")
	}
	registry := provider.NewRegistry(adapters...)

	accounts := db.NewAccountStore(database)
	files := db.NewFileStore(database)
	tokens := token.NewManager(accounts, registry, logger)
	monitor := activity.NewMonitor(db.NewActivityStore(database), logger)
	if n, err := monitor.Purge(ctx, cfg.ActivityRetention); err != nil {
		logger.Warn("Failed to purge old activity", zap.Error(err))
	} else if n > 0 {
		logger.Info("Purged old activity", zap.Int64("deleted", n))
	}

	g := gateway.New(gateway.Deps{
		Accounts: accounts,
		Files:    files,
		Activity: monitor,
		Registry: registry,
		Tokens:   tokens,
		Previews: preview.NewResolver(tokens, registry, files, logger),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(api.Options{Gateway: g, Logger: logger, APIKey: cfg.APIKey}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Cloud nexus listening", zap.String("addr", cfg.ListenAddr), zap.String("config", cfg.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildAdapters(cfg *config.Config, logger *zap.Logger) []provider.Adapter {
	var adapters []provider.Adapter
	for _, t := range provider.Types {
		p := cfg.Providers[t]
		if !p.Configured() {
			continue
		}
		client := provider.NewHTTPClient(p.ClientOptions())
		switch t {
		case provider.Drive:
			adapters = append(adapters, drive.New(drive.Options{
				ClientID: p.ClientID, ClientSecret: p.ClientSecret, RedirectURL: p.RedirectURL,
				BaseURL: p.APIBaseURL, TokenURL: p.TokenURL, HTTPClient: client,
			}))
		case provider.Graph:
			adapters = append(adapters, graph.New(graph.Options{
				ClientID: p.ClientID, ClientSecret: p.ClientSecret, RedirectURL: p.RedirectURL,
				Tenant: p.Tenant, BaseURL: p.APIBaseURL, TokenURL: p.TokenURL, HTTPClient: client,
				Logger: logger.Named("graph"),
			}))
		case provider.Dropbox:
			adapters = append(adapters, dropbox.New(dropbox.Options{
				ClientID: p.ClientID, ClientSecret: p.ClientSecret, RedirectURL: p.RedirectURL,
				TokenURL: p.TokenURL, HTTPClient: client,
			}))
		}
		logger.Info("Provider enabled", zap.String("provider", string(t)), zap.Duration("timeout", p.Timeout))
	}
	return adapters
}

func closeDB(database *gorm.DB) {
	if sqlDB, err := database.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
