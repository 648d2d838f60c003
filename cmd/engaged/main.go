// Command engaged runs the engagement orchestrator.
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

	"github.com/spf13/cobra"

	"github.com/ignite/engagement-engine/internal/api"
	"github.com/ignite/engagement-engine/internal/config"
	"github.com/ignite/engagement-engine/internal/pkg/logger"
	"github.com/ignite/engagement-engine/internal/repository/postgres"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "engaged",
	Short:         "Engagement orchestrator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the configuration file")
	rootCmd.AddCommand(newRunCmd(), newMigrateCmd(), newSeedCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedact(cfg.Log.RedactEnabled())
	return cfg, nil
}

func newRunCmd() *cobra.Command {
	var autoMigrate bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitor and feedback loops of every tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply database migrations before starting")
	return cmd
}

func run(cfg *config.Config, autoMigrate bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	go func() {
		select {
		case s := <-quit:
			logger.Info("shutting down", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if autoMigrate && b.db != nil {
		if err := postgres.Migrate(b.db); err != nil {
			return err
		}
	}

	notifier := newNotifier(cfg.Notify)
	defer notifier.Close()

	orch, err := buildOrchestrator(ctx, cfg, b, notifier)
	if err != nil {
		return err
	}

	srv := api.NewServer(cfg.Server, orch, api.NewHealthChecker(b.db, b.redis, orch))
	go func() {
		logger.Info("starting health server", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", "error", err)
		}
	}()

	runErr := orch.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	if notifier.Dropped() > 0 || notifier.Failed() > 0 {
		logger.Warn("notifications lost", "dropped", notifier.Dropped(), "failed", notifier.Failed())
	}
	return runErr
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url (or DATABASE_URL) is required")
			}
			db, err := openDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := postgres.Migrate(db); err != nil {
				return err
			}
			logger.Info("migrations complete")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Insert configured accounts and sources missing from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("database.url (or DATABASE_URL) is required")
			}
			db, err := openDB(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts, sources := postgres.NewAccountRepo(db), postgres.NewSourceRepo(db)
			for _, t := range cfg.Tenants {
				n, err := seedTenant(cmd.Context(), accounts, sources, t, time.Now().UTC())
				if err != nil {
					return fmt.Errorf("seed tenant %s: %w", t.ID, err)
				}
				logger.Info("seeded tenant", "tenant", t.ID, "rows", n)
			}
			return nil
		},
	}
}
