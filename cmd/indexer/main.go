package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/2ndtlmining/fluxrevenue-go/core"
	"github.com/2ndtlmining/fluxrevenue-go/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")

	rootCmd := &cobra.Command{Use: "fluxrevenue-indexer"}
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLogger constructs the indexer's shared logrus logger from the
// loaded configuration's logging level.
func buildLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}
	return logger
}

// bootstrap loads configuration and wires the Chain Client, Store, and
// Sync Engine every subcommand needs.
func bootstrap() (*config.Config, *logrus.Logger, *core.ChainClient, *core.Store, *core.SyncEngine, *core.StatusPublisher, *core.Metrics, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	chain, err := core.NewChainClient(*cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("build chain client: %w", err)
	}
	store, err := core.OpenStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	metrics := core.NewMetrics()
	chain.SetMetrics(metrics)
	status := core.NewStatusPublisher()
	engine := core.NewSyncEngine(chain, store, metrics, status, *cfg, logger)

	return cfg, logger, chain, store, engine, status, metrics, nil
}

func syncCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "run the sync loop, polling the chain on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, _, store, engine, _, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := engine.RunCycle(ctx); err != nil {
				logger.WithError(err).Error("initial sync cycle failed")
			}
			if once {
				return nil
			}

			ticker := time.NewTicker(cfg.Sync.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down sync loop")
					return nil
				case <-ticker.C:
					if _, err := engine.RunCycle(ctx); err != nil {
						logger.WithError(err).Warn("sync cycle failed")
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single cycle and exit")
	return cmd
}

func backfillCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "resolve outstanding payment senders out of band",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, _, store, engine, _, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			updated, err := engine.BackfillSenders(ctx, limit)
			if err != nil {
				return fmt.Errorf("backfill senders: %w", err)
			}
			logger.WithField("updated", updated).Info("backfill_senders complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 500, "maximum unresolved payments to process")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "compute the current sync status from the chain tip and store, print it, and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, _, store, engine, _, _, err := bootstrap()
			if err != nil {
				return err
			}
			defer store.Close()

			st, err := engine.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("read status: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "height=%d highest_synced=%d lowest_synced=%d progress=%.4f complete=%v\n",
				st.CurrentHeight, st.HighestSynced, st.LowestSynced, st.ProgressPct, st.IsComplete)
			return nil
		},
	}
}
