package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/2ndtlmining/fluxrevenue-go/core"
	"github.com/2ndtlmining/fluxrevenue-go/pkg/config"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(lvl)
	}

	chain, err := core.NewChainClient(*cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("build chain client")
	}
	store, err := core.OpenStore(cfg.Storage.DBPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("open store")
	}
	defer store.Close()

	metrics := core.NewMetrics()
	chain.SetMetrics(metrics)
	status := core.NewStatusPublisher()
	engine := core.NewSyncEngine(chain, store, metrics, status, *cfg, logger)
	aggregator := core.NewAggregator(store)

	s := &apiServer{aggregator: aggregator, engine: engine, status: status, metrics: metrics}

	bind := ":8080"
	if addr := os.Getenv("FLUXIDX_BIND"); addr != "" {
		bind = addr
	}

	httpServer := &http.Server{
		Addr:    bind,
		Handler: newRouter(s),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSyncLoop(ctx, engine, cfg.Sync.Interval, logger)

	go func() {
		logger.WithField("addr", bind).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("serve")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}

// runSyncLoop drives the Sync Engine on a ticker alongside the HTTP server,
// so the server binary alone keeps the store current without a separate
// process.
func runSyncLoop(ctx context.Context, engine *core.SyncEngine, interval time.Duration, logger *logrus.Logger) {
	if _, err := engine.RunCycle(ctx); err != nil && err != core.ErrAlreadyRunning {
		logger.WithError(err).Warn("initial sync cycle failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.RunCycle(ctx); err != nil && err != core.ErrAlreadyRunning {
				logger.WithError(err).Warn("sync cycle failed")
			}
		}
	}
}
