// Command relayerd runs the compliance relayer: the HTTP API, the
// submission worker pool, and the stale-transaction crank, wired together
// and shut down in a fixed order: HTTP server first, then the worker pool,
// then the crank, with the database connection pool closed last.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/compliance-relayer/internal/api"
	"github.com/arcsign/compliance-relayer/internal/audit"
	"github.com/arcsign/compliance-relayer/internal/chain"
	"github.com/arcsign/compliance-relayer/internal/config"
	"github.com/arcsign/compliance-relayer/internal/crank"
	"github.com/arcsign/compliance-relayer/internal/metrics"
	"github.com/arcsign/compliance-relayer/internal/risk"
	"github.com/arcsign/compliance-relayer/internal/store"
	"github.com/arcsign/compliance-relayer/internal/webhook"
	"github.com/arcsign/compliance-relayer/internal/worker"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Fatal("relayerd exited with error", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, store.DefaultPostgresConfig())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer st.Close()

	var strategy chain.SubmissionStrategy
	if cfg.UsePrivateSubmission {
		strategy = chain.NewPrivateRelayStrategy(cfg.BlockchainRPCURL, cfg.PrivateSubmissionTip)
	}
	adapter, err := chain.NewSolanaAdapter(cfg.BlockchainRPCURL, cfg.IssuerPrivateKey, strategy, log)
	if err != nil {
		return fmt.Errorf("failed to build chain adapter: %w", err)
	}

	var riskProvider risk.Provider
	if cfg.RangeAPIKey != "" {
		riskProvider = risk.NewRangeProvider(cfg.RangeAPIKey, cfg.RangeAPIURL)
	} else {
		riskProvider = risk.NewMockProvider()
	}

	assetsProvider := risk.AssetsProvider(risk.NoAssetsProvider{})

	riskCfg := risk.DefaultConfig()
	riskCfg.RiskScoreThreshold = cfg.RangeRiskThreshold
	riskAgg, err := risk.NewAggregator(ctx, st, riskProvider, assetsProvider, riskCfg)
	if err != nil {
		return fmt.Errorf("failed to build risk aggregator: %w", err)
	}

	rec := metrics.NewPrometheusRecorder()

	webhookSecrets := map[string]string{
		"helius":    cfg.HeliusWebhookSecret,
		"quicknode": cfg.QuicknodeWebhookSecret,
	}
	wh := webhook.New(st, rec, log, webhookSecrets)

	auditDir := os.Getenv("AUDIT_LOG_PATH")
	if auditDir == "" {
		auditDir = "/var/log/relayerd/audit.ndjson"
	}
	auditLog, err := audit.NewLogger(auditDir)
	if err != nil {
		return fmt.Errorf("failed to build audit logger: %w", err)
	}

	apiCfg := api.DefaultConfig()
	apiCfg.EnableRateLimiting = cfg.EnableRateLimiting
	server := api.New(apiCfg, st, adapter, riskAgg, wh, rec, auditLog, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	var pool *worker.Pool
	var stale *crank.Crank
	if cfg.EnableBackgroundWorker {
		workerCfg := worker.DefaultConfig()
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.BatchSize = cfg.WorkerBatchSize
		pool = worker.New(workerCfg, st, adapter, rec, log)
		pool.Start(ctx)
	}
	if cfg.EnableStaleCrank {
		crankCfg := crank.DefaultConfig()
		crankCfg.PollInterval = cfg.CrankPollInterval
		crankCfg.StaleAfter = cfg.CrankStaleAfter
		crankCfg.BatchSize = cfg.CrankBatchSize
		stale = crank.New(crankCfg, st, adapter, rec, log)
		stale.Start(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}

	if pool != nil {
		pool.Stop()
	}
	if stale != nil {
		stale.Stop()
	}

	return nil
}
