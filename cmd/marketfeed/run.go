package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arbiq/marketfeed/internal/bus"
	"github.com/arbiq/marketfeed/internal/cache"
	"github.com/arbiq/marketfeed/internal/config"
	"github.com/arbiq/marketfeed/internal/exchangeinfo"
	"github.com/arbiq/marketfeed/internal/httpapi"
	"github.com/arbiq/marketfeed/internal/metrics"
	"github.com/arbiq/marketfeed/internal/net/ratelimit"
	"github.com/arbiq/marketfeed/internal/pipeline"
	"github.com/arbiq/marketfeed/internal/store/postgres"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start ingestion, analytics, and the health/metrics server",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.Logger.Level(cfg.ZerologLevel())

	// httpapi serves /metrics from promhttp.Handler(), which gathers from
	// prometheus.DefaultGatherer; register onto the matching default
	// registerer so what's exposed is what marketfeed actually recorded.
	reg := prometheus.DefaultRegisterer.(*prometheus.Registry)
	metricsRegistry := metrics.NewRegistry(reg)

	deps := pipeline.Deps{
		Bus:     bus.New(cfg.Bus.Capacity),
		Metrics: metricsRegistry,
		Limiter: ratelimit.NewLimiter(5, 10),
		Logger:  logger,
	}

	if cfg.Store.DSN != "" {
		db, err := postgres.Open(cfg.Store.DSN, cfg.Store.MaxOpenConn)
		if err != nil {
			return fmt.Errorf("opening analytics store: %w", err)
		}
		defer db.Close()

		const repoTimeout = 5 * time.Second
		deps.LevelRepo = postgres.NewLevelRepo(db, repoTimeout)
		deps.TradeRepo = postgres.NewTradeRepo(db, repoTimeout)
		deps.ArbitrageRepo = postgres.NewArbitrageRepo(db, repoTimeout)
	}

	if cfg.Cache.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Cache.Addr})
		defer redisClient.Close()
		deps.SymbolCache = cache.New(redisClient, cfg.Cache.TTL)
	}

	deps.ExchangeInfo = exchangeinfo.NewFetcher(http.DefaultClient)

	p, err := pipeline.Build(cfg, deps)
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	httpCfg := httpapi.DefaultConfig()
	if cfg.HTTP.Host != "" {
		httpCfg.Host = cfg.HTTP.Host
	}
	if cfg.HTTP.Port != 0 {
		httpCfg.Port = cfg.HTTP.Port
	}
	srv, listener, err := httpapi.New(httpCfg, p.Healthy)
	if err != nil {
		return fmt.Errorf("starting health/metrics server: %w", err)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ctx, listener) }()
	go func() { errCh <- p.Run(ctx) }()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("component exited with error")
		}
	}
	return nil
}
