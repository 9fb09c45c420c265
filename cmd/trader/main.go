// Package main runs the trading pipeline: feeds stream ticks through
// strategies into paper venues, every derived event lands in the event
// store, and an HTTP API serves the live projections.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dgrah50/rx-trader-sub002/internal/api"
	"github.com/dgrah50/rx-trader-sub002/internal/config"
	"github.com/dgrah50/rx-trader-sub002/internal/execution"
	"github.com/dgrah50/rx-trader-sub002/internal/feed"
	"github.com/dgrah50/rx-trader-sub002/internal/observability"
	"github.com/dgrah50/rx-trader-sub002/internal/pipeline"
	"github.com/dgrah50/rx-trader-sub002/internal/storage"
	chstore "github.com/dgrah50/rx-trader-sub002/internal/storage/clickhouse"
	"github.com/dgrah50/rx-trader-sub002/internal/storage/memory"
	pgstore "github.com/dgrah50/rx-trader-sub002/internal/storage/postgres"
	"github.com/dgrah50/rx-trader-sub002/internal/strategy"
)

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	configPath := flag.String("config", os.Getenv("TRADER_CONFIG"), "Path to YAML configuration (empty runs the built-in demo)")
	addr := flag.String("addr", "", "HTTP API address, overrides config")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string, overrides config")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string, overrides config")
	useMemory := flag.Bool("use-memory", false, "Force in-memory storage")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	pretty := flag.Bool("pretty", false, "Human-readable console logging")

	flag.Parse()

	logger := setupLogger(*logLevel, *pretty)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load configuration")
	}
	applyOverrides(cfg, *addr, *postgresDSN, *clickhouseDSN, *useMemory)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	metrics := observability.NewMetrics("")

	store, timeseries, cleanup, err := createStores(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("create stores")
	}
	defer cleanup()

	bindings, err := buildBindings(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build bindings")
	}

	controller, err := pipeline.New(pipeline.Options{
		Store:         store,
		Bindings:      bindings,
		Logger:        &logger,
		Metrics:       metrics,
		Timeseries:    timeseries,
		QueueDepth:    cfg.Pipeline.QueueDepth,
		Retry:         retryPolicy(cfg.Pipeline.Retry),
		SnapshotEvery: cfg.Snapshot.Every.Std(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("create pipeline")
	}

	if err := controller.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("start pipeline")
	}

	var srv *http.Server
	if cfg.Server.Addr != "" {
		apiServer := api.New(api.Options{Controller: controller, Metrics: metrics, Logger: &logger})
		srv = &http.Server{Addr: cfg.Server.Addr, Handler: apiServer.Router()}
		go func() {
			logger.Info().Str("addr", cfg.Server.Addr).Msg("http api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http api failed")
				cancel()
			}
		}()
	}

	<-ctx.Done()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown failed")
		}
		shutdownCancel()
	}
	if err := controller.Stop(); err != nil {
		logger.Error().Err(err).Msg("pipeline stop failed")
	}
	logger.Info().Msg("trader exited")
}

func setupLogger(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output)
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(lvl).With().Timestamp().Logger()
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// applyOverrides lets flags win over the configuration file.
func applyOverrides(cfg *config.Config, addr, postgresDSN, clickhouseDSN string, useMemory bool) {
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if postgresDSN != "" {
		cfg.Store.Backend = config.StorePostgres
		cfg.Store.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.Timeseries.Backend = config.TimeseriesClickHouse
		cfg.Timeseries.ClickHouseDSN = clickhouseDSN
	}
	if useMemory {
		cfg.Store.Backend = config.StoreMemory
		if cfg.Timeseries.Backend == config.TimeseriesClickHouse {
			cfg.Timeseries.Backend = config.TimeseriesMemory
		}
	}
}

// createStores builds the event store and optional timeseries sink. The
// returned cleanup closes whatever was opened.
func createStores(ctx context.Context, cfg *config.Config) (storage.EventStore, storage.PortfolioTimeseriesStore, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var store storage.EventStore
	switch cfg.Store.Backend {
	case config.StoreMemory:
		store = memory.NewEventStore()
	case config.StorePostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("connect to postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		store = pgstore.NewEventStore(pool)
	}

	var timeseries storage.PortfolioTimeseriesStore
	switch cfg.Timeseries.Backend {
	case config.TimeseriesNone:
	case config.TimeseriesMemory:
		timeseries = memory.NewPortfolioTimeseriesStore()
	case config.TimeseriesClickHouse:
		var conn *chstore.Conn
		var err error
		if cfg.Timeseries.Database != "" {
			conn, err = chstore.NewConnWithDatabase(ctx, cfg.Timeseries.ClickHouseDSN, cfg.Timeseries.Database)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.Timeseries.ClickHouseDSN)
		}
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("connect to clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { _ = conn.Close() })
		timeseries = chstore.NewPortfolioTimeseriesStore(conn)
	}

	return store, timeseries, cleanup, nil
}

// buildBindings turns validated configuration into live components.
func buildBindings(cfg *config.Config, logger zerolog.Logger) ([]pipeline.Binding, error) {
	bindings := make([]pipeline.Binding, 0, len(cfg.Bindings))
	for _, bc := range cfg.Bindings {
		var src feed.Feed
		switch bc.Feed.Type {
		case config.FeedWebsocket:
			src = feed.NewWS(bc.Feed.Endpoint, bc.Symbols, nil, logger)
		case config.FeedRandomWalk:
			var opts []feed.RandomWalkOption
			if bc.Feed.Count > 0 {
				opts = append(opts, feed.WithWalkCount(bc.Feed.Count))
			}
			if bc.Feed.Interval.Std() > 0 {
				opts = append(opts, feed.WithWalkInterval(bc.Feed.Interval.Std()))
			}
			seed := bc.Feed.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			src = feed.NewRandomWalk(bc.Symbols, bc.Feed.Start, bc.Feed.VolBps, seed, opts...)
		}

		strat, err := strategy.FromConfig(bc.Strategy)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", bc.Name, err)
		}

		venueOpts := []execution.PaperOption{execution.WithLogger(logger)}
		if bc.Venue.FeeBps > 0 {
			venueOpts = append(venueOpts, execution.WithFee(bc.Venue.FeeBps))
		}
		if bc.Venue.RateLimitPerSec > 0 {
			burst := int(math.Ceil(bc.Venue.RateLimitPerSec))
			venueOpts = append(venueOpts, execution.WithRateLimit(rate.NewLimiter(rate.Limit(bc.Venue.RateLimitPerSec), burst)))
		}
		if bc.Venue.RejectRate > 0 || bc.Venue.SlipBps > 0 {
			seed := bc.Venue.Seed
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			venueOpts = append(venueOpts, execution.WithFriction(seed, bc.Venue.RejectRate, bc.Venue.SlipBps))
		}

		bindings = append(bindings, pipeline.Binding{
			Name:     bc.Name,
			Feed:     src,
			Strategy: strat,
			Adapter:  execution.NewPaper(config.VenuePaper, venueOpts...),
			Symbols:  bc.Symbols,
			Qty:      bc.Qty,
		})
	}
	return bindings, nil
}

func retryPolicy(rc config.RetryConfig) pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxAttempts: rc.MaxAttempts,
		BaseDelay:   rc.BaseDelay.Std(),
		MaxDelay:    rc.MaxDelay.Std(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
