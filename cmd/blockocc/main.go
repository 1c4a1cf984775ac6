// blockocc computes signal block occupation times of scheduled train
// journeys and detects journeys that claim the same route section at
// overlapping times.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"block-occupancy/internal/analyzer"
	"block-occupancy/internal/blocks"
	"block-occupancy/internal/cache"
	"block-occupancy/internal/config"
	"block-occupancy/internal/db"
	"block-occupancy/internal/metrics"
	"block-occupancy/internal/publisher"
	"block-occupancy/internal/rollingstock"
	"block-occupancy/internal/schedule"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "blockocc",
	Short: "Block occupancy and conflict detection for scheduled train journeys",
	Long: `blockocc segments scheduled journeys into signal blocks, times how long each
block is occupied and reports route sections two journeys occupy at overlapping
times.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(occupancyCmd, conflictsCmd, lastRunCmd)
}

// app holds what every command needs, built from the configuration.
type app struct {
	cfg    *config.Config
	model  config.Model
	logger *slog.Logger
	mcol   *metrics.Collector
	sqlDB  *sql.DB
	cache  *cache.RedisCache

	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	model, err := config.LoadModel(cfg.ParamsFile)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, model: model, logger: logger}

	if cfg.MetricsAddr != "" {
		a.mcol = metrics.NewCollector(cfg.Workers)
		srv := a.mcol.Serve(cfg.MetricsAddr)
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.DatabaseURL != "" {
		dsn := cfg.DatabaseURL
		if cfg.DatabaseName != "" {
			dsn, err = db.WithDBName(dsn, cfg.DatabaseName)
			if err != nil {
				a.close()
				return nil, fmt.Errorf("compose DSN: %w", err)
			}
		}
		sqlDB, err := db.Open(dsn)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("db open error: %w", err)
		}
		a.closers = append(a.closers, func() { sqlDB.Close() })
		if err := db.Ping(ctx, sqlDB); err != nil {
			a.close()
			return nil, fmt.Errorf("db ping error: %w", err)
		}
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			a.close()
			return nil, err
		}
		a.sqlDB = sqlDB
	}

	if cfg.RedisAddr != "" {
		version, err := model.Fingerprint(cfg.InfrastructureFile, cfg.RollingStockFile)
		if err != nil {
			a.close()
			return nil, err
		}
		rc, err := cache.NewRedisCache(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.CacheTTL,
			Version:  version,
		})
		if err != nil {
			// results are still computed without the cache
			logger.Warn("redis unavailable, cache disabled", slog.Any("error", err))
		} else {
			a.cache = rc
			a.closers = append(a.closers, func() { rc.Close() })
		}
	}
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) analyzer() (*analyzer.Analyzer, error) {
	catalog, err := rollingstock.Open(a.cfg.RollingStockFile)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("rolling stock loaded", slog.Int("lines", catalog.Lines()))

	var inf *blocks.Infrastructure
	inf, err = schedule.LoadInfrastructure(a.cfg.InfrastructureFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Warn("no infrastructure file, block starts fall back to the first node",
			slog.String("path", a.cfg.InfrastructureFile))
		inf = nil
	case err != nil:
		return nil, err
	}

	an := &analyzer.Analyzer{
		Resolver:       a.model.Resolver(),
		Infrastructure: inf,
		Params:         a.model.Occupancy,
		Lengths:        catalog,
		Workers:        a.cfg.Workers,
		Logger:         a.logger,
	}
	if a.cache != nil {
		an.Cache = a.cache
	}
	if a.sqlDB != nil {
		an.Store = db.Store{DB: a.sqlDB}
	}
	if a.mcol != nil {
		an.Metrics = &analyzerMetrics{c: a.mcol}
	}
	return an, nil
}

// publisher connects to NATS when a URL is configured.
func (a *app) publisher() (*publisher.NATSPublisher, error) {
	if a.cfg.NATSURL == "" {
		return nil, nil
	}
	pub, err := publisher.NewNATSPublisher(a.cfg.NATSURL, a.cfg.NATSSubjectPrefix, a.cfg.LogNATSSubjects, wrapPublisherMetrics(a.mcol), a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// withApp runs fn with a configured app and a context canceled on
// SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}
}
