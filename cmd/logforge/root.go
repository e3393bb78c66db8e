package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"logforge/internal/app"
	"logforge/internal/config"
	"logforge/internal/ingest/adapters/external"
	"logforge/internal/logging"
	"logforge/internal/pipeline"
	"logforge/internal/platform/memstore"
	"logforge/internal/platform/postgres"
	"logforge/internal/platform/runlock"
	"logforge/internal/telemetry"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "logforge",
		Short:         "Multi-tenant log ingestion and daily metrics pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file; environment variables override it")

	root.AddCommand(
		newServeCmd(&configPath),
		newRunCmd(&configPath),
		newMigrateCmd(&configPath),
	)
	return root
}

// runtime owns everything a command opens and must close.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	app    *app.App
	closer []func(context.Context) error
}

func (r *runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closer) - 1; i >= 0; i-- {
		errs = append(errs, r.closer[i](ctx))
	}
	return errors.Join(errs...)
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.Init(cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))
	return cfg, logger, nil
}

func openDB(cfg *config.Config) (*postgres.DB, error) {
	return postgres.Open(postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
}

func bootstrap(ctx context.Context, configPath string) (*runtime, error) {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.OTLPInsecure)
	if err != nil {
		return nil, err
	}
	rt.closer = append(rt.closer, shutdownTracing)

	var store app.Store
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		store = memstore.New()
	default:
		db, err := openDB(cfg)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.closer = append(rt.closer, func(context.Context) error { return db.Close() })
		store = app.NewPostgresStore(db)
	}

	var lock pipeline.RunLock
	if cfg.Redis.URL != "" {
		l, err := runlock.New(cfg.Redis.URL, cfg.Redis.LockTTL)
		if err != nil {
			_ = rt.Close(ctx)
			return nil, err
		}
		rt.closer = append(rt.closer, func(context.Context) error { return l.Close() })
		lock = l
	}

	a, err := app.New(cfg, store, external.NewClient(cfg.Fetch.ConnectTimeout), lock, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.app = a
	return rt, nil
}
