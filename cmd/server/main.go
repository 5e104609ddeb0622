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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"soapstock/backend/internal/cache"
	"soapstock/backend/internal/config"
	"soapstock/backend/internal/geocode"
	"soapstock/backend/internal/httpapi"
	"soapstock/backend/internal/hybrid"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/metrics"
	"soapstock/backend/internal/migration"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/queue"
	"soapstock/backend/internal/service"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/store/local"
	"soapstock/backend/internal/store/memory"
	pgstore "soapstock/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	logg := logger.New(logger.Options{
		ServiceName: "soapstock",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)
	if err != nil {
		logg.Error(ctx, "invalid configuration", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "server stopped with error", err)
		os.Exit(1)
	}
}

type closer func() error

func run(ctx context.Context, cfg config.Config, logg *logger.Logger) (err error) {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	kv, err := local.Open(cfg.Local.Path)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	closers = append(closers, kv.Close)

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	remote, closeRemote, err := openRemote(startCtx, cfg.Remote, logg)
	if err != nil {
		return err
	}
	if closeRemote != nil {
		closers = append(closers, closeRemote)
	}

	entityCache, locker, closeRedis := openRedis(startCtx, cfg.Redis, kv, logg)
	if closeRedis != nil {
		closers = append(closers, closeRedis)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	detector := newDetector(cfg.Network, logg)
	facade := hybrid.New(hybrid.Deps{
		Remote:  remote,
		Local:   local.New(kv),
		State:   kv,
		Cache:   entityCache,
		Queue:   queue.New(kv, logg),
		Monitor: detector,
		Locker:  locker,
		Metrics: metrics.NewSyncMetrics(reg),
		Logger:  logg,
	}, storageConfig(cfg.Storage))

	svc := service.New(facade, service.Options{
		Geocoder: geocode.NewClient(
			geocode.WithBaseURL(cfg.Geocode.BaseURL),
			geocode.WithUserAgent(cfg.Geocode.UserAgent),
			geocode.WithTimeout(cfg.Geocode.Timeout),
			geocode.WithDefault(cfg.Geocode.DefaultLat, cfg.Geocode.DefaultLng),
			geocode.WithLogger(logg),
		),
		Migrator:       migration.NewRunner(kv, remote, detector, logg),
		Logger:         logg,
		MaxStockPieces: cfg.Business.MaxStockPieces,
		PhoneRegion:    cfg.Business.PhoneRegion,
	})

	auth, err := httpapi.NewAuthManager(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.OperatorUsername, cfg.Auth.OperatorPassword)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.App.AllowedOrigin,
		Logger:        logg,
		Gatherer:      reg,
	})

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go detector.Watch(runCtx, cfg.Network.ProbeInterval)
	facade.Start(runCtx)
	defer facade.Close()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", cfg.Address()), "server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	case <-runCtx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logg.Info(ctx, "server stopped")
	return nil
}

// openRemote connects the PostgreSQL store, or falls back to the seeded
// in-memory store when no database is configured.
func openRemote(ctx context.Context, cfg config.RemoteConfig, logg *logger.Logger) (store.RemoteStore, closer, error) {
	if cfg.DatabaseURL == "" {
		logg.Info(ctx, "remote store: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Pool{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and SOAPSTOCK_DATABASE_URL is set: %w", err)
	}
	if cfg.AutoMigrate {
		if err := pg.MigrateUp(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	logg.Info(ctx, "remote store: postgres")
	return pg, pg.Close, nil
}

// openRedis returns the Redis-backed cache and sync lock when Redis answers,
// and the local cache with an in-process lock otherwise.
func openRedis(ctx context.Context, cfg config.RedisConfig, kv *local.KV, logg *logger.Logger) (cache.EntityCache, hybrid.Locker, closer) {
	if cfg.Addr == "" {
		logg.Info(ctx, "cache: local")
		return cache.NewLocalCache(kv), hybrid.NewMutexLocker(), nil
	}

	redisCache := cache.NewRedisCache(cfg.Addr, cfg.Password, cfg.DB)
	if err := redisCache.Ping(ctx); err != nil {
		logg.Warn(ctx, "redis unavailable, using local cache", err)
		_ = redisCache.Close()
		return cache.NewLocalCache(kv), hybrid.NewMutexLocker(), nil
	}
	logg.Info(ctx, "cache: redis")
	return redisCache, hybrid.NewRedisLocker(redisCache.Client(), cfg.LockTTL), redisCache.Close
}

// newDetector starts offline unless configured otherwise. Without a probe
// URL there is nothing to watch, so the remote is assumed reachable.
func newDetector(cfg config.NetworkConfig, logg *logger.Logger) *network.Detector {
	opts := []network.Option{network.WithLogger(logg)}
	if cfg.ProbeURL == "" {
		opts = append(opts, network.WithInitialState(true))
	} else {
		opts = append(opts,
			network.WithInitialState(cfg.InitialOnline),
			network.WithProbe(cfg.ProbeURL, cfg.ProbeTimeout),
		)
	}
	return network.New(opts...)
}

func storageConfig(cfg config.StorageConfig) hybrid.StorageConfig {
	return hybrid.StorageConfig{
		SalesRemote:        cfg.SalesRemote,
		OrdersRemote:       cfg.OrdersRemote,
		SupermarketsRemote: cfg.SupermarketsRemote,
		StockRemote:        cfg.StockRemote,
	}
}
