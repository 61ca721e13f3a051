package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"motormods/backend/internal/cache"
	"motormods/backend/internal/config"
	"motormods/backend/internal/httpapi"
	"motormods/backend/internal/logger"
	"motormods/backend/internal/mirror"
	"motormods/backend/internal/service"
	"motormods/backend/internal/settings"
	"motormods/backend/internal/store"
	boltstore "motormods/backend/internal/store/bolt"
	sqlitestore "motormods/backend/internal/store/sqlite"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Mode:       cfg.LogMode,
		FileEnable: cfg.LogFileEnable,
		Filename:   cfg.LogFilename,
	})
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 4)

	repo, backend, err := openRepository(ctx, cfg)
	if err != nil {
		zap.S().Fatalf("no usable storage backend: %v", err)
	}
	closers = append(closers, repo.Close)
	zap.S().Infof("repository: %s", backend)
	provider := store.NewSwappableProvider(repo)

	productCache := cache.ProductCache(cache.NoopProductCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisProductCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			zap.S().Warnf("redis unavailable (%v), using noop cache", err)
		} else {
			productCache = redisCache
			closers = append(closers, redisCache.Close)
			zap.S().Info("cache: redis")
		}
	} else {
		zap.S().Info("cache: noop")
	}

	bus := EventBus.New()
	if cfg.MirrorURL != "" {
		pusher, err := mirror.NewPusher(bus, mirror.NewHTTPClient(cfg.MirrorURL, cfg.MirrorAPIKey))
		if err != nil {
			zap.S().Fatalf("mirror pusher: %v", err)
		}
		closers = append(closers, pusher.Close)
		zap.S().Infof("mirror: %s", cfg.MirrorURL)
	} else {
		zap.S().Info("mirror: disabled")
	}

	settingsProvider := settings.NewProvider(provider)
	svc := service.New(provider, settingsProvider, productCache, bus, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.FSNCronSpec, func() {
		sweepCtx, sweepCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer sweepCancel()
		if _, err := svc.ClassifyFSN(sweepCtx, 0); err != nil {
			zap.S().Errorf("scheduled fsn sweep failed: %v", err)
		}
	}); err != nil {
		zap.S().Fatalf("invalid FSN_CRON_SPEC %q: %v", cfg.FSNCronSpec, err)
	}
	scheduler.Start()

	api := httpapi.New(svc, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		zap.S().Infof("listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnf("shutdown error: %v", err)
	}

	<-scheduler.Stop().Done()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			zap.S().Warnf("close error: %v", err)
		}
	}

	zap.S().Info("server stopped")
}

// openRepository picks the embedded relational backend, falling back to the
// keyed store when sqlite cannot open. STORE_BACKEND forces one of
// "sqlite" or "bolt".
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, string, error) {
	switch cfg.StoreBackend {
	case "sqlite":
		repo, err := sqlitestore.New(ctx, cfg.DatabasePath)
		return repo, "sqlite", err
	case "bolt":
		repo, err := boltstore.New(ctx, cfg.BoltPath)
		return repo, "bolt", err
	}

	repo, err := sqlitestore.New(ctx, cfg.DatabasePath)
	if err == nil {
		return repo, "sqlite", nil
	}
	zap.S().Warnf("sqlite unavailable (%v), falling back to bolt", err)

	boltRepo, boltErr := boltstore.New(ctx, cfg.BoltPath)
	if boltErr != nil {
		return nil, "", boltErr
	}
	return boltRepo, "bolt", nil
}
