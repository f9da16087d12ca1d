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

	"github.com/sirupsen/logrus"

	"billbook/backend/internal/cache"
	"billbook/backend/internal/config"
	"billbook/backend/internal/httpapi"
	"billbook/backend/internal/locker"
	"billbook/backend/internal/service"
	"billbook/backend/internal/store"
	"billbook/backend/internal/store/memory"
	mongostore "billbook/backend/internal/store/mongo"
	pgstore "billbook/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithField("module", "main").Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		config.LogError(logger, "main", "openRepository", "startup", nil, err)
		os.Exit(1)
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	opts := service.Options{
		TotalsTTL:   time.Duration(cfg.TotalsCacheTTLSeconds) * time.Second,
		PhoneRegion: cfg.PhoneRegion,
		Logger:      logger,
	}
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		totals := cache.NewRedisTotalsCache(rdb)
		if err := totals.Ping(ctx); err != nil {
			logger.WithField("module", "main").Warnf("redis unavailable (%v), using process-local locks and memory totals cache", err)
			_ = rdb.Close()
			opts.Totals = cache.NewMemoryTotalsCache()
		} else {
			opts.Totals = totals
			opts.Locker = locker.NewRedis(rdb, time.Duration(cfg.LockTTLSeconds)*time.Second, logger)
			closers = append(closers, totals.Close)
			logger.WithField("module", "main").Info("cache and locks: redis")
		}
	} else {
		opts.Totals = cache.NewMemoryTotalsCache()
		logger.WithField("module", "main").Info("cache and locks: in-process")
	}

	svc := service.New(repo, opts)

	var auth *httpapi.AuthManager
	if cfg.AuthEnabled() {
		auth = httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
		if err := auth.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword, httpapi.RoleAdmin); err != nil {
			config.LogError(logger, "main", "EnsureUser", "bootstrap admin", cfg.AdminUsername, err)
			os.Exit(1)
		}
		logger.WithField("module", "main").Info("auth: bearer tokens required")
	} else {
		logger.WithField("module", "main").Warn("auth: disabled, AUTH_SECRET is not set")
	}

	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("module", "main").Infof("billbook backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("module", "main").Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("module", "main").Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithField("module", "main").Errorf("close error: %v", err)
		}
	}

	logger.WithField("module", "main").Info("server stopped")
}

// openRepository prefers Postgres, then MongoDB, then the in-memory store.
// A configured backend that cannot be reached is fatal.
func openRepository(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
		logger.WithField("module", "main").Info("repository: postgres")
		return pg, pg.Close, nil
	case cfg.MongoURI != "":
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo unavailable and MONGO_URI is set: %w", err)
		}
		if err := mg.Migrate(ctx); err != nil {
			_ = mg.Close()
			return nil, nil, err
		}
		logger.WithField("module", "main").Info("repository: mongo")
		return mg, mg.Close, nil
	default:
		logger.WithField("module", "main").Info("repository: in-memory")
		return memory.New(), nil, nil
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if !cfg.AuthEnabled() {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be at least 32 characters")
	}
	if cfg.AdminUsername == "" {
		return fmt.Errorf("ADMIN_USERNAME must not be empty when AUTH_SECRET is set")
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters when AUTH_SECRET is set")
	}
	return nil
}
