package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/config"
	"github.com/metlabs/metlabs_back/internal/infra"
	"github.com/metlabs/metlabs_back/internal/ledger"
	"github.com/metlabs/metlabs_back/internal/logging"
	"github.com/metlabs/metlabs_back/internal/migrations"
	"github.com/metlabs/metlabs_back/internal/server"
)

const connectTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	// Backends are optional when their URL is unset; config validation has
	// already rejected that outside development.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer db.Close()

		if err := migrations.Apply(ctx, db); err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency and rate limiting disabled")
	}

	// A nil client must stay a nil interface, so assign only on success.
	var eth ledger.ChainClient
	if cfg.EthRPCURL != "" {
		client, err := infra.NewEthClient(ctx, cfg.EthRPCURL)
		if err != nil {
			// Deposits and withdrawals report a configuration error until
			// the node is reachable; the rest of the API keeps serving.
			logger.Error("connect ethereum rpc", zap.Error(err))
		} else {
			eth = client
			defer client.Close()
		}
	}

	srv, err := server.New(cfg, db, cache, eth, logger)
	if err != nil {
		logger.Fatal("build server", zap.Error(err))
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
