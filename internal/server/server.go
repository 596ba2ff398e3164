package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/config"
	"github.com/metlabs/metlabs_back/internal/ledger"
	"github.com/metlabs/metlabs_back/internal/routes"
)

// Server wraps the Fiber application, the job scheduler and shared dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
// eth may be nil when no RPC endpoint is configured.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, eth ledger.ChainClient, logger *zap.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		// Deposits wait for a block confirmation before answering.
		WriteTimeout: cfg.LedgerConfirmTimeout + 30*time.Second,
		ErrorHandler: apperr.FiberErrorHandler(logger),
	})

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	deps := routes.Deps{
		Cfg:       cfg,
		DB:        db,
		Cache:     cache,
		Eth:       eth,
		Logger:    logger,
		Scheduler: scheduler,
	}
	if err := routes.Setup(app, deps); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}

	return &Server{app: app, cfg: cfg, scheduler: scheduler, logger: logger}, nil
}

// App exposes the underlying Fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts background jobs and the HTTP server.
func (s *Server) Listen() error {
	s.scheduler.Start()
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Address()))
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops background jobs and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	jobsErr := s.scheduler.Shutdown()
	httpErr := s.app.ShutdownWithContext(ctx)
	return errors.Join(httpErr, jobsErr)
}
