package routes

import (
	"fmt"
	"strings"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/auth"
	"github.com/metlabs/metlabs_back/internal/config"
	"github.com/metlabs/metlabs_back/internal/funding"
	"github.com/metlabs/metlabs_back/internal/identity"
	"github.com/metlabs/metlabs_back/internal/ledger"
	"github.com/metlabs/metlabs_back/internal/middleware"
	"github.com/metlabs/metlabs_back/internal/notification"
	"github.com/metlabs/metlabs_back/internal/wallet"
)

const bindLockWait = 3

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Eth    ledger.ChainClient
	Logger *zap.Logger

	// Scheduler receives background jobs. Nil disables them.
	Scheduler gocron.Scheduler

	// Ledger overrides the gateway built from Eth and Cfg.
	Ledger ledger.Gateway
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	origins := strings.TrimSpace(d.Cfg.CORSOrigins)
	if origins == "" {
		origins = "*"
	}
	// Credentialed CORS (the auth_token cookie) needs explicit origins.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowCredentials: origins != "*",
	}))

	// Health
	RegisterHealthRoutes(app, d)

	// Repositories
	var (
		userRepo   identity.Repository
		resetRepo  identity.ResetRepository
		walletRepo wallet.Repository
	)
	if d.DB != nil {
		userRepo = identity.NewPostgresRepository(d.DB)
		resetRepo = identity.NewPostgresResetRepository(d.DB)
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		userRepo = identity.NewMemoryRepository()
		resetRepo = identity.NewMemoryResetRepository()
		walletRepo = wallet.NewMemoryRepository()
	}

	var locker wallet.Locker
	if d.Cache != nil {
		locker = wallet.NewRedisLocker(d.Cache, d.Cfg.BindLockTTL, bindLockWait*d.Cfg.BindLockTTL, d.Logger)
	} else {
		locker = wallet.NewLocalLocker()
	}

	gateway, err := buildLedger(d)
	if err != nil {
		return err
	}

	// Services and handlers
	tokens, err := auth.NewTokenService(d.Cfg.JWTSecret)
	if err != nil {
		return err
	}
	authSvc := auth.NewService(userRepo, tokens, auth.Options{
		TokenTTL:       d.Cfg.JWTExpiration,
		StrictSessions: d.Cfg.SessionTokenStrict,
	}, d.Logger)
	identitySvc := identity.NewService(userRepo, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)
	recovery := identity.NewRecovery(userRepo, resetRepo, notifier, d.Cfg.AppURL, d.Logger)
	walletSvc := wallet.NewService(walletRepo, userRepo, locker, d.Logger)
	fundingSvc, err := funding.NewService(gateway, walletSvc, d.Logger)
	if err != nil {
		return err
	}

	if d.Scheduler != nil && d.Cfg.BalanceSyncInterval > 0 {
		if reader, ok := gateway.(wallet.BalanceReader); ok {
			syncer := wallet.NewBalanceSyncer(walletRepo, reader, d.Logger)
			if _, err := syncer.Schedule(d.Scheduler, d.Cfg.BalanceSyncInterval); err != nil {
				return fmt.Errorf("schedule balance sync: %w", err)
			}
		}
	}

	authHandler := auth.NewHandler(authSvc, !d.Cfg.IsDev())
	identityHandler := identity.NewHandler(identitySvc, recovery)
	walletHandler := wallet.NewHandler(walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)

	// API routes
	api := app.Group("/api")
	api.Get("/hello", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "Hello from " + d.Cfg.AppName})
	})

	requireAuth := middleware.Auth(authSvc)
	var idempotent fiber.Handler
	if d.Cache != nil {
		idempotent = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	RegisterAuthRoutes(api, authHandler, identityHandler, requireAuth, middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRatePerMin))
	RegisterUserRoutes(api, requireAuth, identitySvc, walletSvc, walletHandler)
	RegisterWalletRoutes(api, requireAuth, walletHandler)
	RegisterFundingRoutes(api, requireAuth, idempotent, fundingHandler)

	d.Logger.Info("routes ready",
		zap.String("env", d.Cfg.AppEnv),
		zap.Bool("postgres", d.DB != nil),
		zap.Bool("redis", d.Cache != nil),
		zap.String("ledger", fmt.Sprintf("%T", gateway)),
	)
	return nil
}

// buildLedger picks the chain gateway. Development without an RPC endpoint
// runs against the in-process ledger.
func buildLedger(d Deps) (ledger.Gateway, error) {
	if d.Ledger != nil {
		return d.Ledger, nil
	}
	if d.Eth == nil && d.Cfg.IsDev() && strings.TrimSpace(d.Cfg.EthRPCURL) == "" {
		d.Logger.Warn("ETH_RPC_URL not set, using in-memory ledger")
		return ledger.NewInMemory(), nil
	}
	return ledger.NewEthereumGateway(d.Eth, ledger.EthereumConfig{
		PrivateKey:      d.Cfg.WalletPrivateKey,
		ContractAddress: d.Cfg.ContractAddress,
		ConfirmTimeout:  d.Cfg.LedgerConfirmTimeout,
		PollInterval:    d.Cfg.LedgerPollInterval,
	}, d.Logger)
}
