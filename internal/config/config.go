package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName             = "Metlabs"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultJWTExpiration       = time.Hour
	defaultConfirmTimeout      = 2 * time.Minute
	defaultPollInterval        = 2 * time.Second
	defaultBindLockTTL         = 5 * time.Second
	defaultBalanceSyncInterval = time.Minute
	defaultAppURL              = "http://localhost:3000"
	defaultLoginRatePerMin     = 5
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret          string
	JWTExpiration      time.Duration
	SessionTokenStrict bool

	EthRPCURL            string
	ContractAddress      string
	WalletPrivateKey     string
	LedgerConfirmTimeout time.Duration
	LedgerPollInterval   time.Duration

	BindLockTTL         time.Duration
	BalanceSyncInterval time.Duration

	AppURL          string
	CORSOrigins     string
	LoginRatePerMin int
}

// Load reads configuration values from the environment and populates a Config
// instance. A .env file in the working directory is honoured when present but
// never overrides variables already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:          getEnv("APP_NAME", defaultAppName),
		AppEnv:           getEnv("APP_ENV", defaultAppEnv),
		Port:             getEnv("PORT", defaultPort),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		EthRPCURL:        os.Getenv("ETH_RPC_URL"),
		ContractAddress:  os.Getenv("CONTRACT_ADDRESS"),
		WalletPrivateKey: os.Getenv("WALLET_PRIVATE_KEY"),
		AppURL:           strings.TrimRight(getEnv("APP_URL", defaultAppURL), "/"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
	}

	var err error
	durations := []struct {
		target   *time.Duration
		key      string
		fallback time.Duration
	}{
		{&cfg.ShutdownPeriod, "SHUTDOWN_TIMEOUT", defaultShutdownDelay},
		{&cfg.IdempotencyTTL, "IDEMPOTENCY_TTL", defaultIdempotencyTTL},
		{&cfg.JWTExpiration, "JWT_EXPIRATION", defaultJWTExpiration},
		{&cfg.LedgerConfirmTimeout, "LEDGER_CONFIRM_TIMEOUT", defaultConfirmTimeout},
		{&cfg.LedgerPollInterval, "LEDGER_POLL_INTERVAL", defaultPollInterval},
		{&cfg.BindLockTTL, "BIND_LOCK_TTL", defaultBindLockTTL},
		{&cfg.BalanceSyncInterval, "BALANCE_SYNC_INTERVAL", defaultBalanceSyncInterval},
	}
	for _, d := range durations {
		if *d.target, err = getDuration(d.key, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.SessionTokenStrict, err = getBool("SESSION_TOKEN_STRICT", true); err != nil {
		return Config{}, err
	}
	if cfg.LoginRatePerMin, err = getInt("LOGIN_RATE_PER_MIN", defaultLoginRatePerMin); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.JWTExpiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be positive")
	}
	if c.LedgerConfirmTimeout <= 0 || c.LedgerPollInterval <= 0 {
		return fmt.Errorf("LEDGER_CONFIRM_TIMEOUT and LEDGER_POLL_INTERVAL must be positive")
	}
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

// IsDev reports whether in-memory fallbacks are allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getDuration accepts either KEY_SECONDS as an integer or KEY as a Go
// duration string, preferring the former.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
