package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAppName        = "Paywave"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultAccessTTL      = 7 * 24 * time.Hour
	defaultRefreshTTL     = 30 * 24 * time.Hour
	defaultGatewayTimeout = 30 * time.Second

	// devJWTSecret signs tokens in development when JWT_SECRET is unset.
	devJWTSecret = "paywave-dev-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string        `mapstructure:"APP_NAME"`
	AppEnv          string        `mapstructure:"APP_ENV"`
	Port            string        `mapstructure:"PORT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	RabbitMQURL     string        `mapstructure:"RABBITMQ_URL"`
	ShutdownPeriod  time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL  time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	RefreshSecret   string        `mapstructure:"REFRESH_SECRET"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	LoginRateLimit  int           `mapstructure:"LOGIN_RATE_LIMIT"`

	DefaultGateway string        `mapstructure:"DEFAULT_GATEWAY"`
	DepositGateway string        `mapstructure:"DEPOSIT_GATEWAY"`
	GatewayTimeout time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	DefaultBVN     string        `mapstructure:"DEFAULT_BVN"`

	MonnifyBaseURL       string `mapstructure:"MONNIFY_BASE_URL"`
	MonnifyAPIKey        string `mapstructure:"MONNIFY_API_KEY"`
	MonnifySecretKey     string `mapstructure:"MONNIFY_SECRET_KEY"`
	MonnifyContractCode  string `mapstructure:"MONNIFY_CONTRACT_CODE"`
	MonnifyWalletAccount string `mapstructure:"MONNIFY_WALLET_ACCOUNT"`
	MonnifyWebhookSecret string `mapstructure:"MONNIFY_WEBHOOK_SECRET"`
	MonnifyPreferredBank string `mapstructure:"MONNIFY_PREFERRED_BANK"`

	PaystackBaseURL   string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey string `mapstructure:"PAYSTACK_SECRET_KEY"`

	SweepSchedule string        `mapstructure:"SWEEP_SCHEDULE"`
	SweepAfter    time.Duration `mapstructure:"SWEEP_AFTER"`
}

var keys = []string{
	"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
	"SHUTDOWN_TIMEOUT", "IDEMPOTENCY_TTL", "JWT_SECRET", "REFRESH_SECRET", "ACCESS_TOKEN_TTL",
	"REFRESH_TOKEN_TTL", "LOGIN_RATE_LIMIT", "DEFAULT_GATEWAY", "DEPOSIT_GATEWAY",
	"GATEWAY_TIMEOUT", "DEFAULT_BVN", "MONNIFY_BASE_URL", "MONNIFY_API_KEY",
	"MONNIFY_SECRET_KEY", "MONNIFY_CONTRACT_CODE", "MONNIFY_WALLET_ACCOUNT",
	"MONNIFY_WEBHOOK_SECRET", "MONNIFY_PREFERRED_BANK", "PAYSTACK_BASE_URL", "PAYSTACK_SECRET_KEY", "SWEEP_SCHEDULE",
	"SWEEP_AFTER",
}

// Load reads configuration values from the environment (and an optional .env file)
// and populates a Config instance.
func Load() (Config, error) {
	// .env is optional; real environment variables always win.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay)
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	v.SetDefault("ACCESS_TOKEN_TTL", defaultAccessTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", defaultRefreshTTL)
	v.SetDefault("LOGIN_RATE_LIMIT", 5)
	v.SetDefault("DEFAULT_GATEWAY", "monnify")
	v.SetDefault("DEPOSIT_GATEWAY", "paystack")
	v.SetDefault("GATEWAY_TIMEOUT", defaultGatewayTimeout)
	v.SetDefault("MONNIFY_BASE_URL", "https://sandbox.monnify.com")
	v.SetDefault("MONNIFY_PREFERRED_BANK", "035")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("SWEEP_AFTER", 2*time.Minute)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.DefaultGateway = strings.ToLower(cfg.DefaultGateway)
	cfg.DepositGateway = strings.ToLower(cfg.DepositGateway)
	if cfg.JWTSecret == "" && cfg.IsDev() {
		cfg.JWTSecret = devJWTSecret
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.JWTSecret
	}
	if cfg.MonnifyWebhookSecret == "" {
		cfg.MonnifyWebhookSecret = cfg.MonnifySecretKey
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return errors.New("REDIS_URL must be set")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	return nil
}

// IsDev reports whether the service runs in a local/development environment where
// in-memory backends are acceptable.
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
