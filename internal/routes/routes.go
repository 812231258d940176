package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/paywave/paywave/internal/auth"
	"github.com/paywave/paywave/internal/config"
	"github.com/paywave/paywave/internal/funding"
	"github.com/paywave/paywave/internal/gateway"
	"github.com/paywave/paywave/internal/identity"
	"github.com/paywave/paywave/internal/ledger"
	"github.com/paywave/paywave/internal/logging"
	"github.com/paywave/paywave/internal/metrics"
	"github.com/paywave/paywave/internal/middleware"
	"github.com/paywave/paywave/internal/notification"
	"github.com/paywave/paywave/internal/transfer"
	"github.com/paywave/paywave/internal/wallet"
	"github.com/paywave/paywave/internal/webhook"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	AMQP   *amqp.Connection
	Logger *slog.Logger
	// Prometheus receives the service collectors and backs /metrics. A private
	// registry is created when nil.
	Prometheus *prometheus.Registry
	// Gateways overrides the provider registry built from configuration.
	Gateways *gateway.Registry
}

// Setup configures middlewares and all application routes. The returned sweeper is
// not started.
func Setup(app *fiber.App, d Deps) (*transfer.Sweeper, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Prometheus == nil {
		d.Prometheus = prometheus.NewRegistry()
	}
	m := metrics.New(d.Prometheus)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New())
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	var ledgerBackend ledger.Ledger
	var identityRepo identity.Repository
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		identityRepo = identity.NewMemoryRepository()
	}
	ledgerBackend = ledger.WithMetrics(ledgerBackend, m)

	gateways := d.Gateways
	if gateways == nil {
		var err error
		if gateways, err = buildGateways(d.Cfg, m, d.Logger); err != nil {
			return nil, err
		}
	}
	provisioner, err := accountProvisioner(gateways)
	if err != nil {
		return nil, err
	}
	notifier := buildNotifier(d)

	identitySvc := identity.NewService(identityRepo, provisioner, d.Cfg.DefaultBVN, d.Logger)
	authSvc := auth.NewService(d.Cfg, identityRepo)
	walletSvc := wallet.NewService(identityRepo, ledgerBackend)
	transferSvc := transfer.NewService(gateways, ledgerBackend, identityRepo, notifier, d.Cfg.SweepAfter, d.Logger)
	fundingSvc := funding.NewService(gateways, d.Cfg.DepositGateway, ledgerBackend, identityRepo, notifier, d.Logger)
	reconciler := webhook.NewReconciler(ledgerBackend, identityRepo, notifier, d.Logger)

	authHandler := auth.NewHandler(identitySvc, authSvc)
	identityHandler := identity.NewHandler(identitySvc)
	walletHandler := wallet.NewHandler(walletSvc)
	transferHandler := transfer.NewHandler(transferSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	webhookHandler := webhook.NewHandler(reconciler, map[string]webhook.Secret{
		"monnify":  {Header: webhook.MonnifySignatureHeader, Key: d.Cfg.MonnifyWebhookSecret},
		"paystack": {Header: webhook.PaystackSignatureHeader, Key: d.Cfg.PaystackSecretKey},
	}, m, d.Logger)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identitySvc, ledgerBackend, d.Logger)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit)
	RegisterAuthRoutes(api, authHandler, rateLimiter)
	api.Get("/banks", transferHandler.Banks)
	RegisterWebhookRoutes(api, webhookHandler)

	// Protected routes
	jwtmw := middleware.JWTAuth(authSvc)
	protected := api.Group("", jwtmw)
	protected.Post("/auth/logout", authHandler.Logout)
	protected.Get("/me", identityHandler.Me)
	RegisterWalletMeRoute(protected, walletSvc, identityRepo)
	RegisterWalletRoutes(protected, walletHandler)
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterTransferRoutes(protected, transferHandler, idempotency)
	RegisterFundingRoutes(protected, fundingHandler)
	RegisterAdminRoutes(protected, identityHandler)

	return transfer.NewSweeper(transferSvc, d.Cfg.SweepSchedule, d.Logger), nil
}

func buildNotifier(d Deps) notification.Notifier {
	if d.AMQP == nil {
		return notification.NewLoggerNotifier(d.Logger)
	}
	n, err := notification.NewAMQPNotifier(d.AMQP, d.Logger)
	if err != nil {
		d.Logger.Warn("amqp notifier unavailable, logging notifications instead", slog.Any("error", err))
		return notification.NewLoggerNotifier(d.Logger)
	}
	return n
}

// accountProvisioner prefers the default gateway and falls back to Monnify, the
// provider that issues reserved accounts.
func accountProvisioner(gateways *gateway.Registry) (gateway.AccountProvisioner, error) {
	if p, err := gateways.Provisioner(""); err == nil {
		return p, nil
	}
	return gateways.Provisioner("monnify")
}

func readyContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), 2*time.Second)
}
