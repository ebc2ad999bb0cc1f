package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletledger/internal/analytics"
	"github.com/congo-pay/walletledger/internal/auth"
	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/middleware"
	"github.com/congo-pay/walletledger/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Notifier notification.Notifier
}

// ledgerStore is satisfied by both the Postgres and in-memory stores.
type ledgerStore interface {
	ledger.Store
	analytics.Store
	identity.Repository
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var store ledgerStore
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		d.Logger.Warn("DATABASE_URL not set, using in-memory ledger store")
		store = ledger.NewInMemory()
	}

	engine := ledger.NewEngine(store, ledger.WithNotifier(d.Notifier), ledger.WithLogger(d.Logger))
	tokens := auth.NewService(d.Cfg.JWTSecret, d.Cfg.TokenTTL, d.Cfg.AppName)
	identitySvc := identity.NewService(store, d.Cfg.DefaultCurrency, d.Logger)
	analyticsSvc := analytics.NewService(store, d.Logger)

	ledgerHandler := ledger.NewHandler(engine)
	identityHandler := identity.NewHandler(identitySvc, tokens)
	analyticsHandler := analytics.NewHandler(analyticsSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identityHandler)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(tokens))
	RegisterProfileRoutes(protected, identityHandler)

	guards := []fiber.Handler{middleware.TransferRateLimit(d.Cache, d.Cfg.TransferRateLimit, d.Logger)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterWalletRoutes(protected, ledgerHandler, guards...)
	RegisterAnalyticsRoutes(protected, analyticsHandler)

	return nil
}
