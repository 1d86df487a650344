package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/escrowhub/escrowhub/internal/config"
	"github.com/escrowhub/escrowhub/internal/escrow"
	"github.com/escrowhub/escrowhub/internal/gateway"
	"github.com/escrowhub/escrowhub/internal/middleware"
	"github.com/escrowhub/escrowhub/internal/notification"
	"github.com/escrowhub/escrowhub/internal/store"
	"github.com/escrowhub/escrowhub/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes. A nil DB pool
// selects the in-memory fallback store; a nil Cache disables idempotency.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var ledgerStore store.Store
	if d.DB != nil {
		pg := store.NewPostgres(d.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		ledgerStore = pg
	} else {
		d.Logger.Warn("no database configured, using in-memory store")
		ledgerStore = store.NewMemory()
	}

	notifier := notification.NewLoggerNotifier(d.Logger)
	walletSvc := wallet.NewService(ledgerStore, gateway.Static{}, d.Logger)
	escrowSvc := escrow.NewService(ledgerStore, notifier, d.Logger)

	walletHandler := wallet.NewHandler(walletSvc)
	escrowHandler := escrow.NewHandler(escrowSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterEscrowRoutes(api, escrowHandler)

	return nil
}
