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

	"github.com/frantchessico/prato-frio-filme/internal/analytics"
	"github.com/frantchessico/prato-frio-filme/internal/auth"
	"github.com/frantchessico/prato-frio-filme/internal/config"
	"github.com/frantchessico/prato-frio-filme/internal/donation"
	"github.com/frantchessico/prato-frio-filme/internal/identity"
	"github.com/frantchessico/prato-frio-filme/internal/middleware"
	"github.com/frantchessico/prato-frio-filme/internal/mpesa"
	"github.com/frantchessico/prato-frio-filme/internal/session"
	"github.com/frantchessico/prato-frio-filme/internal/watch"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// watch service so main can drain viewing sessions on shutdown.
func Setup(app *fiber.App, d Deps) (*watch.Service, error) {
	// Memory backends only carry development; production refuses to boot
	// without the real stores.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.GeoBlock(d.Cfg.AllowedCountry, "/blocked", d.Cfg.GeoBlockEnabled))

	RegisterHealthRoutes(app, d)
	RegisterBlockedRoute(app)

	// Repositories
	var (
		userRepo      identity.Repository
		donationRepo  donation.Repository
		analyticsRepo analytics.Repository
		sessions      session.Store
	)
	if d.DB != nil {
		userRepo = identity.NewPostgresRepository(d.DB)
		donationRepo = donation.NewPostgresRepository(d.DB)
		analyticsRepo = analytics.NewPostgresRepository(d.DB)
		sessions = session.NewRedisPostgresStore(d.DB, d.Cache)
	} else {
		userRepo = identity.NewMemoryRepository()
		donationRepo = donation.NewMemoryRepository()
		analyticsRepo = analytics.NewMemoryRepository()
		sessions = session.NewMemoryStore()
	}

	// Payment gateway: the live client needs provider credentials; without
	// them (dev) every charge is approved locally.
	var gateway mpesa.Gateway
	if d.Cfg.MpesaAPIKey != "" && d.Cfg.MpesaPublicKey != "" {
		gateway = mpesa.NewClient(d.Cfg.MpesaAPIKey, d.Cfg.MpesaPublicKey,
			d.Cfg.MpesaServiceProviderCode, d.Cfg.MpesaHost, d.Logger)
	} else {
		if !d.Cfg.IsDev() {
			return nil, fmt.Errorf("mpesa credentials are required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		gateway = mpesa.StaticGateway{}
	}

	// Services and handlers
	eventsSvc := analytics.NewService(analyticsRepo, d.Logger)
	identitySvc := identity.NewService(userRepo)
	issuer := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.TokenTTL)
	authSvc := auth.NewService(identitySvc, issuer, sessions, eventsSvc, d.Logger)
	donationSvc := donation.NewService(donationRepo, userRepo, gateway, eventsSvc,
		d.Logger, d.Cfg.DonationMinimum, d.Cfg.DonationValidity)
	watchSvc := watch.NewService(donationSvc, eventsSvc, d.Logger, d.Cfg.PreviewLimit)

	authHandler := auth.NewHandler(authSvc)
	donationHandler := donation.NewHandler(donationSvc)
	analyticsHandler := analytics.NewHandler(eventsSvc)
	watchHandler := watch.NewHandler(watchSvc)

	bearer := middleware.BearerAuth(issuer, userRepo)
	optionalBearer := middleware.OptionalBearerAuth(issuer, userRepo)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAuthRoutes(api, authHandler, bearer, rateLimiter)
	RegisterDonationRoutes(api, donationHandler, bearer)
	RegisterWatchRoutes(api, watchHandler, optionalBearer)
	RegisterAnalyticsRoutes(api, analyticsHandler, bearer)

	return watchSvc, nil
}
