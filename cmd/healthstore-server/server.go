package main

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/config"
	"github.com/healthstore/healthstore/internal/domain/dashboard"
	"github.com/healthstore/healthstore/internal/domain/inventory"
	"github.com/healthstore/healthstore/internal/domain/orders"
	"github.com/healthstore/healthstore/internal/domain/patients"
	"github.com/healthstore/healthstore/internal/domain/users"
	"github.com/healthstore/healthstore/internal/domain/vitals"
	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/blobstore"
	"github.com/healthstore/healthstore/internal/platform/cache"
	"github.com/healthstore/healthstore/internal/platform/db"
	"github.com/healthstore/healthstore/internal/platform/middleware"
	"github.com/healthstore/healthstore/internal/platform/outbox"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
	"github.com/healthstore/healthstore/internal/platform/websocket"
)

// alertACL routes realtime alerts to the roles that act on them.
var alertACL = websocket.TopicACL{
	vitals.TopicCritical:    {auth.RoleAdmin, auth.RoleDoctor},
	inventory.TopicLowStock: {auth.RoleAdmin, auth.RoleStoreManager},
}

type appDeps struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	cache    *cache.Cache
	metrics  *telemetry.Metrics
	gatherer prometheus.Gatherer
	logger   zerolog.Logger
}

type app struct {
	echo *echo.Echo
	hub  *websocket.Hub
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	})
}

func newApp(d appDeps) *app {
	cfg, pool, logger := d.cfg, d.pool, d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Tracing())
	e.Use(middleware.Metrics(d.metrics))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(authMiddleware(cfg))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	e.GET("/metrics", echo.WrapHandler(telemetry.Handler(d.gatherer)))

	tx := db.NewTxManager(pool)
	events := outbox.NewWriter()
	hub := websocket.NewHub(alertACL, logger, d.metrics)

	files := blobstore.NewService(blobstore.NewPgStore(pool), cfg.MaxUploadBytes)

	userSvc := users.NewService(users.NewRepoPG(pool), logger)

	patientSvc := patients.NewService(patients.NewDirectoryPG(pool), patients.NewRecordRepoPG(pool), tx, logger)
	patientSvc.SetFiles(files)
	patientSvc.SetEvents(events)

	medicines := inventory.NewRepoPG(pool)
	inventorySvc := inventory.NewService(medicines, tx, logger)
	inventorySvc.SetEvents(events)
	inventorySvc.SetAlerts(hub)
	inventorySvc.SetMetrics(d.metrics)

	ledger := orders.NewLedger(orders.NewRepoPG(pool), medicines, tx, patientSvc, logger)
	ledger.SetEvents(events)
	ledger.SetLowStockNotifier(inventorySvc)
	ledger.SetFiles(files)
	ledger.SetMetrics(d.metrics)

	vitalSvc := vitals.NewService(vitals.NewRepoPG(pool), tx, patientSvc, logger)
	vitalSvc.SetEvents(events)
	vitalSvc.SetAlerts(hub)
	vitalSvc.SetMetrics(d.metrics)

	dashSvc := dashboard.NewService(dashboard.NewStatsPG(pool), d.cache, logger)

	api := e.Group("/api/v1")
	users.NewHandler(userSvc).RegisterRoutes(api)
	patients.NewHandler(patientSvc).RegisterRoutes(api)
	inventory.NewHandler(inventorySvc).RegisterRoutes(api)
	orders.NewHandler(ledger).RegisterRoutes(api)
	vitals.NewHandler(vitalSvc).RegisterRoutes(api)
	dashboard.NewHandler(dashSvc).RegisterRoutes(api)
	blobstore.NewHandler(files).RegisterRoutes(api)
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(api)

	return &app{echo: e, hub: hub}
}
