package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"receiving-backend/internal/audit"
	"receiving-backend/internal/auth"
	"receiving-backend/internal/config"
	"receiving-backend/internal/database"
	"receiving-backend/internal/draft"
	"receiving-backend/internal/erp"
	"receiving-backend/internal/models"
	"receiving-backend/internal/provider"
	"receiving-backend/internal/receiving"
	"receiving-backend/internal/report"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := initLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := database.Init(cfg, logger); err != nil {
		logger.Fatal("database", zap.Error(err))
	}

	store, err := draft.Open(cfg.DraftDir,
		draft.WithDebounce(cfg.DraftDebounce),
		draft.WithMaxAge(cfg.DraftMaxAge),
		draft.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("draft store", zap.Error(err))
	}

	gw := erp.NewGateway(database.DB, logger)
	recorder := audit.NewRecorder(database.DB, logger)

	manager := receiving.NewManager(receiving.Deps{
		Gateway:      gw,
		Strategies:   buildRegistry(cfg, gw),
		Drafts:       store,
		Backups:      store,
		Negative:     negativeCache(cfg, logger),
		Log:          logger,
		Audit:        recorder.Record,
		DedupeWindow: cfg.ScanDedupeWindow,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var e *fiber.Error
			if errors.As(err, &e) {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			logger.Error("unexpected error", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error inesperado del servidor",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-supervisor", auth.RegisterSupervisorHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())
	protected.Post("/auth/operators", auth.RequireRole(models.RoleSupervisor), auth.CreateOperatorHandler())

	// Sessions
	rcv := protected.Group("/receiving")
	rcv.Post("/sessions", receiving.StartSessionHandler(manager))
	rcv.Post("/sessions/restore", receiving.RestoreSessionHandler(manager))
	rcv.Get("/session", receiving.GetSessionHandler(manager))
	rcv.Delete("/session", receiving.CloseSessionHandler(manager))

	// Orders
	rcv.Post("/session/orders", receiving.CombineOrderHandler(manager))
	rcv.Delete("/session/orders/:id", receiving.RemoveOrderHandler(manager))

	// Scanning and line edits
	rcv.Post("/session/scan", receiving.ScanHandler(manager))
	rcv.Put("/session/lines/:article/quantity", receiving.SetQuantityHandler(manager))
	rcv.Post("/session/lines/:article/adjust", receiving.AdjustHandler(manager))
	rcv.Post("/session/lines/:article/fill", receiving.FillHandler(manager))
	rcv.Put("/session/lines/:order/:article/devolution", receiving.SetDevolutionHandler(manager))
	rcv.Put("/session/lines/:order/:article/backorder", receiving.SetBackorderHandler(manager))
	rcv.Post("/session/lines/:order/:article/incidents", receiving.AddIncidentHandler(manager))
	rcv.Post("/session/invoice", receiving.AttachInvoiceHandler(manager))
	rcv.Post("/session/boxes/choose", receiving.ChooseBoxHandler(manager))

	// Commit
	rcv.Post("/session/commit", receiving.CommitHandler(manager))
	rcv.Post("/session/commit/retry", receiving.RetryCommitHandler(manager))
	rcv.Get("/session/report.xlsx", report.SessionReportHandler(manager))

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler(database.DB))

	go func() {
		logger.Info("server listening", zap.String("port", cfg.HTTPPort))
		if err := app.Listen(":" + cfg.HTTPPort); err != nil {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	// Sessions flush their drafts before the store closes.
	if err := manager.Shutdown(); err != nil {
		logger.Error("flush sessions", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("close draft store", zap.Error(err))
	}
}

func initLogger(level, format string) (*zap.Logger, error) {
	var zapCfg zap.Config
	if format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return zapCfg.Build()
}

func buildRegistry(cfg *config.Config, gw *erp.Gateway) *provider.Registry {
	reg := provider.NewRegistry(provider.Passthrough{})
	for supplier, name := range cfg.SupplierStrategies {
		switch name {
		case "model":
			reg.Register(supplier, provider.ModelGrouping{PrefixLen: cfg.ModelPrefixLen, Validator: gw})
		case "batch":
			reg.Register(supplier, provider.BatchValidated{Validator: gw})
		default:
			reg.Register(supplier, provider.Passthrough{})
		}
	}
	return reg
}

// negativeCache shares misses through Redis when configured and reachable.
func negativeCache(cfg *config.Config, logger *zap.Logger) func(string) receiving.NegativeCache {
	if cfg.RedisAddr == "" {
		ttl := cfg.NegativeCacheTTL
		return func(string) receiving.NegativeCache { return receiving.NewMemoryNegativeCache(ttl) }
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unavailable, negative cache stays in memory", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rdb.Close()
		ttl := cfg.NegativeCacheTTL
		return func(string) receiving.NegativeCache { return receiving.NewMemoryNegativeCache(ttl) }
	}
	return func(tenant string) receiving.NegativeCache {
		return receiving.NewRedisNegativeCache(rdb, tenant, cfg.NegativeCacheTTL, logger)
	}
}
