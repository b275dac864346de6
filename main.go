package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"circle-progression-system/catalog"
	"circle-progression-system/config"
	"circle-progression-system/database"
	"circle-progression-system/handlers"
	"circle-progression-system/logger"
	"circle-progression-system/middleware"
	"circle-progression-system/services"
	"circle-progression-system/utils"
	"circle-progression-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	gormLogger "gorm.io/gorm/logger"
)

func main() {
	cfg, warnings, err := config.Load()
	if err != nil {
		// no logger yet
		os.Stderr.WriteString("❌ " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv)
	if err != nil {
		os.Stderr.WriteString("❌ failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()
	for _, w := range warnings {
		log.Warn("⚠️  " + w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormLevel := gormLogger.Warn
	if cfg.IsProduction() {
		gormLevel = gormLogger.Error
	}
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL, gormLevel)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", "error", err)
	}

	cat, err := loadCatalog(cfg.UnlockablesFile)
	if err != nil {
		log.Fatal("failed to load unlockables catalog", "error", err)
	}
	log.Info("📚 catalog loaded", "unlockables", cat.Len())

	clock := clockwork.NewRealClock()
	opts := services.EngineOptions{
		Clock:             clock,
		PuzzleSalt:        cfg.PuzzleDigestSalt,
		PuzzleMaxAttempts: cfg.PuzzleMaxAttempts,
		PremiumURLTTL:     cfg.R2.URLTTL,
	}

	if cfg.RedisAddr != "" {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("⚠️  redis unavailable, progress cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer rdb.Close()
			opts.Cache = services.NewRedisProgressCache(rdb, cfg.ProgressCacheTTL, log)
		}
	}

	if cfg.R2.Enabled() {
		r2, err := utils.NewR2Client(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket)
		if err != nil {
			log.Fatal("failed to initialize R2 client", "error", err)
		}
		opts.Presigner = r2
	}

	engine := services.NewEngine(db, cat, log, opts)

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed, except health and metrics
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, log, "/healthz", "/metrics"))

	allowedOrigins := strings.Split(cfg.AllowedOrigins, ",")
	for i, origin := range allowedOrigins {
		allowedOrigins[i] = strings.TrimSpace(origin)
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOrigins, ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "cause": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.SetupRoutes(app, engine, log, cfg.RateLimitWindow)

	scheduler, err := workers.NewMaintenanceScheduler(engine.Puzzles, engine.Coordinator, clock, log)
	if err != nil {
		log.Fatal("failed to create maintenance scheduler", "error", err)
	}
	scheduler.Start()

	if cfg.SyncServiceURL != "" {
		workers.NewMemberSyncWorker(db, clock, cfg.SyncServiceURL, "/api/v1/public/profiles", cfg.GatewayToken, log).Start(ctx)
	} else {
		log.Warn("⚠️  SYNC_SERVICE_URL not set, member sync disabled; leaderboard shows user ids")
	}

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	log.Info("✅ Circle progression service running", "port", cfg.Port, "db_driver", cfg.DBDriver, "premium", engine.Premium != nil)

	<-ctx.Done()
	log.Info("Shutting down server...")

	if err := scheduler.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", "error", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("server shutdown", "error", err)
	}
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.LoadDefault()
	}
	return catalog.LoadFile(path)
}
