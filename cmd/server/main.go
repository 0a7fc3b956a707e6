package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"racecal-backend/internal/api"
	"racecal-backend/internal/auth"
	"racecal-backend/internal/config"
	"racecal-backend/internal/engine"
	"racecal-backend/internal/instrument"
	"racecal-backend/internal/logging"
	"racecal-backend/internal/metadata"
	"racecal-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})
	log.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("db", cfg.Database.Name).
		Msg("config loaded")

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	// 3. Create the schema for every catalog entity
	reg := metadata.MustDefault()
	if err := store.NewMigrator(db).Migrate(ctx, reg); err != nil {
		log.Error().Err(err).Msg("failed to migrate schema")
		os.Exit(1)
	}
	log.Info().Int("entities", len(reg.DescribeAll())).Msg("schema ready")

	eng := engine.New(db, reg, cfg.Engine, log)

	// 4. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler(log),
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(api.RequestLogger(log.Component("http")))

	// 5. Metrics
	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		app.Use(api.Instrument(instrument.NewMetrics(promReg)))
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	// 6. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 7. Engine routes (auth required, admin for writes)
	api.RegisterRoutes(app, api.NewHandler(eng, log), auth.AuthMiddleware(cfg.JWTSecret), auth.RequireAdmin())

	// 8. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
