package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/parleyhq/parley/app/controllers"
	"github.com/parleyhq/parley/internal/pkg/archive"
	"github.com/parleyhq/parley/internal/pkg/cache"
	"github.com/parleyhq/parley/internal/pkg/database"
	"github.com/parleyhq/parley/internal/pkg/env"
	"github.com/parleyhq/parley/internal/pkg/middleware"
	"github.com/parleyhq/parley/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	if env.IsDev() {
		log.SetLevel(log.LevelDebug)
	}
	database.SetupDatabase()
	cache.SetupCache()

	verifier, err := middleware.NewOIDCVerifierFromEnv(context.Background())
	if err != nil {
		log.Fatalf("OIDC provider discovery failed: %v", err)
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // 1 MiB, chat payloads are small
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// Local tool capabilities available to assistant runs.
	controllers.RegisterTool("current_time", func(ctx context.Context, arguments string) (string, error) {
		out, err := json.Marshal(map[string]string{"now": time.Now().UTC().Format(time.RFC3339)})
		return string(out), err
	})

	// ROUTER
	router.InstallRouter(app, verifier)

	if archive.Enabled() {
		writer, err := archive.NewS3WriterFromEnv(context.Background())
		if err != nil {
			log.Fatalf("transcript archive misconfigured: %v", err)
		}
		archive.NewWorker(writer, 2).Start()
	}

	return app
}
