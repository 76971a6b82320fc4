package main

import (
	"fmt"
	"log"
	"os"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/synthsara/codex/internal/pkg/cache"
	"github.com/synthsara/codex/internal/pkg/database"
	"github.com/synthsara/codex/internal/pkg/env"
	"github.com/synthsara/codex/internal/pkg/router"
)

const openAPIFile = "public/docs/v1/openapi.yml"

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "3000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",     // Current directory
		"../../", // From cmd/codex to project root
	}
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + openAPIFile); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		AppName:           "codex",
		EnablePrintRoutes: env.IsDev(),
		BodyLimit:         1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + openAPIFile,
			Path:     "v1",
		}))
	} else {
		log.Printf("Warning: %s not found, API docs disabled", openAPIFile)
	}

	// ROUTER
	router.InstallRouter(app)

	return app
}
