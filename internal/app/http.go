package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	fiberSwagger "github.com/swaggo/fiber-swagger"

	metricsHttp "logforge/internal/metrics/adapters/http/fiber"
	pipelineHttp "logforge/internal/pipeline/adapters/http/fiber"

	_ "logforge/docs"
)

// NewHTTPServer registers the query API, the run trigger, prometheus
// metrics and the swagger UI.
func NewHTTPServer(a *App) *fiber.App {
	server := fiber.New(fiber.Config{DisableStartupMessage: true})
	server.Use(recover.New())

	// metrics endpoints
	metricsHandler := metricsHttp.NewMetricsHandler(a.GetMetrics)
	server.Get("/tenants/:tenantId/metrics", metricsHandler.GetMetrics)

	// run endpoints
	runHandler := pipelineHttp.NewRunHandler(a.Runner)
	server.Post("/runs", runHandler.TriggerRun)

	server.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Swagger
	server.Get("/docs/*", fiberSwagger.WrapHandler)

	return server
}
