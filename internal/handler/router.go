package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SvenBotha/SourceChat/internal/service"
)

// RegisterRoutes mounts the API under /api/v1 and the operational endpoints
// (/health, /metrics) at the root. topK is the default search depth.
func RegisterRoutes(app *fiber.App,
	repoSvc service.RepoService,
	codeSvc service.CodeService,
	health *HealthHandler,
	topK int,
) {
	v1 := app.Group("/api/v1")
	NewRepoHandler(repoSvc).Register(v1)
	NewChatHandler(repoSvc).Register(v1)
	NewSearchHandler(repoSvc, topK).Register(v1)
	NewFileHandler(codeSvc).Register(v1)

	health.Register(app)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
