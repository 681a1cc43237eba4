package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtodocs/docs"
	"rtodocs/internal/http/middleware"
	"rtodocs/internal/logging"
	"rtodocs/internal/model"
	"rtodocs/internal/service"
)

// Deps are the collaborators the HTTP layer needs. DB may be nil when the
// server runs on the in-memory repository.
type Deps struct {
	DB            Pinger
	Documents     service.DocumentService
	Verifier      middleware.TokenVerifier
	UploadLimiter *middleware.RateLimiter
	Gatherer      prometheus.Gatherer
	Log           *logging.Logger
	// SwaggerHost is the public host:port advertised in the API docs.
	SwaggerHost   string
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())

	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// swag reads SwaggerInfo on every request, so it is only written here.
	// An empty host makes the UI call the host it was loaded from.
	docs.SwaggerInfo.Host = d.SwaggerHost
	docs.SwaggerInfo.Schemes = []string{}
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api", middleware.Authenticate(d.Verifier))
	reviewers := middleware.RequireRole(model.RoleRTOOfficer, model.RoleRTOAdmin, model.RoleAuditor)
	verifiers := middleware.RequireRole(model.RoleRTOOfficer, model.RoleRTOAdmin)

	upload := []fiber.Handler{}
	if d.UploadLimiter != nil {
		upload = append(upload, d.UploadLimiter.Handler())
	}
	upload = append(upload, UploadDocument(d.Documents, d.Log))

	api.Post("/documents/upload", upload...)
	api.Get("/documents", reviewers, ListDocuments(d.Documents, d.Log))
	api.Get("/documents/entity/:entityId", ListEntityDocuments(d.Documents, d.Log))
	api.Get("/documents/:id", GetDocument(d.Documents, d.Log))
	api.Put("/documents/:id/verify", verifiers, VerifyDocument(d.Documents, d.Log))
	api.Get("/documents/:id/download", DownloadDocument(d.Documents, d.Log))
}
