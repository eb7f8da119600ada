package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/gerrot/api/internal/middleware"
	ws "github.com/gerrot/api/internal/websocket"
)

// Routes collects everything the HTTP surface needs.
type Routes struct {
	Auth        fiber.Handler
	RateLimiter *middleware.RateLimiter
	RenderLimit int

	Render       *RenderHandler
	Artifacts    *ArtifactHandler
	PublicPrefix string
	Health       *HealthHandler
	AuthVerify   *AuthHandler
	Hub          *ws.Hub
}

// Register mounts the API on app.
func Register(app *fiber.App, r Routes) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", r.Health.Check)

	if r.AuthVerify != nil {
		app.Get("/auth/verify", r.AuthVerify.Verify)
	}

	// Artifact paths are unguessable and served publicly, as the stored
	// version URL is handed to clients as is.
	app.Get(r.PublicPrefix+"/*", r.Artifacts.Serve)

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if r.RateLimiter != nil {
		limit = r.RateLimiter.RenderLimit(r.RenderLimit)
	}

	renders := app.Group("/render-requests", r.Auth)
	renders.Post("/", limit, r.Render.Create)
	renders.Get("/:jobId", r.Render.Status)

	projects := app.Group("/projects", r.Auth)
	projects.Get("/:projectId/versions/:versionId/export-pdf", limit, r.Render.ExportPDF)
	projects.Post("/:projectId/versions/:versionId/export-pdf", limit, r.Render.ExportPDF)

	if r.Hub != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/notifications", r.Auth, websocket.New(func(c *websocket.Conn) {
			userID, _ := c.Locals("userId").(string)
			r.Hub.HandleConnection(c, userID)
		}))
	}
}
