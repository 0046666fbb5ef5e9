package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/cratery/cratery/internal/platform/mlog"
	"github.com/cratery/cratery/internal/platform/nethttp"
)

// NewRouter builds the Fiber app: one middleware chain, one route group
// per concern, each handler resolved off the shared Handler.
func NewRouter(logger mlog.Logger, h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "cratery",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Use(nethttp.WithCorrelationID())
	app.Use(nethttp.WithHTTPLogging(logger))

	app.Get("/index/config.json", h.Config)
	app.Get("/index/*", h.IndexEntries)
	app.Get("/dl/:name/:version", h.Download)

	app.Get("/auth/login", h.Login)
	app.Get("/auth/callback", h.Callback)
	app.Post("/auth/logout", h.Logout)

	api := app.Group("/api/v1")

	api.Get("/crates", h.Auth.AuthenticateWire(), h.Search)
	api.Put("/crates/new", h.Auth.AuthenticateWire(), h.Publish)
	api.Get("/crates/:name/:version/download", h.Download)
	api.Delete("/crates/:name/:version/yank", h.Auth.AuthenticateWire(), h.Yank)
	api.Put("/crates/:name/:version/unyank", h.Auth.AuthenticateWire(), h.Unyank)
	api.Put("/crates/:name/deprecate", h.Auth.AuthenticateWire(), h.Deprecate)
	api.Get("/crates/:name/owners", h.Auth.AuthenticateWire(), h.ListOwners)
	api.Put("/crates/:name/owners", h.Auth.AuthenticateWire(), h.AddOwner)
	api.Delete("/crates/:name/owners/:userID", h.Auth.AuthenticateWire(), h.RemoveOwner)

	api.Post("/tokens", h.Auth.Authenticate(), h.CreateToken)
	api.Get("/tokens", h.Auth.Authenticate(), h.ListTokens)
	api.Delete("/tokens/:id", h.Auth.Authenticate(), h.RevokeToken)

	admin := api.Group("/admin", h.Auth.Authenticate())
	admin.Post("/users", h.CreateUser)
	admin.Get("/users", h.ListUsers)
	admin.Delete("/users/:id", h.DisableUser)
	admin.Delete("/crates/:name/:version", h.Remove)
	admin.Get("/workers", h.ListWorkers)
	admin.Post("/workers/:id/drain", h.DrainWorker)
	admin.Get("/workers/updates", h.WorkerUpdates)

	api.Get("/worker/connect", h.Connect)

	return app
}
