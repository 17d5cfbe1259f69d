package httpapi

import (
	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/httpapi/middlewares"

	"github.com/labstack/echo/v4"
)

func (a *API) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", a.handler.Health)

	limit := middlewares.NewRateLimitMiddleware(a.auth, middlewares.RateLimitConfig{
		Window:   a.cfg.RateLimitWindow,
		Buffered: a.cfg.RateLimitBuffered,
		Blob:     a.cfg.RateLimitBlob,
	})

	v1 := e.Group("/api/v1", limit)
	a.registerPublicV1Routes(v1)
	a.registerAuthV1Routes(v1)
	a.registerInternalRoutes(e)
}

func (a *API) registerPublicV1Routes(v1 *echo.Group) {
	// Blob ids are unguessable, so reads work without a token.
	v1.GET("/blobs/:id", a.handler.GetBlob)
	v1.HEAD("/blobs/:id", a.handler.GetBlob)
}

func (a *API) registerAuthV1Routes(v1 *echo.Group) {
	v1Auth := v1.Group("")
	v1Auth.Use(a.auth.Middleware)
	v1Auth.POST("/consume/:type", a.handler.Consume)
	v1Auth.DELETE("/blobs/:id", a.handler.DeleteBlob)
}

func (a *API) registerInternalRoutes(e *echo.Echo) {
	internal := e.Group("/api/internal")
	internal.Use(a.auth.Middleware, auth.RequireAdmin)
	internal.POST("/tokens", a.handler.CreateToken)
}
