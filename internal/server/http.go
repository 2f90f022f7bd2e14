// Package server assembles the hub's gin engine: middleware, routes, and
// handler wiring.
package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"clinic-sync/backend/internal/hub"
	hubhandler "clinic-sync/backend/internal/hub/handler"
	identityservice "clinic-sync/backend/internal/identity/service"
	"clinic-sync/backend/internal/security"
	"clinic-sync/backend/internal/server/middleware"
)

// Deps holds the hub service dependencies.
type Deps struct {
	// Auth verifies operator credentials and issues tokens.
	Auth *identityservice.AuthService
	// Tokens validates access tokens for the protected routes.
	Tokens *security.TokenProvider
	// Registry is the presence fan-out.
	Registry *hub.Registry
	// Pinger is used by /healthz readiness (e.g. *sql.DB). May be nil.
	Pinger hubhandler.Pinger
	// CORSAllowOrigins lists allowed browser origins. Empty disables CORS
	// headers.
	CORSAllowOrigins []string
}

// New builds the gin engine with all routes registered.
//
// Route → handler mapping:
//   - POST /api/v1/auth/login         → operator login
//   - POST /api/v1/auth/refresh       → token refresh
//   - GET  /api/v1/presence/stream    → SSE fan-out (bearer)
//   - POST /api/v1/presence/events    → event ingest (bearer)
//   - GET  /api/v1/presence/operators → online snapshot (bearer)
//   - GET  /healthz, GET /metrics
func New(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Prometheus())

	if len(deps.CORSAllowOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSAllowOrigins,
			AllowMethods:     []string{"GET", "POST"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Terminal-ID"},
			AllowCredentials: true,
		}))
	}

	h := hubhandler.NewServer(deps.Auth, deps.Registry, deps.Pinger)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)

	protected := api.Group("", middleware.Auth(deps.Tokens))
	protected.GET("/presence/stream", h.Stream)
	protected.POST("/presence/events", h.PublishEvent)
	protected.GET("/presence/operators", h.Operators)

	return r
}
