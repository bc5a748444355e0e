package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/topdf/api/handler"
	"github.com/use-agent/topdf/api/middleware"
	"github.com/use-agent/topdf/config"
	"github.com/use-agent/topdf/history"
	"github.com/use-agent/topdf/metrics"
)

// Deps are the collaborators the router serves. History and Metrics may be
// nil.
type Deps struct {
	Config    *config.Config
	Runner    *handler.Runner
	History   *history.Store
	Metrics   *metrics.Metrics
	StartTime time.Time
}

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring probes always work.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(d.Config.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(d.Runner, d.StartTime))

	// Protected group: auth, then rate limit.
	protected := v1.Group("")
	if d.Config.Auth.Enabled {
		protected.Use(middleware.Auth(d.Config.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(d.Config.RateLimit))

	store := d.Runner.Store()

	// Conversions
	protected.POST("/convert", handler.PostConvert(d.Runner))
	protected.GET("/jobs/:id", handler.GetJob(store))
	protected.POST("/jobs/:id/credentials", handler.PostCredentials(store))
	protected.DELETE("/jobs/:id", handler.DeleteJob(store))
	protected.GET("/jobs/:id/pdf", handler.GetJobPDF(store))

	// History
	protected.GET("/history", handler.History(d.History))

	return r
}
