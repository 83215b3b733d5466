package router

import (
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupHealthRoutes registers health, version and metrics endpoints
func (r *Router) setupHealthRoutes() {
	r.Engine.GET("/health", gin.WrapF(r.Container.Health.HTTPHandler()))
	r.Engine.GET("/api/health", gin.WrapF(r.Container.Health.HTTPHandler()))

	r.Engine.GET("/version", func(c *gin.Context) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		c.JSON(200, gin.H{
			"env":         r.Config.Server.Env,
			"subscribers": r.Container.Hub.Clients(),
			"memory": gin.H{
				"alloc_mb":  memStats.Alloc / 1024 / 1024,
				"gc_cycles": memStats.NumGC,
			},
		})
	})

	// promauto collectors and the otel prometheus exporter share the default registry
	r.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
