package main

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/lensconv/internal/middleware"
)

func setupRouter(api *API) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(api.log))

	// Health check and metrics
	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	if rps := api.cfg.RateLimit.RequestsPerSecond; rps > 0 {
		rl := middleware.NewRateLimiter(rps, api.cfg.RateLimit.Burst)
		go rl.Cleanup(10*time.Minute, api.stop)
		v1.Use(middleware.RateLimit(rl))
	}
	{
		// One-shot conversion
		v1.POST("/convert", api.convert)

		// Scenes
		v1.POST("/scenes/upload", api.uploadScene)
		v1.GET("/scenes", api.listScenes)
		v1.GET("/scenes/:id", api.getScene)
		v1.DELETE("/scenes/:id", api.deleteScene)

		// Jobs
		v1.POST("/scenes/:id/convert", api.createConvertJob)
		v1.GET("/scenes/:id/jobs", api.getSceneJobs)
		v1.GET("/jobs/:id", api.getJob)
		v1.POST("/jobs/:id/retry", api.retryJob)

		// Outputs
		v1.GET("/scenes/:id/outputs", api.getSceneOutputs)
		v1.GET("/jobs/:id/outputs", api.getJobOutputs)

		// Monitoring
		v1.GET("/monitoring", api.getMonitoring)
	}

	return router
}
