package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gradebook-risk-server-go/response"
)

// NewRouter wires the API routes. An empty origins list allows every origin.
func NewRouter(h *APIHandler, origins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))
	router.Use(response.RequestIDMiddleware())

	if h.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = h.MaxUploadBytes + multipartOverhead
	}

	api := router.Group("/api")
	{
		api.POST("/import", h.ImportWorkbook)

		api.GET("/periods", h.GetPeriods)
		api.GET("/periods/:periodId", h.GetPeriod)
		api.GET("/periods/:periodId/at-risk", h.GetAtRisk)
		api.GET("/periods/:periodId/classes/:classKey", h.GetClass)

		api.GET("/backups", h.GetBackups)
		api.GET("/ping", h.Ping)
	}
	return router
}
