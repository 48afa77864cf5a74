package api

import (
	"github.com/gin-gonic/gin"

	"emergency-service/internal/config"
	"emergency-service/internal/logging"
	"emergency-service/internal/realtime"
)

func NewRouter(svc AlertService, hub *realtime.Hub, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(svc, hub, logger)
	r.GET("/health", h.Health)

	api := r.Group(cfg.API.BasePath)
	api.Use(RequireUser(logger))
	{
		// Emergency alerts
		emergency := api.Group("/emergency")
		emergency.POST("/alerts", h.CreateAlert)
		emergency.POST("/alerts/test", h.CreateTestAlert)
		emergency.GET("/alerts", h.ListCircleAlerts)
		emergency.GET("/alerts/mine", h.ListMyAlerts)
		emergency.GET("/alerts/:id", h.GetAlert)
		emergency.POST("/alerts/:id/respond", h.RespondToAlert)
		emergency.POST("/alerts/:id/resolve", h.ResolveAlert)
		emergency.POST("/alerts/:id/cancel", h.CancelAlert)
		emergency.GET("/alerts/:id/notifications", h.ListDeliveries)
		emergency.GET("/stats", h.GetStats)

		// Live updates
		api.GET("/ws", h.ServeWS)
	}
	return r
}
