package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the service info route
const Version = "1.0.0"

// NewRouter builds the gin engine shared by the server binary and the
// serverless entrypoint
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), h.RequestLogger())

	// Admin interface - serve static files from embedded FS
	r.StaticFS("/static", h.GetStaticFS())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Coordination Negotiation API",
			"version": Version,
		})
	})
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := h.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/admin", h.AdminInterface)
	r.POST("/admin/login", h.Login)

	// Admin Endpoints
	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)
	}

	// Coordination Endpoints
	api := r.Group("/api")
	api.Use(h.APIKeyMiddleware())
	if h.Limiter != nil {
		api.Use(h.Limiter.Middleware(apiKeyLimit))
	}
	{
		api.POST("/negotiations/preview", h.PreviewNegotiation)
		api.GET("/negotiations/:id", h.GetNegotiation)
		api.POST("/negotiations/:id/respond", h.RespondNegotiation)
		api.POST("/negotiations/:id/messages", h.PostMessage)
		api.GET("/negotiations/:id/pdf", h.NegotiationPDF)

		api.POST("/rooms/:roomId/schedule", h.ScheduleRoom)
		api.GET("/rooms/:roomId/negotiations", h.ListRoomNegotiations)
		api.GET("/rooms/:roomId/ws", h.RoomEvents)

		api.POST("/validate", h.ValidateRoom)
		api.GET("/usage", h.GetMyUsage)
	}

	return r
}
