package handlers

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/arnavshah/coordination-api/internal/logging"
	"github.com/arnavshah/coordination-api/pkg/auth"
	"github.com/arnavshah/coordination-api/pkg/coordination"
	"github.com/arnavshah/coordination-api/pkg/database"
	"github.com/arnavshah/coordination-api/pkg/lock"
	"github.com/arnavshah/coordination-api/pkg/models"
	"github.com/arnavshah/coordination-api/pkg/notify"
	"github.com/arnavshah/coordination-api/pkg/ratelimit"
	"github.com/arnavshah/coordination-api/pkg/scheduler"
	"github.com/arnavshah/coordination-api/pkg/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed static/*
var staticEmbed embed.FS

// Handler contains dependencies for the route handlers
type Handler struct {
	DB      *gorm.DB
	Auth    *auth.Authenticator
	Service *coordination.Service
	Hub     *notify.Hub
	Limiter *ratelimit.Limiter
	Logger  *slog.Logger

	AdminUsername  string
	AdminPassword  string
	AllowedOrigins []string
}

func (h *Handler) logger(c *gin.Context) *slog.Logger {
	return logging.FromContext(c.Request.Context(), h.Logger)
}

// RequestLogger tags every request with an id and carries a request scoped
// logger in the request context
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		base := h.Logger
		if base == nil {
			base = slog.Default()
		}
		logger := base.With("request_id", requestID)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()
		logger.Debug("request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func bearer(value string) string {
	if len(value) > 7 && value[:7] == "Bearer " {
		return value[7:]
	}
	return value
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		claims, err := h.Auth.VerifyToken(bearer(token))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the API key for coordination routes using HMAC.
// Browsers cannot set headers on websocket upgrades, so the api_key query
// parameter is accepted as well.
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := bearer(c.GetHeader("Authorization"))
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			c.Abort()
			return
		}

		userID, err := h.Auth.VerifyHMACKey(key)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			c.Abort()
			return
		}

		// Fetch or create API key record to track usage
		apiKey, err := h.Auth.TouchAPIKey(h.DB, key, userID)
		if errors.Is(err, auth.ErrKeyRevoked) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API Key revoked"})
			c.Abort()
			return
		}
		if err != nil {
			h.logger(c).Error("load api key", "user", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load API key"})
			c.Abort()
			return
		}

		c.Set("apiKey", apiKey)
		c.Set("userID", userID)
		c.Next()
	}
}

// apiKeyLimit feeds the rate limiter with the key resolved by APIKeyMiddleware
func apiKeyLimit(c *gin.Context) (string, int, bool) {
	raw, exists := c.Get("apiKey")
	if !exists {
		return "", 0, false
	}
	apiKey := raw.(*database.APIKey)
	return apiKey.Key, apiKey.RateLimit, true
}

// writeError maps domain errors onto HTTP status codes
func (h *Handler) writeError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.FieldErrors})
	case errors.Is(err, scheduler.ErrInvalidArgument),
		errors.Is(err, scheduler.ErrMissingRequirement),
		errors.Is(err, scheduler.ErrMalformedTime):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Negotiation not found"})
	case errors.Is(err, store.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Member is not part of this negotiation"})
	case errors.Is(err, store.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Negotiation is no longer active"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Negotiation was updated concurrently, retry"})
	case errors.Is(err, lock.ErrNotAcquired):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Room is busy, retry"})
	default:
		h.logger(c).Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// usageDelta is what one request adds to its key's daily usage row
type usageDelta struct {
	Rooms        int
	Members      int
	Negotiations int
	Responses    int
}

// RecordUsage records API usage in the database using an efficient upsert
func (h *Handler) RecordUsage(c *gin.Context, d usageDelta) {
	apiKeyRaw, exists := c.Get("apiKey")
	if !exists {
		return
	}
	apiKey := apiKeyRaw.(*database.APIKey)

	today := time.Now().Format("2006-01-02")

	// Use OnConflict for a single-query upsert (supported by both Postgres and SQLite)
	err := h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key_id"}, {Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"request_count": gorm.Expr("request_count + ?", 1),
			"total_rooms":   gorm.Expr("total_rooms + ?", d.Rooms),
			"total_members": gorm.Expr("total_members + ?", d.Members),
			"negotiations":  gorm.Expr("negotiations + ?", d.Negotiations),
			"responses":     gorm.Expr("responses + ?", d.Responses),
		}),
	}).Create(&database.APIUsage{
		KeyID:        apiKey.ID,
		Date:         today,
		RequestCount: 1,
		TotalRooms:   d.Rooms,
		TotalMembers: d.Members,
		Negotiations: d.Negotiations,
		Responses:    d.Responses,
	}).Error
	if err != nil {
		h.logger(c).Warn("record usage", "key", apiKey.ID, "error", err)
	}
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user database.MasterUser
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Auth.CreateToken(user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

// GenerateKey creates a new API key using the HMAC strategy
func (h *Handler) GenerateKey(c *gin.Context) {
	var req struct {
		Name      string `json:"name"`
		RateLimit int    `json:"rate_limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if req.RateLimit <= 0 {
		req.RateLimit = auth.DefaultRateLimit
	}

	key := h.Auth.GenerateHMACKey(req.Name)
	apiKey := database.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: auth.KeyPreview(key),
		RateLimit:  req.RateLimit,
	}

	if err := h.DB.Create(&apiKey).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create key record"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":   apiKey.ID,
		"name": req.Name,
		"key":  key,
	})
}

// ListKeys returns all API keys
func (h *Handler) ListKeys(c *gin.Context) {
	var keys []database.APIKey
	if err := h.DB.Order("id").Find(&keys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey soft deletes an API key so its signature is refused from now on
func (h *Handler) RevokeKey(c *gin.Context) {
	res := h.DB.Where("id = ?", c.Param("id")).Delete(&database.APIKey{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not delete key"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Key revoked"})
}

// UpdateKeyLimit updates the rate limit for a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id := c.Param("id")
	var req struct {
		RateLimit int `json:"rate_limit" form:"rate_limit"`
	}

	// Try JSON first, then Form/Query
	if err := c.ShouldBindJSON(&req); err != nil {
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rate_limit is required"})
			return
		}
	}

	if req.RateLimit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate limit"})
		return
	}

	res := h.DB.Model(&database.APIKey{}).Where("id = ?", id).Update("rate_limit", req.RateLimit)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not update key limit"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rate limit updated successfully"})
}

// GetUsage returns usage stats for a key
func (h *Handler) GetUsage(c *gin.Context) {
	id := c.Param("id")
	var usage []database.APIUsage
	h.DB.Where("key_id = ?", id).Order("date desc").Limit(30).Find(&usage)
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

// AdminInterface serves the admin web interface from embedded files
func (h *Handler) AdminInterface(c *gin.Context) {
	if err := h.Auth.EnsureAdminExists(h.DB, h.AdminUsername, h.AdminPassword, h.logger(c)); err != nil {
		h.logger(c).Warn("ensure admin", "error", err)
	}

	data, err := staticEmbed.ReadFile("static/index.html")
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "static/index.html not found in embedded FS"})
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}

// GetStaticFS returns the embedded filesystem for static assets
func (h *Handler) GetStaticFS() http.FileSystem {
	sub, err := fs.Sub(staticEmbed, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
