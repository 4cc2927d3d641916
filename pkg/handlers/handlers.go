package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/auth"
	"github.com/arnavshah/slot-assignment-api/pkg/database"
	"github.com/arnavshah/slot-assignment-api/pkg/logging"
	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

const (
	ctxAPIKey   = "apiKey"
	ctxUserID   = "userID"
	ctxUsername = "username"
)

// Handler contains dependencies for the route handlers
type Handler struct {
	DB     *gorm.DB
	Engine *scheduler.Engine
	Auth   *auth.Authenticator
	Store  *database.Repository
	// Cache is flushed when the actor directory changes. Optional.
	Cache  *database.CachingRepository
	Logger *slog.Logger
}

func (h *Handler) logger(c *gin.Context) *slog.Logger {
	if l, ok := logging.Lookup(c.Request.Context()); ok {
		return l
	}
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func bearer(c *gin.Context) string {
	token := c.GetHeader("Authorization")
	token, _ = strings.CutPrefix(token, "Bearer ")
	return token
}

// AuthMiddleware verifies the JWT token for admin routes
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := h.Auth.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// APIKeyMiddleware verifies the HMAC API key of engine routes and enforces
// the key's daily request allowance.
func (h *Handler) APIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = bearer(c)
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key required"})
			return
		}

		userID, err := h.Auth.VerifyKey(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API Key signature"})
			return
		}

		ctx := c.Request.Context()
		apiKey, err := database.FindOrCreateKey(ctx, h.DB, key, userID)
		if err != nil {
			h.logger(c).Error("loading api key", "user", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Could not load API key"})
			return
		}

		used, err := database.RequestsToday(ctx, h.DB, apiKey.ID)
		if err != nil {
			h.logger(c).Warn("reading usage", "key_id", apiKey.ID, "error", err)
		} else if apiKey.RateLimit > 0 && used >= apiKey.RateLimit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Daily request limit reached"})
			return
		}

		c.Set(ctxAPIKey, apiKey)
		c.Set(ctxUserID, userID)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(ctx, h.logger(c).With("user", userID)))
		c.Next()
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

	token, err := h.Auth.Login(c.Request.Context(), h.DB, req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	case err != nil:
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

	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if req.RateLimit == 0 {
		req.RateLimit = database.DefaultRateLimit
	}

	key := h.Auth.GenerateKey(req.Name)
	apiKey := database.APIKey{
		Key:        key,
		Name:       req.Name,
		KeyPreview: database.KeyPreview(key),
		RateLimit:  req.RateLimit,
	}

	if err := h.DB.WithContext(c.Request.Context()).Create(&apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "A key for this name already exists"})
			return
		}
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
	if err := h.DB.WithContext(c.Request.Context()).Order("id").Find(&keys).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list keys"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

// RevokeKey deletes an API key
func (h *Handler) RevokeKey(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
	res := h.DB.WithContext(c.Request.Context()).Delete(&database.APIKey{}, id)
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

// UpdateKeyLimit updates the daily request allowance of a key
func (h *Handler) UpdateKeyLimit(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
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

	res := h.DB.WithContext(c.Request.Context()).Model(&database.APIKey{}).Where("id = ?", id).Update("rate_limit", req.RateLimit)
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

// UpsertActors replaces actor directory entries and drops cached lookups.
func (h *Handler) UpsertActors(c *gin.Context) {
	var actors []models.Actor
	if err := c.ShouldBindJSON(&actors); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Store.UpsertActors(c.Request.Context(), actors); err != nil {
		h.logger(c).Error("upserting actors", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not store actors"})
		return
	}
	if h.Cache != nil {
		h.Cache.Invalidate("")
	}
	c.JSON(http.StatusOK, gin.H{"stored": len(actors)})
}

// UpsertDemandSlots validates and stores demand slots.
func (h *Handler) UpsertDemandSlots(c *gin.Context) {
	var slots []models.DemandSlot
	if err := c.ShouldBindJSON(&slots); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := scheduler.ValidateSlots(slots); err != nil {
		writeEngineError(c, err)
		return
	}
	if err := h.Store.UpsertDemandSlots(c.Request.Context(), slots); err != nil {
		h.logger(c).Error("upserting demand slots", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not store demand slots"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stored": len(slots)})
}

// ListAssignments returns the stored assignments of a location and date.
func (h *Handler) ListAssignments(c *gin.Context) {
	location, date := c.Query("location"), c.Query("date")
	if location == "" || date == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "location and date are required"})
		return
	}
	assignments, err := h.Store.ListAssignments(c.Request.Context(), location, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not list assignments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assignments": assignments})
}

// CancelAssignment marks an assignment cancelled.
func (h *Handler) CancelAssignment(c *gin.Context) {
	id := c.Param("id")
	err := h.Store.CancelAssignment(c.Request.Context(), id)
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Assignment not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not cancel assignment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Assignment cancelled"})
}

// AssignmentAudits returns the approval history of an assignment.
func (h *Handler) AssignmentAudits(c *gin.Context) {
	audits, err := h.Store.ApprovalAudits(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch audits"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits})
}

func keyID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key id"})
		return 0, false
	}
	return uint(id), true
}
