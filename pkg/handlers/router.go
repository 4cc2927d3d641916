package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arnavshah/slot-assignment-api/pkg/logging"
	"github.com/arnavshah/slot-assignment-api/pkg/middleware"
)

// Version is reported by the index route.
const Version = "1.0.0"

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Limiter throttles /api routes per client. Nil disables throttling.
	Limiter *middleware.ClientRateLimiter
	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Name     string
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.RequestLogger())

	name := opts.Name
	if name == "" {
		name = "Slot Assignment API"
	}
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": name,
			"version": Version,
		})
	})
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(h.AuthMiddleware())
	{
		admin.POST("/keys", h.GenerateKey)
		admin.GET("/keys", h.ListKeys)
		admin.PUT("/keys/:id", h.UpdateKeyLimit)
		admin.DELETE("/keys/:id", h.RevokeKey)
		admin.GET("/usage/:id", h.GetUsage)

		admin.PUT("/actors", h.UpsertActors)
		admin.PUT("/slots", h.UpsertDemandSlots)
		admin.GET("/assignments", h.ListAssignments)
		admin.POST("/assignments/:id/cancel", h.CancelAssignment)
		admin.GET("/assignments/:id/audits", h.AssignmentAudits)
	}

	api := r.Group("/api")
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter))
	}
	api.Use(h.APIKeyMiddleware())
	{
		api.POST("/assignments/run", h.RunAssignment)
		api.POST("/assignments/run/csv", h.RunAssignmentCSV)
		api.POST("/conflicts/detect", h.DetectConflicts)
		api.POST("/validate", h.ValidateInput)
		api.GET("/usage", h.GetMyUsage)
	}

	return r
}

// RequestLogger attaches a request scoped logger to the request context and
// logs one line per request.
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		base := h.Logger
		if base == nil {
			base = slog.Default()
		}
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := base.With("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.ContextWithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
