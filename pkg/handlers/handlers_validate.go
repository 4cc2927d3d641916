package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// ValidateInput checks a run request without running the engine
func (h *Handler) ValidateInput(c *gin.Context) {
	var req models.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	cfg := h.Engine.Config()
	err := scheduler.ValidateRequest(req)
	if err == nil {
		cfg, err = cfg.WithPreferences(req.Preferences)
	}
	if err != nil {
		body := gin.H{"valid": false, "error": err.Error()}
		var vErr *scheduler.ValidationError
		if errors.As(err, &vErr) {
			body["fields"] = vErr.FieldErrors
		}
		c.JSON(http.StatusOK, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"effective": gin.H{
			"weights":               cfg.Weights,
			"autoApprovalThreshold": cfg.AutoApprovalThreshold,
			"confidenceFloor":       cfg.ConfidenceFloor,
			"confidenceCap":         cfg.ConfidenceCap,
		},
	})
}
