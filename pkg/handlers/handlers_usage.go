package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/arnavshah/slot-assignment-api/pkg/database"
)

const defaultUsageDays = 30

// GetMyUsage reports the daily usage of the calling API key.
func (h *Handler) GetMyUsage(c *gin.Context) {
	raw, exists := c.Get(ctxAPIKey)
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "API Key context missing"})
		return
	}
	h.writeUsage(c, *raw.(*database.APIKey))
}

// GetUsage reports the daily usage of any key. Admin only.
func (h *Handler) GetUsage(c *gin.Context) {
	id, ok := keyID(c)
	if !ok {
		return
	}
	var key database.APIKey
	err := h.DB.WithContext(c.Request.Context()).Take(&key, id).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Key not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not load key"})
		return
	}
	h.writeUsage(c, key)
}

func (h *Handler) writeUsage(c *gin.Context, key database.APIKey) {
	days, ok := usageDays(c)
	if !ok {
		return
	}
	report, err := database.BuildUsageReport(c.Request.Context(), h.DB, key, days, time.Now())
	if err != nil {
		h.logger(c).Error("building usage report", "key_id", key.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch usage details"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// usageDays reads the optional ?days= window.
func usageDays(c *gin.Context) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return defaultUsageDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 1 || days > database.MaxUsageDays {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "days must be between 1 and " + strconv.Itoa(database.MaxUsageDays),
		})
		return 0, false
	}
	return days, true
}
