package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/nvctranslator/nvcbot/internal/errors"
	"github.com/nvctranslator/nvcbot/internal/storage"
)

// Handler handles API requests
type Handler struct {
	store storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		store: store,
	}
}

// GetStatus returns the current watermark and aggregate outcome counts
// GET /api/v1/status
func (h *Handler) GetStatus(c *gin.Context) {
	watermark, ok, err := h.store.GetWatermark(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.store.GetOutcomeStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	status := gin.H{
		"stats": stats,
	}
	if ok {
		status["watermark"] = watermark.UTC().Format(time.RFC3339)
	} else {
		status["watermark"] = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"data": status,
	})
}

// GetOutcomes returns the most recent item outcomes
// GET /api/v1/outcomes?limit=50
func (h *Handler) GetOutcomes(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			respondError(c, apperrors.NewBadRequestError("limit must be an integer between 1 and 500"))
			return
		}
		limit = n
	}

	outcomes, err := h.store.GetOutcomes(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	type outcomeJSON struct {
		ID        string    `json:"id"`
		CycleID   string    `json:"cycle_id"`
		MentionID string    `json:"mention_id"`
		Status    string    `json:"status"`
		Detail    string    `json:"detail,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	data := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		data = append(data, outcomeJSON{
			ID:        o.ID,
			CycleID:   o.CycleID,
			MentionID: o.MentionID,
			Status:    string(o.Status),
			Detail:    o.Detail,
			CreatedAt: o.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"data": data,
	})
}

// HealthCheck returns API health status
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	if appErr, ok := err.(*apperrors.AppError); ok {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeUnauthorized:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeBadRequest:
			status = http.StatusBadRequest
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
