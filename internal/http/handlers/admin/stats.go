package admin

import (
	"github.com/smileref/smileref/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetStats 获取全站统计
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.AdminService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load stats", err)
		return
	}

	response.Success(c, stats)
}
