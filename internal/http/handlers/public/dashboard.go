package public

import (
	"strconv"
	"strings"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/repository"

	"github.com/gin-gonic/gin"
)

// GetDashboard 获取当前用户的推荐看板统计
func (h *Handler) GetDashboard(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	stats, err := h.ReferralService.Stats(c.Request.Context(), uid)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load dashboard", err)
		return
	}

	response.Success(c, stats)
}

// GetMyReferrals 获取当前用户的推荐记录列表
func (h *Handler) GetMyReferrals(c *gin.Context) {
	uid, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.ReferralListFilter{
		Page:       page,
		PageSize:   pageSize,
		ReferrerID: uid,
		Status:     strings.TrimSpace(c.Query("status")),
	}

	referrals, total, err := h.ReferralService.ListReferrals(c.Request.Context(), filter)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load referrals", err)
		return
	}

	pagination := response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	}
	response.SuccessWithPage(c, referrals, pagination)
}
