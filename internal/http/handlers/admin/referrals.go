package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/repository"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

// AdjustReferralsRequest 校准某用户推荐数量的请求
// 缺省字段表示该状态不调整
type AdjustReferralsRequest struct {
	Completed *int `json:"completed"`
	SignedUp  *int `json:"signed_up"`
}

// GetReferrals 获取推荐记录列表
func (h *Handler) GetReferrals(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter := repository.ReferralListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
		Origin:   strings.TrimSpace(c.Query("origin")),
		Search:   strings.TrimSpace(c.Query("search")),
	}
	if referrerRaw := strings.TrimSpace(c.Query("referrer_id")); referrerRaw != "" {
		referrerID, err := strconv.ParseUint(referrerRaw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "Invalid referrer_id", nil)
			return
		}
		filter.ReferrerID = uint(referrerID)
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

// CompleteReferral 将推荐标记为完成并发放奖励
// 已完成或触达年度上限时返回成功但 completed=false
func (h *Handler) CompleteReferral(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	result, err := h.ReferralService.Complete(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrReferralNotFound) {
			respondError(c, response.CodeNotFound, "Referral not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to complete referral", err)
		return
	}

	response.Success(c, result)
}

// DeleteReferral 删除推荐记录，已发放奖励同时冲销
func (h *Handler) DeleteReferral(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.ReferralService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrReferralNotFound) {
			respondError(c, response.CodeNotFound, "Referral not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to delete referral", err)
		return
	}

	response.Success(c, gin.H{"deleted": true})
}

// AdjustReferrals 校准用户的推荐数量
// 增补走手工来源记录，删减优先移除手工来源
func (h *Handler) AdjustReferrals(c *gin.Context) {
	userID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AdjustReferralsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}
	if req.Completed == nil && req.SignedUp == nil {
		respondError(c, response.CodeBadRequest, "Nothing to adjust", nil)
		return
	}
	if (req.Completed != nil && *req.Completed < 0) || (req.SignedUp != nil && *req.SignedUp < 0) {
		respondError(c, response.CodeBadRequest, "Counts must not be negative", nil)
		return
	}

	result, err := h.ReferralService.Adjust(c.Request.Context(), userID, req.Completed, req.SignedUp)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			respondError(c, response.CodeNotFound, "User not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "Failed to adjust referrals", err)
		return
	}

	response.Success(c, result)
}
