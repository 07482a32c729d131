package admin

import (
	"errors"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

// IssueQRRequest 签发到店引导二维码请求
// user_id 与 email 至少一项；email 未建档时自动创建用户
type IssueQRRequest struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Staff  string `json:"staff"`
}

// IssueQR 签发二维码并推送到候诊屏
func (h *Handler) IssueQR(c *gin.Context) {
	var req IssueQRRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.OnboardingService.Issue(c.Request.Context(), service.IssueInput{
		UserID: req.UserID,
		Email:  req.Email,
		Name:   req.Name,
		Phone:  req.Phone,
		Staff:  req.Staff,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOnboardingTargetRequired):
			respondError(c, response.CodeBadRequest, "user_id or email is required", nil)
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "Invalid email address", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "User not found", nil)
		default:
			respondError(c, response.CodeInternal, "Failed to issue QR code", err)
		}
		return
	}

	response.Success(c, result)
}

// RevokeQR 主动清除候诊屏上的二维码
func (h *Handler) RevokeQR(c *gin.Context) {
	h.OnboardingService.RevokeDisplay(c.Request.Context())
	response.Success(c, gin.H{"revoked": true})
}
