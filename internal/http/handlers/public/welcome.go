package public

import (
	"strings"

	"github.com/smileref/smileref/internal/http/response"

	"github.com/gin-gonic/gin"
)

// OpenWelcome 打开到店引导落地链接
// 首次打开会通知候诊屏清除二维码；有效期内允许重复打开
func (h *Handler) OpenWelcome(c *gin.Context) {
	jti := strings.TrimSpace(c.Query("t"))
	if jti == "" {
		respondError(c, response.CodeBadRequest, "Missing token", nil)
		return
	}

	result, err := h.OnboardingService.Consume(c.Request.Context(), jti)
	if err != nil {
		respondOnboardingConsumeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"referral_code": result.ReferralCode,
		"first_name":    result.FirstName,
	})
}
