package public

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/smileref/smileref/internal/constants"
	handlershared "github.com/smileref/smileref/internal/http/handlers/shared"
	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

// ReferralSignupRequest 推荐注册请求
// referral_code 缺省时回退到归因 Cookie
type ReferralSignupRequest struct {
	ReferralCode   string                `json:"referral_code"`
	Name           string                `json:"name" binding:"required"`
	Phone          string                `json:"phone" binding:"required"`
	Email          string                `json:"email" binding:"required"`
	Staff          string                `json:"staff"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// SignupReferral 记录一次被推荐人注册
func (h *Handler) SignupReferral(c *gin.Context) {
	var req ReferralSignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	if h.CaptchaService != nil {
		if captchaErr := h.CaptchaService.Verify(constants.CaptchaSceneReferralSignup, req.CaptchaPayload.toServicePayload()); captchaErr != nil {
			respondCaptchaError(c, captchaErr)
			return
		}
	}

	code := strings.TrimSpace(req.ReferralCode)
	if code == "" {
		resolved, ok := h.resolveCodeFromCookie(c)
		if !ok {
			respondError(c, response.CodeBadRequest, "Referral code is required", nil)
			return
		}
		code = resolved
	}

	referral, err := h.ReferralService.RecordSignup(c.Request.Context(), service.RecordSignupInput{
		ReferralCode: code,
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Staff:        req.Staff,
	})
	if err != nil {
		respondReferralSignupError(c, err)
		return
	}

	response.Success(c, gin.H{
		"referral_id": referral.ID,
		"tracking_id": referral.TrackingID,
		"status":      referral.Status,
	})
}

// TrackReferralClick 处理推荐链接点击
// 记录点击、落归因 Cookie 后重定向到注册页；未知推荐码返回 404
func (h *Handler) TrackReferralClick(c *gin.Context) {
	code := c.Param("code")
	target := h.signupRedirectURL()

	referrer, err := h.ReferralService.TrackClick(c.Request.Context(), code, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrReferrerNotFound) {
			c.String(http.StatusNotFound, "Invalid referral link")
			return
		}
		// 点击落库失败不阻断跳转，仅不落归因
		handlershared.RequestLog(c).Warnw("referral_click_track_failed",
			"code", code,
			"error", err,
		)
		c.Redirect(http.StatusFound, target)
		return
	}

	refCfg := h.Config.Referral
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		refCfg.AttributionCookieName,
		strconv.FormatUint(uint64(referrer.ID), 10),
		refCfg.AttributionCookieMaxAge,
		"/",
		"",
		false,
		true,
	)
	c.Redirect(http.StatusFound, target)
}

func (h *Handler) resolveCodeFromCookie(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(h.Config.Referral.AttributionCookieName)
	if err != nil || raw == "" {
		return "", false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return "", false
	}
	referrer, err := h.ReferralService.ResolveReferrerByID(uint(id))
	if err != nil || referrer == nil {
		return "", false
	}
	return referrer.ReferralCode, true
}

func (h *Handler) signupRedirectURL() string {
	if url := strings.TrimSpace(h.Config.Referral.SignupPageURL); url != "" {
		return url
	}
	return strings.TrimRight(h.Config.Server.PublicURL, "/") + "/signup"
}
