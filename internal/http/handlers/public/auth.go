package public

import (
	"time"

	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/models"

	"github.com/gin-gonic/gin"
)

// SendOTPRequest 发送登录验证码请求
type SendOTPRequest struct {
	Email          string                `json:"email" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// SendOTP 发送邮箱登录验证码
func (h *Handler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	if h.CaptchaService != nil {
		if captchaErr := h.CaptchaService.Verify(constants.CaptchaSceneSendOTP, req.CaptchaPayload.toServicePayload()); captchaErr != nil {
			respondCaptchaError(c, captchaErr)
			return
		}
	}

	expireSeconds, staffAttributed, err := h.AuthService.RequestCode(c.Request.Context(), req.Email)
	if err != nil {
		respondSendOTPError(c, err)
		return
	}

	response.Success(c, gin.H{
		"sent":             true,
		"expires_in":       expireSeconds,
		"staff_attributed": staffAttributed,
	})
}

// VerifyOTPRequest 校验验证码请求
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// VerifyOTP 校验验证码并签发会话
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	user, token, expiresAt, err := h.AuthService.VerifyCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondVerifyOTPError(c, err)
		return
	}

	response.Success(c, sessionView(user, token, expiresAt))
}

// LoginRequest 密码登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 密码登录
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	user, token, expiresAt, err := h.AuthService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondPasswordLoginError(c, err)
		return
	}

	response.Success(c, sessionView(user, token, expiresAt))
}

// SetPasswordRequest 首次设置密码请求
type SetPasswordRequest struct {
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// SetPassword 设置密码并换发全权限会话
func (h *Handler) SetPassword(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req SetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	user, token, expiresAt, err := h.AuthService.SetPassword(c.Request.Context(), userID, req.Password, req.ConfirmPassword)
	if err != nil {
		respondSetPasswordError(c, err)
		return
	}

	response.Success(c, sessionView(user, token, expiresAt))
}

// PasswordResetRequest 请求密码重置验证码
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// RequestPasswordReset 发送密码重置验证码
// 邮箱未注册时同样返回成功，避免探测账号是否存在
func (h *Handler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	if err := h.AuthService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondSendOTPError(c, err)
		return
	}

	response.Success(c, gin.H{"sent": true})
}

// PasswordResetConfirmRequest 确认密码重置请求
type PasswordResetConfirmRequest struct {
	Email           string `json:"email" binding:"required"`
	Code            string `json:"code" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// ConfirmPasswordReset 校验重置验证码并更新密码
func (h *Handler) ConfirmPasswordReset(c *gin.Context) {
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "Invalid request body", err)
		return
	}

	user, token, expiresAt, err := h.AuthService.ConfirmPasswordReset(c.Request.Context(), req.Email, req.Code, req.Password, req.ConfirmPassword)
	if err != nil {
		respondPasswordResetConfirmError(c, err)
		return
	}

	response.Success(c, sessionView(user, token, expiresAt))
}

// Logout 登出并作废该用户全部既有 Token
func (h *Handler) Logout(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.AuthService.Logout(c.Request.Context(), userID); err != nil {
		respondError(c, response.CodeInternal, "Logout failed", err)
		return
	}

	response.Success(c, gin.H{"logged_out": true})
}

// Me 返回当前登录用户信息
func (h *Handler) Me(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	user, err := h.AuthService.GetUserByID(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load user", err)
		return
	}
	if user == nil {
		respondError(c, response.CodeNotFound, "User not found", nil)
		return
	}

	stats, err := h.ReferralService.Stats(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "Failed to load referral stats", err)
		return
	}

	response.Success(c, gin.H{
		"user":  userView(user),
		"stats": stats,
	})
}

func sessionView(user *models.User, token string, expiresAt time.Time) gin.H {
	return gin.H{
		"user":              userView(user),
		"token":             token,
		"expires_at":        expiresAt.Format(time.RFC3339),
		"must_set_password": !user.HasPassword(),
	}
}

func userView(user *models.User) gin.H {
	return gin.H{
		"id":                user.ID,
		"email":             user.Email,
		"name":              user.Name,
		"phone":             user.Phone,
		"referral_code":     user.ReferralCode,
		"is_admin":          user.IsAdmin,
		"has_password":      user.HasPassword(),
		"must_set_password": !user.HasPassword(),
		"total_earnings":    user.TotalEarnings,
		"last_login_at":     user.LastLoginAt,
		"created_at":        user.CreatedAt,
	}
}
