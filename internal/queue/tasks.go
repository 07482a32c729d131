package queue

import (
	"encoding/json"

	"github.com/smileref/smileref/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOTPEmail 登录验证码邮件任务
	TaskOTPEmail = constants.TaskOTPEmail
	// TaskPasswordResetEmail 密码重置验证码邮件任务
	TaskPasswordResetEmail = constants.TaskPasswordResetEmail
	// TaskMagicLinkEmail 到店引导链接邮件任务
	TaskMagicLinkEmail = constants.TaskMagicLinkEmail
	// TaskReferralNotifyEmail 推荐注册通知邮件任务
	TaskReferralNotifyEmail = constants.TaskReferralNotifyEmail
)

// OTPEmailPayload 登录验证码邮件任务载荷
type OTPEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// PasswordResetEmailPayload 密码重置验证码邮件任务载荷
type PasswordResetEmailPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// MagicLinkEmailPayload 到店引导链接邮件任务载荷
type MagicLinkEmailPayload struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LandingURL string `json:"landing_url"`
}

// ReferralNotifyEmailPayload 推荐注册通知邮件任务载荷
type ReferralNotifyEmailPayload struct {
	Email        string `json:"email"`
	ReferredName string `json:"referred_name"`
}

// NewOTPEmailTask 创建登录验证码邮件任务
func NewOTPEmailTask(payload OTPEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOTPEmail, body), nil
}

// NewPasswordResetEmailTask 创建密码重置验证码邮件任务
func NewPasswordResetEmailTask(payload PasswordResetEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPasswordResetEmail, body), nil
}

// NewMagicLinkEmailTask 创建到店引导链接邮件任务
func NewMagicLinkEmailTask(payload MagicLinkEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMagicLinkEmail, body), nil
}

// NewReferralNotifyEmailTask 创建推荐注册通知邮件任务
func NewReferralNotifyEmailTask(payload ReferralNotifyEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralNotifyEmail, body), nil
}
