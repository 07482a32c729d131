package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/provider"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOTPEmail, c.handleOTPEmail)
	mux.HandleFunc(queue.TaskPasswordResetEmail, c.handlePasswordResetEmail)
	mux.HandleFunc(queue.TaskMagicLinkEmail, c.handleMagicLinkEmail)
	mux.HandleFunc(queue.TaskReferralNotifyEmail, c.handleReferralNotifyEmail)
}

func (c *Consumer) handleOTPEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_otp_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OTPEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_otp_email_unmarshal_failed", "error", err)
		return err
	}
	return c.sendOTPEmail(payload.Email, payload.Code, constants.OTPPurposeLogin)
}

func (c *Consumer) handlePasswordResetEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_password_reset_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PasswordResetEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_password_reset_email_unmarshal_failed", "error", err)
		return err
	}
	return c.sendOTPEmail(payload.Email, payload.Code, constants.OTPPurposeReset)
}

func (c *Consumer) sendOTPEmail(email, code, purpose string) error {
	receiver := strings.TrimSpace(email)
	if receiver == "" || strings.TrimSpace(code) == "" {
		logger.Debugw("worker_otp_email_skip_invalid_payload", "email", receiver, "purpose", purpose)
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_otp_email_skip_email_service_nil", "email", receiver)
		return nil
	}
	if err := c.EmailService.SendOTPEmail(receiver, code, purpose); err != nil {
		if isPermanentSendError(err) {
			logger.Debugw("worker_otp_email_skip_permanent_failure", "email", receiver, "error", err)
			return nil
		}
		logger.Warnw("worker_otp_email_send_failed", "email", receiver, "purpose", purpose, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleMagicLinkEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_magic_link_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.MagicLinkEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_magic_link_email_unmarshal_failed", "error", err)
		return err
	}
	receiver := strings.TrimSpace(payload.Email)
	if receiver == "" || strings.TrimSpace(payload.LandingURL) == "" {
		logger.Debugw("worker_magic_link_email_skip_invalid_payload", "email", receiver)
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_magic_link_email_skip_email_service_nil", "email", receiver)
		return nil
	}
	if err := c.EmailService.SendMagicLinkEmail(receiver, payload.FirstName, payload.LandingURL); err != nil {
		if isPermanentSendError(err) {
			logger.Debugw("worker_magic_link_email_skip_permanent_failure", "email", receiver, "error", err)
			return nil
		}
		logger.Warnw("worker_magic_link_email_send_failed", "email", receiver, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleReferralNotifyEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_referral_notify_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReferralNotifyEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_referral_notify_email_unmarshal_failed", "error", err)
		return err
	}
	receiver := strings.TrimSpace(payload.Email)
	if receiver == "" {
		logger.Debugw("worker_referral_notify_email_skip_invalid_payload")
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_referral_notify_email_skip_email_service_nil", "email", receiver)
		return nil
	}
	if err := c.EmailService.SendReferralNotifyEmail(receiver, payload.ReferredName); err != nil {
		if isPermanentSendError(err) {
			logger.Debugw("worker_referral_notify_email_skip_permanent_failure", "email", receiver, "error", err)
			return nil
		}
		logger.Warnw("worker_referral_notify_email_send_failed", "email", receiver, "error", err)
		return err
	}
	return nil
}

// isPermanentSendError 永久性投递失败不重试
func isPermanentSendError(err error) bool {
	return errors.Is(err, service.ErrEmailRecipientRejected) ||
		errors.Is(err, service.ErrEmailServiceDisabled) ||
		errors.Is(err, service.ErrEmailServiceNotConfigured) ||
		errors.Is(err, service.ErrInvalidEmail)
}
