package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/provider"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/service"
)

func newTestConsumer(emailEnabled bool) *Consumer {
	cfg := &config.Config{Email: config.EmailConfig{Enabled: emailEnabled}}
	container := &provider.Container{
		Config:       cfg,
		EmailService: service.NewEmailService(&cfg.Email),
	}
	return NewConsumer(container)
}

func TestIsPermanentSendError(t *testing.T) {
	permanent := []error{
		service.ErrEmailRecipientRejected,
		service.ErrEmailServiceDisabled,
		service.ErrEmailServiceNotConfigured,
		service.ErrInvalidEmail,
	}
	for _, err := range permanent {
		if !isPermanentSendError(err) {
			t.Fatalf("%v should be permanent", err)
		}
	}
	if isPermanentSendError(errors.New("dial tcp: connection refused")) {
		t.Fatalf("transport errors should be retryable")
	}
	if isPermanentSendError(nil) {
		t.Fatalf("nil error should not be permanent")
	}
}

func TestHandleOTPEmailSkipsInvalidPayload(t *testing.T) {
	consumer := newTestConsumer(true)

	// 残缺载荷直接丢弃，不触发重试
	task := asynq.NewTask(queue.TaskOTPEmail, []byte(`{"email":"","code":""}`))
	if err := consumer.handleOTPEmail(context.Background(), task); err != nil {
		t.Fatalf("empty payload should be dropped, got %v", err)
	}

	bad := asynq.NewTask(queue.TaskOTPEmail, []byte(`not-json`))
	if err := consumer.handleOTPEmail(context.Background(), bad); err == nil {
		t.Fatalf("malformed payload should error for retry visibility")
	}
}

func TestHandleOTPEmailSwallowsPermanentFailures(t *testing.T) {
	// 邮件服务关闭时发送返回永久性错误，任务不应重试
	consumer := newTestConsumer(false)

	task := asynq.NewTask(queue.TaskOTPEmail, []byte(`{"email":"to@example.com","code":"123456"}`))
	if err := consumer.handleOTPEmail(context.Background(), task); err != nil {
		t.Fatalf("permanent send failure should be swallowed, got %v", err)
	}
}

func TestHandleMagicLinkEmailSkipsInvalidPayload(t *testing.T) {
	consumer := newTestConsumer(true)

	task := asynq.NewTask(queue.TaskMagicLinkEmail, []byte(`{"email":"to@example.com","landing_url":""}`))
	if err := consumer.handleMagicLinkEmail(context.Background(), task); err != nil {
		t.Fatalf("missing landing url should be dropped, got %v", err)
	}
}

func TestNewServiceRequiresEnabledQueue(t *testing.T) {
	if _, err := NewService(nil, newTestConsumer(true)); err == nil {
		t.Fatalf("nil config should error")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: false}, newTestConsumer(true)); err == nil {
		t.Fatalf("disabled queue should error")
	}
	if _, err := NewService(&config.QueueConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("nil consumer should error")
	}
}
