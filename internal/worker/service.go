package worker

import (
	"context"
	"errors"
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	tokenSweepInterval = time.Hour
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	go s.runTokenSweepLoop(ctx)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runTokenSweepLoop 周期清理过期验证码与过期未打开的引导令牌
func (s *Service) runTokenSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Container == nil {
		return
	}
	runOnce := func() {
		now := time.Now()
		if s.consumer.OTPTokenRepo != nil {
			if purged, err := s.consumer.OTPTokenRepo.DeleteExpired(now); err != nil {
				logger.Warnw("worker_otp_sweep_failed", "error", err)
			} else if purged > 0 {
				logger.Infow("worker_otp_sweep_purged", "count", purged)
			}
		}
		if s.consumer.OnboardingTokenRepo != nil {
			if purged, err := s.consumer.OnboardingTokenRepo.DeleteExpiredUnused(now); err != nil {
				logger.Warnw("worker_onboarding_sweep_failed", "error", err)
			} else if purged > 0 {
				logger.Infow("worker_onboarding_sweep_purged", "count", purged)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
