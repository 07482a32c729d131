package provider

import (
	"github.com/smileref/smileref/internal/cache"
	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/pubsub"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/repository"
	"github.com/smileref/smileref/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Broker      pubsub.Broker

	// Repositories
	UserRepo            repository.UserRepository
	OTPTokenRepo        repository.OTPTokenRepository
	ReferralRepo        repository.ReferralRepository
	ReferralClickRepo   repository.ReferralClickRepository
	OnboardingTokenRepo repository.OnboardingTokenRepository

	// Services
	EmailService      *service.EmailService
	CaptchaService    *service.CaptchaService
	AuthService       *service.AuthService
	ReferralService   *service.ReferralService
	OnboardingService *service.OnboardingService
	AdminService      *service.AdminService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化推送通道：Redis 可用时走 Redis，多实例间共享；否则退回进程内广播
	if cache.Enabled() {
		c.Broker = pubsub.NewRedisBroker(cache.Client(), cfg.Redis.Prefix)
	} else {
		c.Broker = pubsub.NewMemoryBroker()
	}

	// 2. 初始化 Repositories
	c.initRepositories()

	// 3. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.OTPTokenRepo = repository.NewOTPTokenRepository(db)
	c.ReferralRepo = repository.NewReferralRepository(db)
	c.ReferralClickRepo = repository.NewReferralClickRepository(db)
	c.OnboardingTokenRepo = repository.NewOnboardingTokenRepository(db)
}

func (c *Container) initServices() {
	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.AuthService = service.NewAuthService(c.Config, c.UserRepo, c.OTPTokenRepo, c.EmailService, c.QueueClient)
	c.ReferralService = service.NewReferralService(c.Config, c.UserRepo, c.ReferralRepo, c.ReferralClickRepo, c.EmailService, c.QueueClient)
	c.OnboardingService = service.NewOnboardingService(c.Config, c.UserRepo, c.OnboardingTokenRepo, c.Broker, c.EmailService, c.QueueClient)
	c.AdminService = service.NewAdminService(c.Config, c.UserRepo, c.ReferralRepo, c.ReferralClickRepo, c.OTPTokenRepo)
}
