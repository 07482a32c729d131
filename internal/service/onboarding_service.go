package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/pubsub"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/repository"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

// OnboardingService 到店引导令牌服务
// 签发短时效一次性落地链接，渲染二维码并驱动候诊屏实时刷新
type OnboardingService struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	tokenRepo    repository.OnboardingTokenRepository
	broker       pubsub.Broker
	emailService *EmailService
	queueClient  *queue.Client
}

// NewOnboardingService 创建到店引导服务
func NewOnboardingService(cfg *config.Config, userRepo repository.UserRepository, tokenRepo repository.OnboardingTokenRepository, broker pubsub.Broker, emailService *EmailService, queueClient *queue.Client) *OnboardingService {
	return &OnboardingService{
		cfg:          cfg,
		userRepo:     userRepo,
		tokenRepo:    tokenRepo,
		broker:       broker,
		emailService: emailService,
		queueClient:  queueClient,
	}
}

// IssueInput 签发入参
// UserID 与 Email 至少一项，Email 未建档时自动创建用户
type IssueInput struct {
	UserID uint
	Email  string
	Name   string
	Phone  string
	Staff  string
}

// IssueResult 签发结果
type IssueResult struct {
	JTI        string       `json:"jti"`
	QRImage    string       `json:"qr_image"`
	LandingURL string       `json:"landing_url"`
	ExpiresAt  time.Time    `json:"expires_at"`
	User       *models.User `json:"user"`
}

// ConsumeResult 打开落地链接的结果
type ConsumeResult struct {
	ReferralCode string `json:"referral_code"`
	FirstName    string `json:"first_name"`
	FirstOpen    bool   `json:"-"`
}

type newQRPayload struct {
	Image      string    `json:"image"`
	ExpiresAt  time.Time `json:"expires_at"`
	LandingURL string    `json:"landing_url"`
	FirstName  string    `json:"first_name"`
}

type qrClearPayload struct {
	Reason string `json:"reason"`
}

// Issue 为目标用户签发到店引导令牌
// 渲染二维码推送到候诊屏，同时投递落地链接邮件
func (s *OnboardingService) Issue(ctx context.Context, in IssueInput) (*IssueResult, error) {
	user, err := s.resolveTarget(in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	jti := strings.ReplaceAll(uuid.NewString(), "-", "")
	expiresAt := now.Add(time.Duration(resolveOnboardingTTLSeconds(s.cfg.Onboarding)) * time.Second)
	token := &models.OnboardingToken{
		JTI:       jti,
		UserID:    user.ID,
		EmailUsed: user.Email,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.tokenRepo.Create(token); err != nil {
		return nil, err
	}

	landingURL := s.buildLandingURL(jti)
	qrImage, err := renderQRImage(landingURL, resolveQRSizePixels(s.cfg.Onboarding))
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, constants.PushEventNewQR, newQRPayload{
		Image:      qrImage,
		ExpiresAt:  expiresAt,
		LandingURL: landingURL,
		FirstName:  user.FirstName(),
	})

	if err := s.deliverMagicLinkEmail(user, landingURL); err != nil {
		logger.Warnw("magic_link_send_failed",
			"user_id", user.ID,
			"error", err,
		)
	}

	return &IssueResult{
		JTI:        jti,
		QRImage:    qrImage,
		LandingURL: landingURL,
		ExpiresAt:  expiresAt,
		User:       user,
	}, nil
}

// Consume 打开落地链接
// 首次打开前过期则拒绝；打开过一次后永久可重复打开
func (s *OnboardingService) Consume(ctx context.Context, jti string) (*ConsumeResult, error) {
	trimmed := strings.TrimSpace(jti)
	if trimmed == "" {
		return nil, ErrTokenNotFound
	}

	token, err := s.tokenRepo.GetByJTI(trimmed)
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}

	now := time.Now()
	if token.UsedAt == nil && !now.Before(token.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	// 并发首开只有一个调用抢到 first_open
	firstOpen, err := s.tokenRepo.MarkUsed(trimmed, now)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(token.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrTokenNotFound
	}

	logger.Infow("onboarding_token_opened",
		"jti", trimmed,
		"user_id", user.ID,
		"first_open", firstOpen,
	)

	s.publishEvent(ctx, constants.PushEventQRClear, qrClearPayload{Reason: "scanned"})

	return &ConsumeResult{
		ReferralCode: user.ReferralCode,
		FirstName:    user.FirstName(),
		FirstOpen:    firstOpen,
	}, nil
}

// RevokeDisplay 手动清空候诊屏，不变更任何令牌状态
func (s *OnboardingService) RevokeDisplay(ctx context.Context) {
	s.publishEvent(ctx, constants.PushEventQRClear, qrClearPayload{Reason: "revoked"})
}

// resolveTarget 解析签发目标
// 姓名、电话、员工归因仅在目标记录尚未填写时落库（先写优先）
func (s *OnboardingService) resolveTarget(in IssueInput) (*models.User, error) {
	if in.UserID != 0 {
		user, err := s.userRepo.GetByID(in.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrNotFound
		}
		return s.backfillProfile(user, in)
	}

	if strings.TrimSpace(in.Email) == "" {
		return nil, ErrOnboardingTargetRequired
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	user, err := ensureUserByEmail(s.userRepo, email, in.Name, in.Phone, in.Staff)
	if err != nil {
		return nil, err
	}
	return s.backfillProfile(user, in)
}

func (s *OnboardingService) backfillProfile(user *models.User, in IssueInput) (*models.User, error) {
	values := map[string]interface{}{}
	if user.Name == "" && strings.TrimSpace(in.Name) != "" {
		user.Name = strings.TrimSpace(in.Name)
		values["name"] = user.Name
	}
	if user.Phone == "" && strings.TrimSpace(in.Phone) != "" {
		user.Phone = strings.TrimSpace(in.Phone)
		values["phone"] = user.Phone
	}
	if user.SignedUpByStaff == "" && strings.TrimSpace(in.Staff) != "" {
		user.SignedUpByStaff = strings.TrimSpace(in.Staff)
		values["signed_up_by_staff"] = user.SignedUpByStaff
	}
	if len(values) == 0 {
		return user, nil
	}
	user.UpdatedAt = time.Now()
	values["updated_at"] = user.UpdatedAt
	if err := s.userRepo.UpdateColumns(user.ID, values); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *OnboardingService) buildLandingURL(jti string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.Server.PublicURL), "/")
	return fmt.Sprintf("%s/r/welcome?t=%s", base, jti)
}

func (s *OnboardingService) publishEvent(ctx context.Context, name string, payload interface{}) {
	if s.broker == nil {
		return
	}
	event, err := pubsub.NewEvent(name, payload)
	if err != nil {
		logger.Warnw("push_event_encode_failed", "event", name, "error", err)
		return
	}
	if err := s.broker.Publish(ctx, constants.PushRoomQRDisplay, event); err != nil {
		logger.Warnw("push_event_publish_failed", "event", name, "error", err)
	}
}

func (s *OnboardingService) deliverMagicLinkEmail(user *models.User, landingURL string) error {
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueueMagicLinkEmail(queue.MagicLinkEmailPayload{
			Email:      user.Email,
			FirstName:  user.FirstName(),
			LandingURL: landingURL,
		})
	}
	if s.emailService == nil {
		return ErrEmailServiceNotConfigured
	}
	return s.emailService.SendMagicLinkEmail(user.Email, user.FirstName(), landingURL)
}

// renderQRImage 渲染二维码为 data URI
func renderQRImage(content string, size int) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func resolveOnboardingTTLSeconds(cfg config.OnboardingConfig) int {
	if cfg.TokenTTLSeconds <= 0 {
		return 120
	}
	return cfg.TokenTTLSeconds
}

func resolveQRSizePixels(cfg config.OnboardingConfig) int {
	if cfg.QRSizePixels <= 0 {
		return 256
	}
	return cfg.QRSizePixels
}
