package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/smileref/smileref/internal/cache"
	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 用户认证服务
// 覆盖验证码登录、密码登录、密码设置与重置
type AuthService struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	otpRepo      repository.OTPTokenRepository
	emailService *EmailService
	queueClient  *queue.Client
}

// NewAuthService 创建认证服务
func NewAuthService(cfg *config.Config, userRepo repository.UserRepository, otpRepo repository.OTPTokenRepository, emailService *EmailService, queueClient *queue.Client) *AuthService {
	return &AuthService{
		cfg:          cfg,
		userRepo:     userRepo,
		otpRepo:      otpRepo,
		emailService: emailService,
		queueClient:  queueClient,
	}
}

// UserJWTClaims 用户 JWT 声明
// must_set_password 为 true 时仅允许访问受限的少数接口
type UserJWTClaims struct {
	UserID          uint   `json:"user_id"`
	Email           string `json:"email"`
	TokenVersion    uint64 `json:"token_version"`
	MustSetPassword bool   `json:"must_set_password"`
	jwt.RegisteredClaims
}

// GenerateUserJWT 生成用户 JWT Token
// must_set_password 反映签发时刻用户是否尚未设置密码
func (s *AuthService) GenerateUserJWT(user *models.User) (string, time.Time, error) {
	expiresAt := time.Now().Add(time.Duration(resolveJWTExpireHours(s.cfg.JWT)) * time.Hour)
	claims := UserJWTClaims{
		UserID:          user.ID,
		Email:           user.Email,
		TokenVersion:    user.TokenVersion,
		MustSetPassword: !user.HasPassword(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseUserJWT 解析用户 JWT Token
func (s *AuthService) ParseUserJWT(tokenString string) (*UserJWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &UserJWTClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*UserJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("无效的 token")
}

// RequestCode 请求登录验证码
// 返回验证码有效秒数与该邮箱是否为前台代注册账号
func (s *AuthService) RequestCode(ctx context.Context, email string) (int, bool, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return 0, false, err
	}

	expireSeconds := resolveOTPExpireMinutes(s.cfg.OTP) * 60

	// 演示账号不落库不发信，凭固定验证码直接走 VerifyCode
	if s.isDemoAccount(normalized) {
		return expireSeconds, false, nil
	}

	staffAttributed := false
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return 0, false, err
	}
	if user != nil && strings.TrimSpace(user.SignedUpByStaff) != "" {
		staffAttributed = true
	}

	if err := s.issueOTP(ctx, normalized, constants.OTPPurposeLogin, user); err != nil {
		return 0, false, err
	}
	return expireSeconds, staffAttributed, nil
}

// VerifyCode 校验验证码并签发会话
// 首次登录自动建档；已设置密码的用户必须走密码登录
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (*models.User, string, time.Time, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	trimmedCode := strings.TrimSpace(code)
	if trimmedCode == "" {
		return nil, "", time.Time{}, ErrOTPInvalid
	}

	now := time.Now()
	if s.isDemoAccount(normalized) {
		if s.cfg.Demo.Users[normalized] != trimmedCode {
			return nil, "", time.Time{}, ErrOTPInvalid
		}
	} else {
		consumed, err := s.otpRepo.Consume(normalized, constants.OTPPurposeLogin, trimmedCode, now)
		if err != nil {
			return nil, "", time.Time{}, err
		}
		if !consumed {
			return nil, "", time.Time{}, s.classifyConsumeFailure(normalized, constants.OTPPurposeLogin, trimmedCode, now)
		}
	}

	user, err := ensureUserByEmail(s.userRepo, normalized, "", "", "")
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user.HasPassword() {
		return nil, "", time.Time{}, ErrPasswordLoginRequired
	}

	return s.establishSession(ctx, user)
}

// Login 密码登录
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, time.Time, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if !user.HasPassword() {
		return nil, "", time.Time{}, ErrPasswordNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	return s.establishSession(ctx, user)
}

// SetPassword 首次设置密码
// 旧会话全部失效，返回全权限的新会话
func (s *AuthService) SetPassword(ctx context.Context, userID uint, password, confirm string) (*models.User, string, time.Time, error) {
	if password != confirm {
		return nil, "", time.Time{}, ErrPasswordMismatch
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, password); err != nil {
		return nil, "", time.Time{}, err
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrNotFound
	}

	if err := s.applyPassword(ctx, user, password); err != nil {
		return nil, "", time.Time{}, err
	}
	return s.establishSession(ctx, user)
}

// RequestPasswordReset 请求密码重置验证码
// 未注册邮箱静默返回成功，避免探测账号是否存在
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}
	return s.issueOTP(ctx, normalized, constants.OTPPurposeReset, user)
}

// ConfirmPasswordReset 校验重置验证码并更新密码
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, email, code, password, confirm string) (*models.User, string, time.Time, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if password != confirm {
		return nil, "", time.Time{}, ErrPasswordMismatch
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, password); err != nil {
		return nil, "", time.Time{}, err
	}

	trimmedCode := strings.TrimSpace(code)
	now := time.Now()
	consumed, err := s.otpRepo.Consume(normalized, constants.OTPPurposeReset, trimmedCode, now)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !consumed {
		return nil, "", time.Time{}, s.classifyConsumeFailure(normalized, constants.OTPPurposeReset, trimmedCode, now)
	}

	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrOTPInvalid
	}

	if err := s.applyPassword(ctx, user, password); err != nil {
		return nil, "", time.Time{}, err
	}
	return s.establishSession(ctx, user)
}

// Logout 退出登录并失效全部会话
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	now := time.Now()
	user.TokenVersion++
	user.TokenInvalidBefore = &now
	user.UpdatedAt = now
	if err := s.userRepo.UpdateColumns(user.ID, map[string]interface{}{
		"token_version":        user.TokenVersion,
		"token_invalid_before": now,
		"updated_at":           now,
	}); err != nil {
		return err
	}
	_ = cache.DelUserAuthState(ctx, user.ID)
	return nil
}

// GetUserByID 获取用户信息
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	if id == 0 {
		return nil, ErrNotFound
	}
	return s.userRepo.GetByID(id)
}

// applyPassword 更新密码哈希并失效旧会话
func (s *AuthService) applyPassword(ctx context.Context, user *models.User, password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	user.PasswordHash = string(hashedPassword)
	if user.PasswordSetAt == nil {
		user.PasswordSetAt = &now
	}
	user.TokenVersion++
	user.TokenInvalidBefore = &now
	user.UpdatedAt = now
	if err := s.userRepo.UpdateColumns(user.ID, map[string]interface{}{
		"password_hash":        user.PasswordHash,
		"password_set_at":      user.PasswordSetAt,
		"token_version":        user.TokenVersion,
		"token_invalid_before": now,
		"updated_at":           now,
	}); err != nil {
		return err
	}
	_ = cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user))
	return nil
}

// establishSession 签发会话并记录登录时间
func (s *AuthService) establishSession(ctx context.Context, user *models.User) (*models.User, string, time.Time, error) {
	token, expiresAt, err := s.GenerateUserJWT(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.userRepo.UpdateColumns(user.ID, map[string]interface{}{
		"last_login_at": now,
		"updated_at":    now,
	}); err != nil {
		return nil, "", time.Time{}, err
	}
	_ = cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user))

	return user, token, expiresAt, nil
}

// issueOTP 生成并持久化验证码，再投递邮件
// 邮件投递失败不回滚已持久化的验证码
func (s *AuthService) issueOTP(ctx context.Context, email, purpose string, user *models.User) error {
	latest, err := s.otpRepo.GetLatest(email, purpose)
	if err != nil {
		return err
	}
	now := time.Now()
	if latest != nil {
		interval := time.Duration(resolveOTPSendIntervalSeconds(s.cfg.OTP)) * time.Second
		if !latest.SentAt.IsZero() && now.Sub(latest.SentAt) < interval {
			return ErrOTPTooFrequent
		}
	}

	if _, err := s.otpRepo.DeleteExpired(now); err != nil {
		logger.Warnw("otp_expired_purge_failed", "error", err)
	}

	code, err := randomNumericCode(resolveOTPLength(s.cfg.OTP))
	if err != nil {
		return err
	}

	record := &models.OTPToken{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(time.Duration(resolveOTPExpireMinutes(s.cfg.OTP)) * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	if err := s.otpRepo.Create(record); err != nil {
		return err
	}

	if err := s.deliverOTPEmail(email, code, purpose); err != nil {
		logger.Warnw("otp_email_send_failed",
			"email", email,
			"purpose", purpose,
			"error", err,
		)
	}
	return nil
}

func (s *AuthService) deliverOTPEmail(email, code, purpose string) error {
	if s.queueClient.Enabled() {
		if purpose == constants.OTPPurposeReset {
			return s.queueClient.EnqueuePasswordResetEmail(queue.PasswordResetEmailPayload{Email: email, Code: code})
		}
		return s.queueClient.EnqueueOTPEmail(queue.OTPEmailPayload{Email: email, Code: code})
	}
	if s.emailService == nil {
		return ErrEmailServiceNotConfigured
	}
	return s.emailService.SendOTPEmail(email, code, purpose)
}

// classifyConsumeFailure 区分验证码过期与无效
// 仅最新一条未使用且已过期时返回过期，其余一律视为无效
func (s *AuthService) classifyConsumeFailure(email, purpose, code string, now time.Time) error {
	latest, err := s.otpRepo.GetLatest(email, purpose)
	if err != nil {
		return err
	}
	if latest != nil && !latest.Used && latest.Code == code && !now.Before(latest.ExpiresAt) {
		return ErrOTPExpired
	}
	return ErrOTPInvalid
}

func (s *AuthService) isDemoAccount(email string) bool {
	if !s.cfg.Demo.Enabled {
		return false
	}
	_, ok := s.cfg.Demo.Users[email]
	return ok
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrInvalidEmail
	}
	return normalized, nil
}

// NormalizeEmail 统一邮箱格式
func NormalizeEmail(email string) (string, error) {
	return normalizeEmail(email)
}

func resolveJWTExpireHours(cfg config.JWTConfig) int {
	if cfg.ExpireHours <= 0 {
		return 24
	}
	return cfg.ExpireHours
}

func resolveOTPExpireMinutes(cfg config.OTPConfig) int {
	if cfg.ExpireMinutes <= 0 {
		return 10
	}
	return cfg.ExpireMinutes
}

func resolveOTPSendIntervalSeconds(cfg config.OTPConfig) int {
	if cfg.SendIntervalSeconds <= 0 {
		return 60
	}
	return cfg.SendIntervalSeconds
}

func resolveOTPLength(cfg config.OTPConfig) int {
	if cfg.Length < 4 || cfg.Length > 10 {
		return 6
	}
	return cfg.Length
}

func randomNumericCode(length int) (string, error) {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String(), nil
}
