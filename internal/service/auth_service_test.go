package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/repository"
)

func setupAuthServiceTest(t *testing.T) (*AuthService, *gorm.DB, *config.Config) {
	t.Helper()

	dsn := fmt.Sprintf("file:auth_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.OTPToken{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{
		JWT: config.JWTConfig{
			SecretKey:   "unit-test-secret-key-0123456789abcdef",
			ExpireHours: 24,
		},
		OTP: config.OTPConfig{
			ExpireMinutes:       10,
			SendIntervalSeconds: 60,
			Length:              6,
		},
		Security: config.SecurityConfig{
			PasswordPolicy: config.PasswordPolicyConfig{MinLength: 8},
		},
		Email: config.EmailConfig{Enabled: false},
	}

	svc := NewAuthService(
		cfg,
		repository.NewUserRepository(db),
		repository.NewOTPTokenRepository(db),
		NewEmailService(&cfg.Email),
		nil,
	)
	return svc, db, cfg
}

func latestOTPCode(t *testing.T, db *gorm.DB, email, purpose string) string {
	t.Helper()
	token, err := repository.NewOTPTokenRepository(db).GetLatest(email, purpose)
	if err != nil {
		t.Fatalf("load latest otp failed: %v", err)
	}
	if token == nil {
		t.Fatalf("expected otp record for %s/%s", email, purpose)
	}
	return token.Code
}

var authTestUserSeq uint64

func createAuthTestUser(t *testing.T, db *gorm.DB, email, password string) *models.User {
	t.Helper()
	user := &models.User{
		Email:        email,
		ReferralCode: fmt.Sprintf("T%07d", atomic.AddUint64(&authTestUserSeq, 1)),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("hash password failed: %v", err)
		}
		user.PasswordHash = string(hash)
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

// 登录打点只写登录列，过期快照不得覆盖并发累加的奖励
func TestEstablishSessionPreservesConcurrentEarnings(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	createAuthTestUser(t, db, "racer@example.com", "Secret123!")

	stale, err := svc.userRepo.GetByEmail("racer@example.com")
	if err != nil || stale == nil {
		t.Fatalf("load user failed: user=%v err=%v", stale, err)
	}

	// 快照之后奖励被并发累加
	if err := db.Model(&models.User{}).Where("id = ?", stale.ID).
		Update("total_earnings", 50).Error; err != nil {
		t.Fatalf("bump earnings failed: %v", err)
	}

	if _, _, _, err := svc.establishSession(ctx, stale); err != nil {
		t.Fatalf("establish session failed: %v", err)
	}

	var fresh models.User
	if err := db.First(&fresh, stale.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if !fresh.TotalEarnings.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("login overwrote earnings, got %s", fresh.TotalEarnings.Decimal.String())
	}
	if fresh.LastLoginAt == nil {
		t.Fatalf("last login should be stamped")
	}
}

func TestRequestCodeAndVerifyCode(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	expiresIn, staffAttributed, err := svc.RequestCode(ctx, " Patient@Example.COM ")
	if err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	if expiresIn != 600 {
		t.Fatalf("expires_in want 600 got %d", expiresIn)
	}
	if staffAttributed {
		t.Fatalf("unknown email should not be staff attributed")
	}

	code := latestOTPCode(t, db, "patient@example.com", constants.OTPPurposeLogin)
	if len(code) != 6 {
		t.Fatalf("otp length want 6 got %d", len(code))
	}

	user, token, expiresAt, err := svc.VerifyCode(ctx, "patient@example.com", code)
	if err != nil {
		t.Fatalf("verify code failed: %v", err)
	}
	if user.Email != "patient@example.com" {
		t.Fatalf("verify should provision user, got email %s", user.Email)
	}
	if len(user.ReferralCode) != 8 {
		t.Fatalf("referral code length want 8 got %q", user.ReferralCode)
	}
	if user.LastLoginAt == nil {
		t.Fatalf("last login time should be recorded")
	}
	if token == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("expected a future-dated session token")
	}

	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("claims user id want %d got %d", user.ID, claims.UserID)
	}
	if !claims.MustSetPassword {
		t.Fatalf("passwordless user should carry must_set_password claim")
	}

	// 验证码单次有效
	if _, _, _, err := svc.VerifyCode(ctx, "patient@example.com", code); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("reused code want ErrOTPInvalid got %v", err)
	}
}

func TestRequestCodeThrottled(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	if _, _, err := svc.RequestCode(ctx, "throttle@example.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, _, err := svc.RequestCode(ctx, "throttle@example.com"); !errors.Is(err, ErrOTPTooFrequent) {
		t.Fatalf("second request want ErrOTPTooFrequent got %v", err)
	}
}

func TestRequestCodeStaffAttributed(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)

	user := createAuthTestUser(t, db, "walkin@example.com", "")
	user.SignedUpByStaff = "Dana"
	if err := db.Save(user).Error; err != nil {
		t.Fatalf("update user failed: %v", err)
	}

	_, staffAttributed, err := svc.RequestCode(context.Background(), "walkin@example.com")
	if err != nil {
		t.Fatalf("request code failed: %v", err)
	}
	if !staffAttributed {
		t.Fatalf("staff-registered user should be reported as attributed")
	}
}

func TestRequestCodeRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := setupAuthServiceTest(t)

	if _, _, err := svc.RequestCode(context.Background(), "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("want ErrInvalidEmail got %v", err)
	}
	if _, _, err := svc.RequestCode(context.Background(), "  "); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("blank email want ErrInvalidEmail got %v", err)
	}
}

func TestVerifyCodeClassifiesExpiredCode(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	now := time.Now()
	expired := &models.OTPToken{
		Email:     "late@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "111111",
		ExpiresAt: now.Add(-time.Minute),
		SentAt:    now.Add(-11 * time.Minute),
		CreatedAt: now.Add(-11 * time.Minute),
	}
	if err := db.Create(expired).Error; err != nil {
		t.Fatalf("create otp failed: %v", err)
	}

	if _, _, _, err := svc.VerifyCode(ctx, "late@example.com", "111111"); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expired code want ErrOTPExpired got %v", err)
	}
	if _, _, _, err := svc.VerifyCode(ctx, "late@example.com", "999999"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong code want ErrOTPInvalid got %v", err)
	}
}

func TestVerifyCodeRequiresPasswordLoginOnceSet(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)

	createAuthTestUser(t, db, "secured@example.com", "long-enough-password")
	now := time.Now()
	otp := &models.OTPToken{
		Email:     "secured@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "222222",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	if err := db.Create(otp).Error; err != nil {
		t.Fatalf("create otp failed: %v", err)
	}

	_, _, _, err := svc.VerifyCode(context.Background(), "secured@example.com", "222222")
	if !errors.Is(err, ErrPasswordLoginRequired) {
		t.Fatalf("want ErrPasswordLoginRequired got %v", err)
	}
}

func TestSetPasswordUpgradesSession(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	user := createAuthTestUser(t, db, "fresh@example.com", "")
	versionBefore := user.TokenVersion

	if _, _, _, err := svc.SetPassword(ctx, user.ID, "password-one", "password-two"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("mismatch want ErrPasswordMismatch got %v", err)
	}
	if _, _, _, err := svc.SetPassword(ctx, user.ID, "short", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password want ErrWeakPassword got %v", err)
	}

	updated, token, _, err := svc.SetPassword(ctx, user.ID, "a-strong-password", "a-strong-password")
	if err != nil {
		t.Fatalf("set password failed: %v", err)
	}
	if !updated.HasPassword() {
		t.Fatalf("password hash should be stored")
	}
	if updated.PasswordSetAt == nil {
		t.Fatalf("password set time should be recorded")
	}
	if updated.TokenVersion <= versionBefore {
		t.Fatalf("token version should bump, before %d after %d", versionBefore, updated.TokenVersion)
	}

	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.MustSetPassword {
		t.Fatalf("new session should not be pending-password")
	}
	if claims.TokenVersion != updated.TokenVersion {
		t.Fatalf("claims token version want %d got %d", updated.TokenVersion, claims.TokenVersion)
	}
}

func TestLoginWithPassword(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	user := createAuthTestUser(t, db, "login@example.com", "correct-password")

	if _, _, _, err := svc.Login(ctx, "nobody@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email want ErrInvalidCredentials got %v", err)
	}
	if _, _, _, err := svc.Login(ctx, "login@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password want ErrInvalidCredentials got %v", err)
	}

	passwordless := createAuthTestUser(t, db, "codeonly@example.com", "")
	if _, _, _, err := svc.Login(ctx, passwordless.Email, "anything"); !errors.Is(err, ErrPasswordNotSet) {
		t.Fatalf("passwordless login want ErrPasswordNotSet got %v", err)
	}

	loggedIn, token, _, err := svc.Login(ctx, "Login@Example.com", "correct-password")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("login user id want %d got %d", user.ID, loggedIn.ID)
	}
	claims, err := svc.ParseUserJWT(token)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if claims.MustSetPassword {
		t.Fatalf("password login should not be pending-password")
	}
}

func TestLogoutInvalidatesAllSessions(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)

	user := createAuthTestUser(t, db, "bye@example.com", "correct-password")
	versionBefore := user.TokenVersion

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	if reloaded.TokenVersion <= versionBefore {
		t.Fatalf("token version should bump on logout")
	}
	if reloaded.TokenInvalidBefore == nil {
		t.Fatalf("token invalid-before should be stamped on logout")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, db, _ := setupAuthServiceTest(t)
	ctx := context.Background()

	// 未注册邮箱静默成功且不落验证码
	if err := svc.RequestPasswordReset(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("unknown email reset request should succeed silently: %v", err)
	}
	var count int64
	if err := db.Model(&models.OTPToken{}).Count(&count).Error; err != nil {
		t.Fatalf("count otp failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("no otp should exist for unknown email, got %d", count)
	}

	user := createAuthTestUser(t, db, "reset@example.com", "old-password-1")
	if err := svc.RequestPasswordReset(ctx, "reset@example.com"); err != nil {
		t.Fatalf("reset request failed: %v", err)
	}
	code := latestOTPCode(t, db, "reset@example.com", constants.OTPPurposeReset)

	if _, _, _, err := svc.ConfirmPasswordReset(ctx, "reset@example.com", "000000", "new-password-1", "new-password-1"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong reset code want ErrOTPInvalid got %v", err)
	}

	updated, token, _, err := svc.ConfirmPasswordReset(ctx, "reset@example.com", code, "new-password-1", "new-password-1")
	if err != nil {
		t.Fatalf("confirm reset failed: %v", err)
	}
	if updated.ID != user.ID {
		t.Fatalf("reset user id want %d got %d", user.ID, updated.ID)
	}
	if token == "" {
		t.Fatalf("reset should return a fresh session token")
	}

	if _, _, _, err := svc.Login(ctx, "reset@example.com", "old-password-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should stop working, got %v", err)
	}
	if _, _, _, err := svc.Login(ctx, "reset@example.com", "new-password-1"); err != nil {
		t.Fatalf("new password login failed: %v", err)
	}
}

func TestDemoAccountBypassesOTPOnlyWhenEnabled(t *testing.T) {
	svc, db, cfg := setupAuthServiceTest(t)
	ctx := context.Background()
	cfg.Demo = config.DemoConfig{
		Enabled: true,
		Users:   map[string]string{"demo@example.com": "424242"},
	}

	// 演示账号不落库不发信
	if _, _, err := svc.RequestCode(ctx, "demo@example.com"); err != nil {
		t.Fatalf("demo request failed: %v", err)
	}
	var count int64
	if err := db.Model(&models.OTPToken{}).Count(&count).Error; err != nil {
		t.Fatalf("count otp failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("demo account should not persist otp rows, got %d", count)
	}

	if _, _, _, err := svc.VerifyCode(ctx, "demo@example.com", "000000"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong demo code want ErrOTPInvalid got %v", err)
	}
	if _, _, _, err := svc.VerifyCode(ctx, "demo@example.com", "424242"); err != nil {
		t.Fatalf("demo verify failed: %v", err)
	}

	// 关闭演示模式后固定验证码失效
	cfg.Demo.Enabled = false
	if _, _, _, err := svc.VerifyCode(ctx, "demo@example.com", "424242"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("disabled demo want ErrOTPInvalid got %v", err)
	}
}
