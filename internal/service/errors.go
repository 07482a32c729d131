package service

import "errors"

// 通用错误
var (
	ErrNotFound              = errors.New("record not found")
	ErrReferralCodeExhausted = errors.New("referral code generation exhausted")
)

// 认证相关错误
var (
	ErrInvalidEmail          = errors.New("invalid email")
	ErrOTPInvalid            = errors.New("otp code invalid")
	ErrOTPExpired            = errors.New("otp code expired")
	ErrOTPTooFrequent        = errors.New("otp requested too frequently")
	ErrPasswordLoginRequired = errors.New("password login required")
	ErrPasswordNotSet        = errors.New("password not set")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrPasswordMismatch      = errors.New("password confirmation mismatch")
	ErrWeakPassword          = errors.New("password too weak")
)

// 推荐相关错误
var (
	ErrReferralFieldRequired = errors.New("referral required field missing")
	ErrReferrerNotFound      = errors.New("referrer not found")
	ErrAlreadyRegistered     = errors.New("referred email already registered")
	ErrDuplicateReferral     = errors.New("duplicate referral")
	ErrReferralNotFound      = errors.New("referral not found")
	ErrStaffNameInvalid      = errors.New("staff name not in allowlist")
)

// 到店引导相关错误
var (
	ErrOnboardingTargetRequired = errors.New("onboarding target required")
	ErrTokenNotFound            = errors.New("onboarding token not found")
	ErrTokenExpired             = errors.New("onboarding token expired")
)

// 邮件相关错误
var (
	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
)

// 验证码相关错误
var (
	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaConfigInvalid = errors.New("captcha config invalid")
)
