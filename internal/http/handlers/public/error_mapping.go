package public

import (
	"errors"

	"github.com/smileref/smileref/internal/http/response"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var captchaErrorRules = []mappedHandlerError{
	{target: service.ErrCaptchaRequired, code: response.CodeBadRequest, msg: "Captcha is required"},
	{target: service.ErrCaptchaInvalid, code: response.CodeBadRequest, msg: "Captcha is incorrect"},
	{target: service.ErrCaptchaConfigInvalid, code: response.CodeInternal, msg: "Captcha service is misconfigured"},
}

var otpCommonErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, msg: "Invalid email address"},
	{target: service.ErrOTPExpired, code: response.CodeBadRequest, msg: "Code has expired, please request a new one"},
	{target: service.ErrOTPInvalid, code: response.CodeBadRequest, msg: "Incorrect code"},
}

var sendOTPErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, msg: "Invalid email address"},
	{target: service.ErrOTPTooFrequent, code: response.CodeTooManyRequests, msg: "Too many requests, please wait before retrying"},
	{target: service.ErrEmailRecipientRejected, code: response.CodeBadRequest, msg: "Email address cannot receive mail"},
	{target: service.ErrEmailServiceDisabled, code: response.CodeInternal, msg: "Email service is disabled"},
	{target: service.ErrEmailServiceNotConfigured, code: response.CodeInternal, msg: "Email service is not configured"},
}

var verifyOTPErrorRules = concatMappedHandlerErrors(
	otpCommonErrorRules,
	[]mappedHandlerError{
		{target: service.ErrPasswordLoginRequired, code: response.CodeBadRequest, msg: "This account has a password, please sign in with it"},
		{target: service.ErrReferralCodeExhausted, code: response.CodeInternal, msg: "Could not allocate a referral code, please retry"},
	},
)

var passwordLoginErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, msg: "Invalid email address"},
	{target: service.ErrPasswordNotSet, code: response.CodeBadRequest, msg: "No password set for this account, use the email code instead"},
	{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, msg: "Incorrect email or password"},
}

var setPasswordErrorRules = []mappedHandlerError{
	{target: service.ErrPasswordMismatch, code: response.CodeBadRequest, msg: "Passwords do not match"},
	{target: service.ErrWeakPassword, code: response.CodeBadRequest, msg: "Password is too weak"},
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "User not found"},
}

var passwordResetConfirmErrorRules = concatMappedHandlerErrors(
	otpCommonErrorRules,
	[]mappedHandlerError{
		{target: service.ErrPasswordMismatch, code: response.CodeBadRequest, msg: "Passwords do not match"},
		{target: service.ErrWeakPassword, code: response.CodeBadRequest, msg: "Password is too weak"},
	},
)

var referralSignupErrorRules = []mappedHandlerError{
	{target: service.ErrReferralFieldRequired, code: response.CodeBadRequest, msg: "Name, phone and email are required"},
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, msg: "Invalid email address"},
	{target: service.ErrStaffNameInvalid, code: response.CodeBadRequest, msg: "Unknown staff name"},
	{target: service.ErrReferrerNotFound, code: response.CodeNotFound, msg: "Referral code not found"},
	{target: service.ErrAlreadyRegistered, code: response.CodeConflict, msg: "This email is already registered"},
	{target: service.ErrDuplicateReferral, code: response.CodeConflict, msg: "This person has already been referred"},
}

var onboardingConsumeErrorRules = []mappedHandlerError{
	{target: service.ErrTokenNotFound, code: response.CodeNotFound, msg: "This link is invalid"},
	{target: service.ErrTokenExpired, code: response.CodeNotFound, msg: "This link has expired, please scan a fresh code"},
}

func respondSendOTPError(c *gin.Context, err error) {
	respondWithMappedError(c, err, sendOTPErrorRules, response.CodeInternal, "Failed to send code")
}

func respondVerifyOTPError(c *gin.Context, err error) {
	respondWithMappedError(c, err, verifyOTPErrorRules, response.CodeInternal, "Sign-in failed")
}

func respondPasswordLoginError(c *gin.Context, err error) {
	respondWithMappedError(c, err, passwordLoginErrorRules, response.CodeInternal, "Sign-in failed")
}

func respondSetPasswordError(c *gin.Context, err error) {
	respondWithMappedError(c, err, setPasswordErrorRules, response.CodeInternal, "Failed to set password")
}

func respondPasswordResetConfirmError(c *gin.Context, err error) {
	respondWithMappedError(c, err, passwordResetConfirmErrorRules, response.CodeInternal, "Password reset failed")
}

func respondReferralSignupError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralSignupErrorRules, response.CodeInternal, "Failed to submit referral")
}

func respondOnboardingConsumeError(c *gin.Context, err error) {
	respondWithMappedError(c, err, onboardingConsumeErrorRules, response.CodeInternal, "Failed to open link")
}

func respondCaptchaError(c *gin.Context, err error) {
	respondWithMappedError(c, err, captchaErrorRules, response.CodeInternal, "Captcha verification failed")
}
