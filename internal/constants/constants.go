package constants

// 推荐记录状态常量
const (
	ReferralStatusPending  = "pending"
	ReferralStatusSignedUp = "signed_up"
	ReferralStatusComplete = "completed"
)

// 推荐来源常量
const (
	ReferralOriginLink   = "link"
	ReferralOriginManual = "manual"
)

// OTP 用途常量
const (
	OTPPurposeLogin = "login"
	OTPPurposeReset = "reset"
)

// 验证码场景常量
const (
	CaptchaSceneSendOTP        = "send_otp"
	CaptchaSceneReferralSignup = "referral_signup"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 异步任务类型常量
const (
	TaskOTPEmail            = "email:otp"
	TaskPasswordResetEmail  = "email:password_reset"
	TaskMagicLinkEmail      = "email:magic_link"
	TaskReferralNotifyEmail = "email:referral_notify"
)

// 推送频道常量
const (
	PushRoomQRDisplay = "qr_display"
	PushEventNewQR    = "new_qr"
	PushEventQRClear  = "qr_clear"
)
