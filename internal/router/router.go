package router

import (
	"fmt"
	"strings"

	"github.com/smileref/smileref/internal/cache"
	"github.com/smileref/smileref/internal/config"
	adminhandlers "github.com/smileref/smileref/internal/http/handlers/admin"
	publichandlers "github.com/smileref/smileref/internal/http/handlers/public"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sr"
	}
	redisClient := cache.Client()
	sendOTPRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:send_otp", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "Too many code requests",
	}
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "Too many sign-in attempts",
	}
	signupRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:signup", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "Too many signup attempts",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// 推荐链接点击与落地链接走根路径，便于打印在物料上
	r.GET("/ref/:code", publicHandler.TrackReferralClick)
	r.GET("/r/welcome", publicHandler.OpenWelcome)

	api := r.Group("/api")
	{
		api.GET("/captcha/image", publicHandler.GetImageCaptcha)

		auth := api.Group("/auth")
		{
			auth.POST("/send-otp", RateLimitMiddleware(redisClient, sendOTPRule, KeyByIPAndJSONField("email")), publicHandler.SendOTP)
			auth.POST("/verify-otp", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.VerifyOTP)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.Login)
			auth.POST("/password-reset/request", RateLimitMiddleware(redisClient, sendOTPRule, KeyByIPAndJSONField("email")), publicHandler.RequestPasswordReset)
			auth.POST("/password-reset/confirm", RateLimitMiddleware(redisClient, loginRule, KeyByIP), publicHandler.ConfirmPasswordReset)
		}

		referral := api.Group("/referral")
		{
			referral.POST("/signup", RateLimitMiddleware(redisClient, signupRule, KeyByIP), publicHandler.SignupReferral)
		}

		// 候诊屏事件流，展示设备无登录态
		api.GET("/display/events", publicHandler.StreamDisplayEvents)

		authed := api.Group("")
		authed.Use(UserJWTAuthMiddleware(cfg.JWT.SecretKey, c.UserRepo), PendingPasswordMiddleware())
		{
			authed.GET("/auth/me", publicHandler.Me)
			authed.POST("/auth/set-password", publicHandler.SetPassword)
			authed.POST("/auth/logout", publicHandler.Logout)

			authed.GET("/user/dashboard", publicHandler.GetDashboard)
			authed.GET("/user/referrals", publicHandler.GetMyReferrals)
		}

		admin := api.Group("/admin")
		admin.Use(UserJWTAuthMiddleware(cfg.JWT.SecretKey, c.UserRepo), PendingPasswordMiddleware(), AdminAuthMiddleware())
		{
			admin.GET("/stats", adminHandler.GetStats)

			admin.GET("/users", adminHandler.GetUsers)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.PUT("/users/:id", adminHandler.UpdateUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
			admin.POST("/users/import", adminHandler.ImportUsers)
			admin.POST("/users/:id/referrals/adjust", adminHandler.AdjustReferrals)

			admin.GET("/referrals", adminHandler.GetReferrals)
			admin.GET("/referrals/export", adminHandler.ExportReferrals)
			admin.POST("/referrals/:id/complete", adminHandler.CompleteReferral)
			admin.DELETE("/referrals/:id", adminHandler.DeleteReferral)

			admin.POST("/onboarding/qr", adminHandler.IssueQR)
			admin.POST("/onboarding/revoke", adminHandler.RevokeQR)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
