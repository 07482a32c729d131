package models

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/smileref/smileref/internal/logger"
)

const referralCodeLength = 8

// EnsureAdminUsers 根据配置确保管理员账号存在
// 已有账号仅提升权限，不存在的邮箱创建仅可 OTP 登录的管理员
func EnsureAdminUsers(emails []string) error {
	for _, raw := range emails {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" {
			continue
		}

		var user User
		err := DB.Where("email = ?", email).First(&user).Error
		if err == nil {
			if user.IsAdmin {
				continue
			}
			if err := DB.Model(&User{}).Where("id = ?", user.ID).Update("is_admin", true).Error; err != nil {
				logger.Warnw("ensure_admin_promote_failed", "email", email, "error", err)
			}
			continue
		}

		code, genErr := RandomReferralCode()
		if genErr != nil {
			return genErr
		}
		admin := User{
			Email:        email,
			ReferralCode: code,
			IsAdmin:      true,
		}
		if err := DB.Create(&admin).Error; err != nil {
			logger.Warnw("ensure_admin_create_failed", "email", email, "error", err)
			continue
		}
		logger.Infow("admin_user_created", "email", email)
	}
	return nil
}

// RandomReferralCode 生成 8 位推荐码
// 字母表剔除了易混淆的 I/O/0/1
func RandomReferralCode() (string, error) {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	var builder strings.Builder
	builder.Grow(referralCodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < referralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		builder.WriteByte(alphabet[n.Int64()])
	}
	return builder.String(), nil
}
