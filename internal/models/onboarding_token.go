package models

import (
	"time"
)

// OnboardingToken 到店引导二维码令牌
// 过期前首次打开后即永久可重复打开（软一次性，保留既有产品行为）
type OnboardingToken struct {
	JTI       string     `gorm:"primarykey;size:64" json:"jti"`   // 令牌 ID（uuid hex）
	UserID    uint       `gorm:"index;not null" json:"user_id"`   // 绑定用户 ID
	EmailUsed string     `gorm:"default:''" json:"email_used"`    // 签发时使用的邮箱
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`         // 过期时间
	UsedAt    *time.Time `gorm:"index" json:"used_at"`            // 首次打开时间
	CreatedAt time.Time  `gorm:"index" json:"created_at"`         // 创建时间
}

// TableName 指定表名
func (OnboardingToken) TableName() string {
	return "onboarding_tokens"
}

// IsValid 首次打开前有效性判断
func (t *OnboardingToken) IsValid(now time.Time) bool {
	return t != nil && t.UsedAt == nil && now.Before(t.ExpiresAt)
}
