package models

import (
	"time"
)

// OTPToken 一次性验证码记录
// 按邮箱而非用户关联，签发时用户可能尚不存在
type OTPToken struct {
	ID        uint      `gorm:"primarykey" json:"id"`          // 主键
	Email     string    `gorm:"index;not null" json:"email"`   // 邮箱
	Purpose   string    `gorm:"index;not null" json:"purpose"` // 用途（login/reset）
	Code      string    `gorm:"not null" json:"-"`             // 验证码（不返回给前端）
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`       // 过期时间
	Used      bool      `gorm:"default:false" json:"-"`        // 是否已消费
	SentAt    time.Time `gorm:"index" json:"-"`                // 发送时间
	CreatedAt time.Time `gorm:"index" json:"created_at"`       // 创建时间
}

// TableName 指定表名
func (OTPToken) TableName() string {
	return "otp_tokens"
}

// IsValid 判断验证码当前是否可消费
func (t *OTPToken) IsValid(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt)
}
