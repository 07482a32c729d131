package models

import (
	"time"
)

// ReferralClick 推荐链接点击记录（只追加，不修改）
type ReferralClick struct {
	ID         uint      `gorm:"primarykey" json:"id"`              // 主键
	ReferrerID uint      `gorm:"index;not null" json:"referrer_id"` // 推荐人用户 ID
	IP         string    `gorm:"default:''" json:"ip"`              // 访问 IP
	UserAgent  string    `gorm:"default:''" json:"user_agent"`      // UA
	TrackingID string    `gorm:"index" json:"tracking_id"`          // 访客追踪 ID
	ClickedAt  time.Time `gorm:"index" json:"clicked_at"`           // 点击时间
}

// TableName 指定表名
func (ReferralClick) TableName() string {
	return "referral_clicks"
}
