package models

import (
	"time"
)

// Referral 推荐记录
// (referrer_id, referred_email) 唯一索引由数据库保证，防止并发重复提交
type Referral struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                                    // 主键
	ReferrerID      uint       `gorm:"index;not null;uniqueIndex:idx_referrer_referred_email" json:"referrer_id"` // 推荐人用户 ID
	ReferredEmail   string     `gorm:"not null;uniqueIndex:idx_referrer_referred_email" json:"referred_email"`  // 被推荐人邮箱
	ReferredName    string     `gorm:"default:''" json:"referred_name"`                                         // 被推荐人姓名
	ReferredPhone   string     `gorm:"default:''" json:"referred_phone"`                                        // 被推荐人电话
	SignedUpByStaff string     `gorm:"default:''" json:"signed_up_by_staff"`                                    // 前台员工归因
	Origin          string     `gorm:"default:'link';index" json:"origin"`                                      // 来源（link/manual）
	Status          string     `gorm:"default:'signed_up';index" json:"status"`                                 // 状态（pending/signed_up/completed）
	Earnings        Money      `gorm:"type:decimal(12,2);default:0" json:"earnings"`                            // 本条奖励金额
	TrackingID      string     `gorm:"uniqueIndex;not null" json:"tracking_id"`                                 // 追踪 ID
	CompletedAt     *time.Time `gorm:"index" json:"completed_at"`                                               // 完成时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                                 // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                                              // 更新时间
}

// TableName 指定表名
func (Referral) TableName() string {
	return "referrals"
}

// IsCompleted 判断推荐是否已完成
func (r *Referral) IsCompleted() bool {
	return r != nil && r.Status == "completed"
}
