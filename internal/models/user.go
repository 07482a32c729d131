package models

import (
	"time"

	"gorm.io/gorm"
)

// User 用户表
// 同时承载患者身份与推荐身份，referral_code 分配后不可变更
type User struct {
	ID                 uint           `gorm:"primarykey" json:"id"`                      // 主键
	Email              string         `gorm:"uniqueIndex;not null" json:"email"`         // 邮箱
	ReferralCode       string         `gorm:"uniqueIndex;not null" json:"referral_code"` // 推荐码（8 位大写字母数字）
	Name               string         `gorm:"default:''" json:"name"`                    // 姓名
	Phone              string         `gorm:"default:''" json:"phone"`                   // 电话
	PasswordHash       string         `gorm:"default:''" json:"-"`                       // 密码哈希（为空表示仅可 OTP 登录）
	PasswordSetAt      *time.Time     `json:"password_set_at"`                           // 密码设置时间
	IsAdmin            bool           `gorm:"default:false;index" json:"is_admin"`       // 管理员标记
	SignedUpByStaff    string         `gorm:"default:''" json:"signed_up_by_staff"`      // 前台员工归因
	TotalEarnings      Money          `gorm:"type:decimal(12,2);default:0" json:"total_earnings"` // 累计奖励（仅由推荐流转变更）
	TokenVersion       uint64         `gorm:"not null;default:0" json:"-"`               // Token 版本（用于全量失效）
	TokenInvalidBefore *time.Time     `gorm:"index" json:"-"`                            // 该时间点前签发的 Token 失效
	LastLoginAt        *time.Time     `json:"last_login_at"`                             // 最后登录时间
	CreatedAt          time.Time      `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt          time.Time      `gorm:"index" json:"updated_at"`                   // 更新时间
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`                            // 软删除时间
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// HasPassword 判断用户是否已设置密码
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// FirstName 取姓名的第一个词，用于问候语
func (u *User) FirstName() string {
	if u == nil {
		return ""
	}
	name := u.Name
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' {
			return name[:i]
		}
	}
	return name
}
