package repository

import (
	"errors"
	"time"

	"github.com/smileref/smileref/internal/models"

	"gorm.io/gorm"
)

// OTPTokenRepository 一次性验证码数据访问接口
type OTPTokenRepository interface {
	Create(token *models.OTPToken) error
	GetLatest(email, purpose string) (*models.OTPToken, error)
	Consume(email, purpose, code string, now time.Time) (bool, error)
	DeleteExpired(now time.Time) (int64, error)
	DeleteByEmail(email string) error
}

// GormOTPTokenRepository GORM 实现
type GormOTPTokenRepository struct {
	db *gorm.DB
}

// NewOTPTokenRepository 创建验证码仓库
func NewOTPTokenRepository(db *gorm.DB) *GormOTPTokenRepository {
	return &GormOTPTokenRepository{db: db}
}

// Create 创建验证码记录
func (r *GormOTPTokenRepository) Create(token *models.OTPToken) error {
	return r.db.Create(token).Error
}

// GetLatest 获取最新验证码记录
func (r *GormOTPTokenRepository) GetLatest(email, purpose string) (*models.OTPToken, error) {
	var record models.OTPToken
	if err := r.db.Where("email = ? AND purpose = ?", email, purpose).
		Order("sent_at desc, id desc").
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Consume 原子消费验证码
// 条件更新加受影响行数检查，两个并发请求只会有一个成功
func (r *GormOTPTokenRepository) Consume(email, purpose, code string, now time.Time) (bool, error) {
	result := r.db.Model(&models.OTPToken{}).
		Where("email = ? AND purpose = ? AND code = ? AND used = ? AND expires_at > ?",
			email, purpose, code, false, now).
		Update("used", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteExpired 清理所有已过期验证码
func (r *GormOTPTokenRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&models.OTPToken{})
	return result.RowsAffected, result.Error
}

// DeleteByEmail 删除某邮箱的全部验证码
func (r *GormOTPTokenRepository) DeleteByEmail(email string) error {
	return r.db.Where("email = ?", email).Delete(&models.OTPToken{}).Error
}
