package repository

import (
	"errors"
	"time"

	"github.com/smileref/smileref/internal/models"

	"gorm.io/gorm"
)

// OnboardingTokenRepository 到店引导令牌数据访问接口
type OnboardingTokenRepository interface {
	Create(token *models.OnboardingToken) error
	GetByJTI(jti string) (*models.OnboardingToken, error)
	MarkUsed(jti string, usedAt time.Time) (bool, error)
	DeleteExpiredUnused(before time.Time) (int64, error)
}

// GormOnboardingTokenRepository GORM 实现
type GormOnboardingTokenRepository struct {
	db *gorm.DB
}

// NewOnboardingTokenRepository 创建令牌仓库
func NewOnboardingTokenRepository(db *gorm.DB) *GormOnboardingTokenRepository {
	return &GormOnboardingTokenRepository{db: db}
}

// Create 创建令牌
func (r *GormOnboardingTokenRepository) Create(token *models.OnboardingToken) error {
	return r.db.Create(token).Error
}

// GetByJTI 根据令牌 ID 获取记录
func (r *GormOnboardingTokenRepository) GetByJTI(jti string) (*models.OnboardingToken, error) {
	var token models.OnboardingToken
	if err := r.db.Where("jti = ?", jti).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

// MarkUsed 原子标记首次打开
// 返回值表示本次调用是否抢到首次打开，并发打开只有一个为 true
func (r *GormOnboardingTokenRepository) MarkUsed(jti string, usedAt time.Time) (bool, error) {
	result := r.db.Model(&models.OnboardingToken{}).
		Where("jti = ? AND used_at IS NULL", jti).
		Update("used_at", usedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// DeleteExpiredUnused 清理过期且从未打开的令牌
// 已打开的令牌保留，保证可重复打开语义
func (r *GormOnboardingTokenRepository) DeleteExpiredUnused(before time.Time) (int64, error) {
	result := r.db.Where("used_at IS NULL AND expires_at <= ?", before).
		Delete(&models.OnboardingToken{})
	return result.RowsAffected, result.Error
}
