package repository

import (
	"errors"
	"time"

	"github.com/smileref/smileref/internal/models"

	"gorm.io/gorm"
)

// ReferralClickRepository 点击记录数据访问接口
type ReferralClickRepository interface {
	Create(click *models.ReferralClick) error
	GetLatestByReferrerAndIP(referrerID uint, ip string) (*models.ReferralClick, error)
	List(filter ReferralClickListFilter) ([]models.ReferralClick, int64, error)
	Count() (int64, error)
	CountSince(since time.Time) (int64, error)
}

// GormReferralClickRepository GORM 实现
type GormReferralClickRepository struct {
	db *gorm.DB
}

// NewReferralClickRepository 创建点击记录仓库
func NewReferralClickRepository(db *gorm.DB) *GormReferralClickRepository {
	return &GormReferralClickRepository{db: db}
}

// Create 追加点击记录
func (r *GormReferralClickRepository) Create(click *models.ReferralClick) error {
	return r.db.Create(click).Error
}

// GetLatestByReferrerAndIP 获取同推荐人同 IP 的最近一条点击
func (r *GormReferralClickRepository) GetLatestByReferrerAndIP(referrerID uint, ip string) (*models.ReferralClick, error) {
	var click models.ReferralClick
	if err := r.db.Where("referrer_id = ? AND ip = ?", referrerID, ip).
		Order("clicked_at desc, id desc").
		First(&click).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &click, nil
}

// List 点击记录列表
func (r *GormReferralClickRepository) List(filter ReferralClickListFilter) ([]models.ReferralClick, int64, error) {
	query := r.db.Model(&models.ReferralClick{})
	if filter.ReferrerID != 0 {
		query = query.Where("referrer_id = ?", filter.ReferrerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var clicks []models.ReferralClick
	if err := query.Order("id DESC").Find(&clicks).Error; err != nil {
		return nil, 0, err
	}
	return clicks, total, nil
}

// Count 点击总数
func (r *GormReferralClickRepository) Count() (int64, error) {
	var total int64
	if err := r.db.Model(&models.ReferralClick{}).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CountSince 统计某时间之后的点击数
func (r *GormReferralClickRepository) CountSince(since time.Time) (int64, error) {
	var total int64
	if err := r.db.Model(&models.ReferralClick{}).
		Where("clicked_at >= ?", since).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
