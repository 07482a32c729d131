package repository

import (
	"errors"
	"time"

	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/models"

	"gorm.io/gorm"
)

// ReferralRepository 推荐记录数据访问接口
type ReferralRepository interface {
	Create(referral *models.Referral) error
	GetByID(id uint) (*models.Referral, error)
	GetByReferrerAndEmail(referrerID uint, email string) (*models.Referral, error)
	List(filter ReferralListFilter) ([]models.Referral, int64, error)
	ListAllForExport() ([]models.Referral, error)
	CountByStatus(status string) (int64, error)
	CompletedEarningsInRange(referrerID uint, from, to time.Time) (models.Money, error)
	TotalCompletedEarnings() (models.Money, error)
	DB() *gorm.DB
}

// GormReferralRepository GORM 实现
type GormReferralRepository struct {
	db *gorm.DB
}

// NewReferralRepository 创建推荐记录仓库
func NewReferralRepository(db *gorm.DB) *GormReferralRepository {
	return &GormReferralRepository{db: db}
}

// DB 返回底层数据库连接（事务路径使用）
func (r *GormReferralRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建推荐记录
func (r *GormReferralRepository) Create(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// GetByID 根据 ID 获取推荐记录
func (r *GormReferralRepository) GetByID(id uint) (*models.Referral, error) {
	var referral models.Referral
	if err := r.db.First(&referral, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// GetByReferrerAndEmail 根据推荐人与被推荐邮箱获取记录
func (r *GormReferralRepository) GetByReferrerAndEmail(referrerID uint, email string) (*models.Referral, error) {
	var referral models.Referral
	if err := r.db.Where("referrer_id = ? AND referred_email = ?", referrerID, email).
		First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

// List 推荐记录列表
func (r *GormReferralRepository) List(filter ReferralListFilter) ([]models.Referral, int64, error) {
	query := r.db.Model(&models.Referral{})

	if filter.ReferrerID != 0 {
		query = query.Where("referrer_id = ?", filter.ReferrerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Origin != "" {
		query = query.Where("origin = ?", filter.Origin)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("referred_email LIKE ? OR referred_name LIKE ?", like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var referrals []models.Referral
	if err := query.Order("id DESC").Find(&referrals).Error; err != nil {
		return nil, 0, err
	}
	return referrals, total, nil
}

// ListAllForExport 导出用全量推荐记录（按创建时间升序）
func (r *GormReferralRepository) ListAllForExport() ([]models.Referral, error) {
	var referrals []models.Referral
	if err := r.db.Order("id ASC").Find(&referrals).Error; err != nil {
		return nil, err
	}
	return referrals, nil
}

// CountByStatus 按状态统计推荐数
func (r *GormReferralRepository) CountByStatus(status string) (int64, error) {
	query := r.db.Model(&models.Referral{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CompletedEarningsInRange 统计推荐人在时间窗内已完成奖励之和
// 年度上限检查按 completed_at 落在当前自然年内计算
func (r *GormReferralRepository) CompletedEarningsInRange(referrerID uint, from, to time.Time) (models.Money, error) {
	var sum *float64
	err := r.db.Model(&models.Referral{}).
		Select("SUM(earnings)").
		Where("referrer_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?",
			referrerID, constants.ReferralStatusComplete, from, to).
		Scan(&sum).Error
	if err != nil {
		return models.Money{}, err
	}
	if sum == nil {
		return models.NewMoneyFromFloat(0), nil
	}
	return models.NewMoneyFromFloat(*sum), nil
}

// TotalCompletedEarnings 全站已发放奖励总额
func (r *GormReferralRepository) TotalCompletedEarnings() (models.Money, error) {
	var sum *float64
	err := r.db.Model(&models.Referral{}).
		Select("SUM(earnings)").
		Where("status = ?", constants.ReferralStatusComplete).
		Scan(&sum).Error
	if err != nil {
		return models.Money{}, err
	}
	if sum == nil {
		return models.NewMoneyFromFloat(0), nil
	}
	return models.NewMoneyFromFloat(*sum), nil
}
