package service

import (
	"context"
	"strings"
	"time"

	"github.com/smileref/smileref/internal/cache"
	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/repository"
)

// AdminService 管理后台服务
// 用户管理、批量导入、导出与全站统计
type AdminService struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	referralRepo repository.ReferralRepository
	clickRepo    repository.ReferralClickRepository
	otpRepo      repository.OTPTokenRepository
}

// NewAdminService 创建管理后台服务
func NewAdminService(cfg *config.Config, userRepo repository.UserRepository, referralRepo repository.ReferralRepository, clickRepo repository.ReferralClickRepository, otpRepo repository.OTPTokenRepository) *AdminService {
	return &AdminService{
		cfg:          cfg,
		userRepo:     userRepo,
		referralRepo: referralRepo,
		clickRepo:    clickRepo,
		otpRepo:      otpRepo,
	}
}

// UserUpdateInput 用户更新入参，nil 字段保持不变
type UserUpdateInput struct {
	Name    *string
	Phone   *string
	Staff   *string
	IsAdmin *bool
}

// ImportRowResult 批量导入单行结果
type ImportRowResult struct {
	Email   string `json:"email"`
	Created bool   `json:"created"`
	Skipped bool   `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

// AdminStats 全站统计
type AdminStats struct {
	TotalUsers         int64        `json:"total_users"`
	TotalReferrals     int64        `json:"total_referrals"`
	PendingReferrals   int64        `json:"pending_referrals"`
	SignedUpReferrals  int64        `json:"signed_up_referrals"`
	CompletedReferrals int64        `json:"completed_referrals"`
	TotalEarningsPaid  models.Money `json:"total_earnings_paid"`
	TotalClicks        int64        `json:"total_clicks"`
	ClicksLast30Days   int64        `json:"clicks_last_30_days"`
}

// ExportRow 推荐记录导出行
type ExportRow struct {
	ID            uint
	ReferrerEmail string
	ReferrerCode  string
	ReferredEmail string
	Status        string
	Earnings      models.Money
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// ListUsers 用户列表
func (s *AdminService) ListUsers(ctx context.Context, filter repository.UserListFilter) ([]models.User, int64, error) {
	return s.userRepo.List(filter)
}

// GetUser 获取单个用户
func (s *AdminService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdateUser 更新用户资料与权限
func (s *AdminService) UpdateUser(ctx context.Context, id uint, in UserUpdateInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	values := map[string]interface{}{}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
		values["name"] = user.Name
	}
	if in.Phone != nil {
		user.Phone = strings.TrimSpace(*in.Phone)
		values["phone"] = user.Phone
	}
	if in.Staff != nil {
		user.SignedUpByStaff = strings.TrimSpace(*in.Staff)
		values["signed_up_by_staff"] = user.SignedUpByStaff
	}
	if in.IsAdmin != nil {
		user.IsAdmin = *in.IsAdmin
		values["is_admin"] = user.IsAdmin
	}

	user.UpdatedAt = time.Now()
	values["updated_at"] = user.UpdatedAt
	if err := s.userRepo.UpdateColumns(user.ID, values); err != nil {
		return nil, err
	}
	// is_admin 在鉴权快照里，更新后立即刷新
	_ = cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user))
	return user, nil
}

// DeleteUser 删除用户及其全部归属数据
func (s *AdminService) DeleteUser(ctx context.Context, id uint) error {
	user, err := s.userRepo.GetByID(id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}

	if err := s.userRepo.DeleteCascade(user.ID); err != nil {
		return err
	}
	if err := s.otpRepo.DeleteByEmail(user.Email); err != nil {
		return err
	}
	_ = cache.DelUserAuthState(ctx, user.ID)
	return nil
}

// ImportUser 导入单个用户
// 已存在的邮箱跳过不报错，返回值标识本行是否新建
func (s *AdminService) ImportUser(ctx context.Context, email, name, phone, staff string) (*models.User, bool, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	user, err := createUserWithReferralCode(s.userRepo, normalized, name, phone, staff, false)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Stats 全站统计
func (s *AdminService) Stats(ctx context.Context) (*AdminStats, error) {
	totalUsers, err := s.userRepo.Count()
	if err != nil {
		return nil, err
	}
	totalReferrals, err := s.referralRepo.CountByStatus("")
	if err != nil {
		return nil, err
	}
	pending, err := s.referralRepo.CountByStatus(constants.ReferralStatusPending)
	if err != nil {
		return nil, err
	}
	signedUp, err := s.referralRepo.CountByStatus(constants.ReferralStatusSignedUp)
	if err != nil {
		return nil, err
	}
	completed, err := s.referralRepo.CountByStatus(constants.ReferralStatusComplete)
	if err != nil {
		return nil, err
	}
	totalPaid, err := s.referralRepo.TotalCompletedEarnings()
	if err != nil {
		return nil, err
	}
	totalClicks, err := s.clickRepo.Count()
	if err != nil {
		return nil, err
	}
	recentClicks, err := s.clickRepo.CountSince(time.Now().AddDate(0, 0, -30))
	if err != nil {
		return nil, err
	}

	return &AdminStats{
		TotalUsers:         totalUsers,
		TotalReferrals:     totalReferrals,
		PendingReferrals:   pending,
		SignedUpReferrals:  signedUp,
		CompletedReferrals: completed,
		TotalEarningsPaid:  totalPaid,
		TotalClicks:        totalClicks,
		ClicksLast30Days:   recentClicks,
	}, nil
}

// ExportReferrals 导出全量推荐记录
// 推荐人信息按 ID 去重回填，已删除推荐人的行保留但推荐人字段为空
func (s *AdminService) ExportReferrals(ctx context.Context) ([]ExportRow, error) {
	referrals, err := s.referralRepo.ListAllForExport()
	if err != nil {
		return nil, err
	}

	referrers := make(map[uint]*models.User)
	rows := make([]ExportRow, 0, len(referrals))
	for _, referral := range referrals {
		referrer, ok := referrers[referral.ReferrerID]
		if !ok {
			referrer, err = s.userRepo.GetByID(referral.ReferrerID)
			if err != nil {
				return nil, err
			}
			referrers[referral.ReferrerID] = referrer
		}

		row := ExportRow{
			ID:            referral.ID,
			ReferredEmail: referral.ReferredEmail,
			Status:        referral.Status,
			Earnings:      referral.Earnings,
			CreatedAt:     referral.CreatedAt,
			CompletedAt:   referral.CompletedAt,
		}
		if referrer != nil {
			row.ReferrerEmail = referrer.Email
			row.ReferrerCode = referrer.ReferralCode
		}
		rows = append(rows, row)
	}
	return rows, nil
}
