package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/queue"
	"github.com/smileref/smileref/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 完成操作不可执行时的原因标识
const (
	CompleteReasonAlreadyCompleted = "already_completed"
	CompleteReasonAnnualCapReached = "annual_cap_reached"
)

// ReferralService 推荐台账服务
// 负责推荐记录全生命周期以及奖励的发放与冲销
type ReferralService struct {
	cfg          *config.Config
	userRepo     repository.UserRepository
	referralRepo repository.ReferralRepository
	clickRepo    repository.ReferralClickRepository
	emailService *EmailService
	queueClient  *queue.Client
}

// NewReferralService 创建推荐台账服务
func NewReferralService(cfg *config.Config, userRepo repository.UserRepository, referralRepo repository.ReferralRepository, clickRepo repository.ReferralClickRepository, emailService *EmailService, queueClient *queue.Client) *ReferralService {
	return &ReferralService{
		cfg:          cfg,
		userRepo:     userRepo,
		referralRepo: referralRepo,
		clickRepo:    clickRepo,
		emailService: emailService,
		queueClient:  queueClient,
	}
}

// RecordSignupInput 推荐注册入参
type RecordSignupInput struct {
	ReferralCode string
	Name         string
	Phone        string
	Email        string
	Staff        string
}

// CompleteResult 完成操作结果
// Completed 为 false 时 Reason 标识不可执行的原因，不作为错误返回
type CompleteResult struct {
	Completed bool             `json:"completed"`
	Reason    string           `json:"reason,omitempty"`
	Referral  *models.Referral `json:"referral"`
}

// AdjustResult 批量校准结果
type AdjustResult struct {
	CompletedAdded   int  `json:"completed_added"`
	CompletedRemoved int  `json:"completed_removed"`
	SignedUpAdded    int  `json:"signed_up_added"`
	SignedUpRemoved  int  `json:"signed_up_removed"`
	CapLimited       bool `json:"cap_limited"`
}

// DashboardStats 推荐人看板统计
type DashboardStats struct {
	TotalReferrals     int64        `json:"total_referrals"`
	SignedUpReferrals  int64        `json:"signed_up_referrals"`
	CompletedReferrals int64        `json:"completed_referrals"`
	TotalEarnings      models.Money `json:"total_earnings"`
	AnnualEarnings     models.Money `json:"annual_earnings"`
	RemainingEarnings  models.Money `json:"remaining_earnings"`
	CanEarnMore        bool         `json:"can_earn_more"`
	ReferralCode       string       `json:"referral_code"`
	ReferralLink       string       `json:"referral_link"`
}

// RecordSignup 记录一次推荐注册
// 姓名、电话、邮箱均为必填；同一推荐人对同一邮箱只能记录一次
func (s *ReferralService) RecordSignup(ctx context.Context, in RecordSignupInput) (*models.Referral, error) {
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)
	if name == "" || phone == "" {
		return nil, ErrReferralFieldRequired
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	staff, err := s.resolveStaffName(in.Staff)
	if err != nil {
		return nil, err
	}

	referrer, err := s.userRepo.GetByReferralCode(strings.ToUpper(strings.TrimSpace(in.ReferralCode)))
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, ErrReferrerNotFound
	}

	// 已是系统用户的邮箱不能再被推荐
	existingUser, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existingUser != nil {
		return nil, ErrAlreadyRegistered
	}

	existing, err := s.referralRepo.GetByReferrerAndEmail(referrer.ID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateReferral
	}

	now := time.Now()
	referral := &models.Referral{
		ReferrerID:      referrer.ID,
		ReferredEmail:   email,
		ReferredName:    name,
		ReferredPhone:   phone,
		SignedUpByStaff: staff,
		Origin:          constants.ReferralOriginLink,
		Status:          constants.ReferralStatusSignedUp,
		TrackingID:      uuid.New().String(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.referralRepo.Create(referral); err != nil {
		// 并发重复提交命中唯一索引
		if isUniqueViolation(err) {
			return nil, ErrDuplicateReferral
		}
		return nil, err
	}

	if err := s.deliverReferralNotify(referrer.Email, name); err != nil {
		logger.Warnw("referral_notify_send_failed",
			"referrer_id", referrer.ID,
			"error", err,
		)
	}

	return referral, nil
}

// Complete 将推荐标记为已完成并发放奖励
// 幂等：已完成或年度上限已满时返回不可完成的结果而非错误
func (s *ReferralService) Complete(ctx context.Context, referralID uint) (*CompleteResult, error) {
	referral, err := s.referralRepo.GetByID(referralID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, ErrReferralNotFound
	}
	if referral.IsCompleted() {
		return &CompleteResult{Completed: false, Reason: CompleteReasonAlreadyCompleted, Referral: referral}, nil
	}

	referrer, err := s.userRepo.GetByID(referral.ReferrerID)
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, ErrReferrerNotFound
	}

	canEarn, err := s.canEarnMore(referrer.ID, time.Now())
	if err != nil {
		return nil, err
	}
	if !canEarn {
		return &CompleteResult{Completed: false, Reason: CompleteReasonAnnualCapReached, Referral: referral}, nil
	}

	reward := models.NewMoneyFromFloat(resolveRewardAmount(s.cfg.Referral))
	now := time.Now()
	claimed := false
	err = s.referralRepo.DB().Transaction(func(tx *gorm.DB) error {
		// 条件更新保证并发完成只生效一次
		result := tx.Model(&models.Referral{}).
			Where("id = ? AND status <> ?", referral.ID, constants.ReferralStatusComplete).
			Updates(map[string]interface{}{
				"status":       constants.ReferralStatusComplete,
				"earnings":     reward,
				"completed_at": now,
				"updated_at":   now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		claimed = true
		return tx.Model(&models.User{}).
			Where("id = ?", referrer.ID).
			Updates(map[string]interface{}{
				"total_earnings": gorm.Expr("total_earnings + ?", reward),
				"updated_at":     now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	if !claimed {
		refreshed, err := s.referralRepo.GetByID(referral.ID)
		if err != nil {
			return nil, err
		}
		return &CompleteResult{Completed: false, Reason: CompleteReasonAlreadyCompleted, Referral: refreshed}, nil
	}

	referral.Status = constants.ReferralStatusComplete
	referral.Earnings = reward
	referral.CompletedAt = &now
	referral.UpdatedAt = now
	return &CompleteResult{Completed: true, Referral: referral}, nil
}

// Delete 删除推荐记录
// 已完成的记录先冲销推荐人的累计奖励，再删除行，同一事务内完成
func (s *ReferralService) Delete(ctx context.Context, referralID uint) error {
	referral, err := s.referralRepo.GetByID(referralID)
	if err != nil {
		return err
	}
	if referral == nil {
		return ErrReferralNotFound
	}

	return s.referralRepo.DB().Transaction(func(tx *gorm.DB) error {
		return s.deleteReferralTx(tx, referral)
	})
}

// deleteReferralTx 在事务内冲销并删除单条推荐
func (s *ReferralService) deleteReferralTx(tx *gorm.DB, referral *models.Referral) error {
	if referral.IsCompleted() && referral.Earnings.IsPositive() {
		if err := tx.Model(&models.User{}).
			Where("id = ?", referral.ReferrerID).
			Updates(map[string]interface{}{
				"total_earnings": gorm.Expr("total_earnings - ?", referral.Earnings),
				"updated_at":     time.Now(),
			}).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&models.Referral{}, referral.ID).Error
}

// Adjust 管理侧批量校准某用户的推荐计数
// 上调时合成 manual 来源的记录，下调时优先移除合成记录并冲销奖励
func (s *ReferralService) Adjust(ctx context.Context, userID uint, completedTarget, signedUpTarget *int) (*AdjustResult, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	result := &AdjustResult{}
	if completedTarget != nil {
		if err := s.adjustStatusCount(user, constants.ReferralStatusComplete, *completedTarget, result); err != nil {
			return nil, err
		}
	}
	if signedUpTarget != nil {
		if err := s.adjustStatusCount(user, constants.ReferralStatusSignedUp, *signedUpTarget, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *ReferralService) adjustStatusCount(user *models.User, status string, target int, result *AdjustResult) error {
	if target < 0 {
		target = 0
	}
	current, _, err := s.referralRepo.List(repository.ReferralListFilter{
		ReferrerID: user.ID,
		Status:     status,
	})
	if err != nil {
		return err
	}

	switch {
	case target > len(current):
		added, capLimited, err := s.synthesizeReferrals(user, status, target-len(current))
		if err != nil {
			return err
		}
		result.CapLimited = result.CapLimited || capLimited
		if status == constants.ReferralStatusComplete {
			result.CompletedAdded += added
		} else {
			result.SignedUpAdded += added
		}
	case target < len(current):
		removed, err := s.removeReferrals(current, len(current)-target)
		if err != nil {
			return err
		}
		if status == constants.ReferralStatusComplete {
			result.CompletedRemoved += removed
		} else {
			result.SignedUpRemoved += removed
		}
	}
	return nil
}

// synthesizeReferrals 合成指定数量的 manual 推荐记录
// 合成完成记录时仍受年度上限约束，到顶即停
func (s *ReferralService) synthesizeReferrals(user *models.User, status string, count int) (int, bool, error) {
	added := 0
	capLimited := false
	reward := models.NewMoneyFromFloat(resolveRewardAmount(s.cfg.Referral))

	for i := 0; i < count; i++ {
		now := time.Now()
		referral := &models.Referral{
			ReferrerID:    user.ID,
			ReferredEmail: fmt.Sprintf("manual-%s@adjust.local", uuid.New().String()[:8]),
			ReferredName:  "Manual adjustment",
			Origin:        constants.ReferralOriginManual,
			Status:        status,
			TrackingID:    uuid.New().String(),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if status == constants.ReferralStatusComplete {
			canEarn, err := s.canEarnMore(user.ID, now)
			if err != nil {
				return added, capLimited, err
			}
			if !canEarn {
				capLimited = true
				break
			}
			referral.Earnings = reward
			referral.CompletedAt = &now
		}

		err := s.referralRepo.DB().Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(referral).Error; err != nil {
				return err
			}
			if status != constants.ReferralStatusComplete {
				return nil
			}
			return tx.Model(&models.User{}).
				Where("id = ?", user.ID).
				Updates(map[string]interface{}{
					"total_earnings": gorm.Expr("total_earnings + ?", reward),
					"updated_at":     now,
				}).Error
		})
		if err != nil {
			return added, capLimited, err
		}
		added++
	}
	return added, capLimited, nil
}

// removeReferrals 移除多余记录，合成记录优先、新记录优先
func (s *ReferralService) removeReferrals(referrals []models.Referral, count int) (int, error) {
	ordered := make([]models.Referral, 0, len(referrals))
	for _, r := range referrals {
		if r.Origin == constants.ReferralOriginManual {
			ordered = append(ordered, r)
		}
	}
	for _, r := range referrals {
		if r.Origin != constants.ReferralOriginManual {
			ordered = append(ordered, r)
		}
	}

	removed := 0
	for _, referral := range ordered {
		if removed >= count {
			break
		}
		r := referral
		err := s.referralRepo.DB().Transaction(func(tx *gorm.DB) error {
			return s.deleteReferralTx(tx, &r)
		})
		if err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// TrackClick 记录推荐链接访问
// 返回推荐人 ID 供归因 Cookie 使用
func (s *ReferralService) TrackClick(ctx context.Context, code, ip, userAgent string) (*models.User, error) {
	referrer, err := s.userRepo.GetByReferralCode(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if referrer == nil {
		return nil, ErrReferrerNotFound
	}

	now := time.Now()
	if window := s.cfg.Referral.ClickDedupeWindowSecs; window > 0 && ip != "" {
		latest, err := s.clickRepo.GetLatestByReferrerAndIP(referrer.ID, ip)
		if err != nil {
			return nil, err
		}
		if latest != nil && now.Sub(latest.ClickedAt) < time.Duration(window)*time.Second {
			return referrer, nil
		}
	}

	click := &models.ReferralClick{
		ReferrerID: referrer.ID,
		IP:         ip,
		UserAgent:  userAgent,
		TrackingID: uuid.New().String(),
		ClickedAt:  now,
	}
	if err := s.clickRepo.Create(click); err != nil {
		return nil, err
	}
	return referrer, nil
}

// ResolveReferrerByID 根据用户 ID 解析推荐人（归因 Cookie 路径）
func (s *ReferralService) ResolveReferrerByID(userID uint) (*models.User, error) {
	if userID == 0 {
		return nil, ErrReferrerNotFound
	}
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrReferrerNotFound
	}
	return user, nil
}

// Stats 推荐人看板统计
func (s *ReferralService) Stats(ctx context.Context, userID uint) (*DashboardStats, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	total, err := s.countByReferrerAndStatus(user.ID, "")
	if err != nil {
		return nil, err
	}
	signedUp, err := s.countByReferrerAndStatus(user.ID, constants.ReferralStatusSignedUp)
	if err != nil {
		return nil, err
	}
	completed, err := s.countByReferrerAndStatus(user.ID, constants.ReferralStatusComplete)
	if err != nil {
		return nil, err
	}

	from, to := currentYearRange(time.Now())
	annual, err := s.referralRepo.CompletedEarningsInRange(user.ID, from, to)
	if err != nil {
		return nil, err
	}
	cap := decimal.NewFromFloat(resolveAnnualCap(s.cfg.Referral))
	remaining := cap.Sub(annual.Decimal)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return &DashboardStats{
		TotalReferrals:     total,
		SignedUpReferrals:  signedUp,
		CompletedReferrals: completed,
		TotalEarnings:      user.TotalEarnings,
		AnnualEarnings:     annual,
		RemainingEarnings:  models.NewMoneyFromDecimal(remaining),
		CanEarnMore:        annual.Decimal.LessThan(cap),
		ReferralCode:       user.ReferralCode,
		ReferralLink:       s.BuildReferralLink(user.ReferralCode),
	}, nil
}

// ListReferrals 推荐记录列表
func (s *ReferralService) ListReferrals(ctx context.Context, filter repository.ReferralListFilter) ([]models.Referral, int64, error) {
	return s.referralRepo.List(filter)
}

// BuildReferralLink 构造推荐链接
func (s *ReferralService) BuildReferralLink(code string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.Server.PublicURL), "/")
	return fmt.Sprintf("%s/ref/%s", base, code)
}

// canEarnMore 判断推荐人当前自然年内是否还能获得奖励
func (s *ReferralService) canEarnMore(referrerID uint, now time.Time) (bool, error) {
	from, to := currentYearRange(now)
	annual, err := s.referralRepo.CompletedEarningsInRange(referrerID, from, to)
	if err != nil {
		return false, err
	}
	cap := decimal.NewFromFloat(resolveAnnualCap(s.cfg.Referral))
	return annual.Decimal.LessThan(cap), nil
}

func (s *ReferralService) countByReferrerAndStatus(referrerID uint, status string) (int64, error) {
	_, total, err := s.referralRepo.List(repository.ReferralListFilter{
		ReferrerID: referrerID,
		Status:     status,
		Page:       1,
		PageSize:   1,
	})
	return total, err
}

// resolveStaffName 校验前台员工归因名
// 配置了白名单时必须命中，未配置白名单则原样收录
func (s *ReferralService) resolveStaffName(staff string) (string, error) {
	trimmed := strings.TrimSpace(staff)
	if trimmed == "" {
		return "", nil
	}
	allowed := s.cfg.Staff.AllowedNames
	if len(allowed) == 0 {
		return trimmed, nil
	}
	for _, name := range allowed {
		if strings.EqualFold(strings.TrimSpace(name), trimmed) {
			return strings.TrimSpace(name), nil
		}
	}
	return "", ErrStaffNameInvalid
}

func (s *ReferralService) deliverReferralNotify(referrerEmail, referredName string) error {
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueueReferralNotifyEmail(queue.ReferralNotifyEmailPayload{
			Email:        referrerEmail,
			ReferredName: referredName,
		})
	}
	if s.emailService == nil {
		return ErrEmailServiceNotConfigured
	}
	return s.emailService.SendReferralNotifyEmail(referrerEmail, referredName)
}

// currentYearRange 当前自然年区间 [1月1日, 次年1月1日)
func currentYearRange(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	to := from.AddDate(1, 0, 0)
	return from, to
}

func resolveRewardAmount(cfg config.ReferralConfig) float64 {
	if cfg.RewardAmount <= 0 {
		return 50.0
	}
	return cfg.RewardAmount
}

func resolveAnnualCap(cfg config.ReferralConfig) float64 {
	if cfg.AnnualCap <= 0 {
		return 500.0
	}
	return cfg.AnnualCap
}
