package service

import (
	"strings"
	"time"

	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/repository"
)

const referralCodeMaxAttempts = 8

// newReferralCode 推荐码生成器，测试中替换以构造碰撞
var newReferralCode = models.RandomReferralCode

// ensureUserByEmail 查找用户，不存在则创建仅可 OTP 登录的新用户
// name/phone/staff 仅在创建时写入，已有记录遵循先写优先
func ensureUserByEmail(userRepo repository.UserRepository, email, name, phone, staff string) (*models.User, error) {
	user, err := userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}
	return createUserWithReferralCode(userRepo, email, name, phone, staff, false)
}

// createUserWithReferralCode 创建用户并分配唯一推荐码
// 推荐码碰撞时换码重试，命中邮箱唯一索引说明并发创建，回读返回
func createUserWithReferralCode(userRepo repository.UserRepository, email, name, phone, staff string, isAdmin bool) (*models.User, error) {
	now := time.Now()
	for attempt := 0; attempt < referralCodeMaxAttempts; attempt++ {
		code, err := newReferralCode()
		if err != nil {
			return nil, err
		}
		user := &models.User{
			Email:           email,
			ReferralCode:    code,
			Name:            strings.TrimSpace(name),
			Phone:           strings.TrimSpace(phone),
			SignedUpByStaff: strings.TrimSpace(staff),
			IsAdmin:         isAdmin,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := userRepo.Create(user); err != nil {
			if isUniqueViolation(err) {
				existing, getErr := userRepo.GetByEmail(email)
				if getErr != nil {
					return nil, getErr
				}
				if existing != nil {
					return existing, nil
				}
				continue
			}
			return nil, err
		}
		return user, nil
	}
	return nil, ErrReferralCodeExhausted
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
