package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/models"
)

func setupOTPTokenRepositoryTest(t *testing.T) (*GormOTPTokenRepository, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:otp_repo_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.OTPToken{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewOTPTokenRepository(db), db
}

func TestOTPConsumeIsSingleUse(t *testing.T) {
	repo, _ := setupOTPTokenRepositoryTest(t)

	now := time.Now()
	token := &models.OTPToken{
		Email:     "single@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "654321",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	if err := repo.Create(token); err != nil {
		t.Fatalf("create token failed: %v", err)
	}

	if ok, err := repo.Consume("single@example.com", constants.OTPPurposeLogin, "999999", now); err != nil || ok {
		t.Fatalf("wrong code should not consume, ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Consume("single@example.com", constants.OTPPurposeReset, "654321", now); err != nil || ok {
		t.Fatalf("wrong purpose should not consume, ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Consume("single@example.com", constants.OTPPurposeLogin, "654321", now); err != nil || !ok {
		t.Fatalf("valid consume failed, ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Consume("single@example.com", constants.OTPPurposeLogin, "654321", now); err != nil || ok {
		t.Fatalf("second consume should fail, ok=%v err=%v", ok, err)
	}
}

func TestOTPConsumeRejectsExpired(t *testing.T) {
	repo, _ := setupOTPTokenRepositoryTest(t)

	now := time.Now()
	token := &models.OTPToken{
		Email:     "expired@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "111222",
		ExpiresAt: now.Add(-time.Second),
		SentAt:    now.Add(-11 * time.Minute),
		CreatedAt: now.Add(-11 * time.Minute),
	}
	if err := repo.Create(token); err != nil {
		t.Fatalf("create token failed: %v", err)
	}

	if ok, err := repo.Consume("expired@example.com", constants.OTPPurposeLogin, "111222", now); err != nil || ok {
		t.Fatalf("expired code should not consume, ok=%v err=%v", ok, err)
	}
}

func TestGetLatestReturnsNewestForPurpose(t *testing.T) {
	repo, _ := setupOTPTokenRepositoryTest(t)

	now := time.Now()
	older := &models.OTPToken{
		Email:     "stack@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "000001",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now.Add(-2 * time.Minute),
		CreatedAt: now.Add(-2 * time.Minute),
	}
	newer := &models.OTPToken{
		Email:     "stack@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "000002",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	reset := &models.OTPToken{
		Email:     "stack@example.com",
		Purpose:   constants.OTPPurposeReset,
		Code:      "000003",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	for _, token := range []*models.OTPToken{older, newer, reset} {
		if err := repo.Create(token); err != nil {
			t.Fatalf("create token failed: %v", err)
		}
	}

	latest, err := repo.GetLatest("stack@example.com", constants.OTPPurposeLogin)
	if err != nil {
		t.Fatalf("get latest failed: %v", err)
	}
	if latest == nil || latest.Code != "000002" {
		t.Fatalf("latest login code want 000002 got %+v", latest)
	}

	missing, err := repo.GetLatest("nobody@example.com", constants.OTPPurposeLogin)
	if err != nil {
		t.Fatalf("get latest for unknown email failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("unknown email should return nil, got %+v", missing)
	}
}

func TestDeleteExpiredPurgesOnlyStale(t *testing.T) {
	repo, db := setupOTPTokenRepositoryTest(t)

	now := time.Now()
	stale := &models.OTPToken{
		Email:     "purge@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "100001",
		ExpiresAt: now.Add(-time.Minute),
		SentAt:    now.Add(-11 * time.Minute),
		CreatedAt: now.Add(-11 * time.Minute),
	}
	live := &models.OTPToken{
		Email:     "purge@example.com",
		Purpose:   constants.OTPPurposeLogin,
		Code:      "100002",
		ExpiresAt: now.Add(10 * time.Minute),
		SentAt:    now,
		CreatedAt: now,
	}
	for _, token := range []*models.OTPToken{stale, live} {
		if err := repo.Create(token); err != nil {
			t.Fatalf("create token failed: %v", err)
		}
	}

	removed, err := repo.DeleteExpired(now)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed rows want 1 got %d", removed)
	}

	var count int64
	if err := db.Model(&models.OTPToken{}).Count(&count).Error; err != nil {
		t.Fatalf("count tokens failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("remaining rows want 1 got %d", count)
	}
}
