package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/repository"
)

func setupAdminServiceTest(t *testing.T) (*AdminService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:admin_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	err = db.AutoMigrate(&models.User{}, &models.Referral{}, &models.ReferralClick{}, &models.OTPToken{}, &models.OnboardingToken{})
	if err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	svc := NewAdminService(
		cfg,
		repository.NewUserRepository(db),
		repository.NewReferralRepository(db),
		repository.NewReferralClickRepository(db),
		repository.NewOTPTokenRepository(db),
	)
	return svc, db
}

func TestUpdateUserPartialFields(t *testing.T) {
	svc, db := setupAdminServiceTest(t)
	ctx := context.Background()

	user := &models.User{Email: "member@example.com", ReferralCode: "QQQQ2222", Name: "Original", Phone: "555-0150"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	name := "Renamed"
	admin := true
	updated, err := svc.UpdateUser(ctx, user.ID, UserUpdateInput{Name: &name, IsAdmin: &admin})
	if err != nil {
		t.Fatalf("update user failed: %v", err)
	}
	if updated.Name != "Renamed" || !updated.IsAdmin {
		t.Fatalf("updated fields mismatch: %+v", updated)
	}
	if updated.Phone != "555-0150" {
		t.Fatalf("untouched field should be preserved, got %q", updated.Phone)
	}

	if _, err := svc.UpdateUser(ctx, 99999, UserUpdateInput{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user want ErrNotFound got %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	svc, db := setupAdminServiceTest(t)
	ctx := context.Background()

	user := &models.User{Email: "leaving@example.com", ReferralCode: "RRRR3333"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	referral := &models.Referral{
		ReferrerID:    user.ID,
		ReferredEmail: "gone@example.com",
		Status:        constants.ReferralStatusSignedUp,
		Origin:        constants.ReferralOriginLink,
		TrackingID:    "cascade-1",
	}
	if err := db.Create(referral).Error; err != nil {
		t.Fatalf("create referral failed: %v", err)
	}
	click := &models.ReferralClick{ReferrerID: user.ID, IP: "10.0.0.9", TrackingID: "cascade-click", ClickedAt: time.Now()}
	if err := db.Create(click).Error; err != nil {
		t.Fatalf("create click failed: %v", err)
	}
	otp := &models.OTPToken{Email: "leaving@example.com", Purpose: constants.OTPPurposeLogin, Code: "333333", ExpiresAt: time.Now().Add(time.Minute)}
	if err := db.Create(otp).Error; err != nil {
		t.Fatalf("create otp failed: %v", err)
	}

	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user failed: %v", err)
	}

	counts := map[string]int64{}
	for name, model := range map[string]interface{}{
		"referrals": &models.Referral{},
		"clicks":    &models.ReferralClick{},
		"otps":      &models.OTPToken{},
	} {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %s failed: %v", name, err)
		}
		counts[name] = count
	}
	for name, count := range counts {
		if count != 0 {
			t.Fatalf("%s should be removed with the user, got %d rows", name, count)
		}
	}

	if err := svc.DeleteUser(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete want ErrNotFound got %v", err)
	}
}

func TestImportUserSkipsExisting(t *testing.T) {
	svc, _ := setupAdminServiceTest(t)
	ctx := context.Background()

	created, wasCreated, err := svc.ImportUser(ctx, " Import@Example.com ", "Imported", "555-0160", "Dana")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !wasCreated {
		t.Fatalf("first import should create the user")
	}
	if created.Email != "import@example.com" {
		t.Fatalf("email should be normalized, got %s", created.Email)
	}
	if len(created.ReferralCode) != 8 {
		t.Fatalf("imported user should get a referral code, got %q", created.ReferralCode)
	}
	if created.SignedUpByStaff != "Dana" {
		t.Fatalf("staff attribution want Dana got %q", created.SignedUpByStaff)
	}

	again, wasCreated, err := svc.ImportUser(ctx, "import@example.com", "Other Name", "", "")
	if err != nil {
		t.Fatalf("repeat import failed: %v", err)
	}
	if wasCreated {
		t.Fatalf("existing email should be skipped, not re-created")
	}
	if again.ID != created.ID {
		t.Fatalf("repeat import should return the existing user")
	}

	if _, _, err := svc.ImportUser(ctx, "broken", "", "", ""); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("bad email want ErrInvalidEmail got %v", err)
	}
}

func TestAdminStatsAndExport(t *testing.T) {
	svc, db := setupAdminServiceTest(t)
	ctx := context.Background()

	referrer := &models.User{Email: "top@example.com", ReferralCode: "SSSS4444"}
	if err := db.Create(referrer).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	now := time.Now()
	completed := &models.Referral{
		ReferrerID:    referrer.ID,
		ReferredEmail: "paid@example.com",
		Status:        constants.ReferralStatusComplete,
		Origin:        constants.ReferralOriginLink,
		Earnings:      models.NewMoneyFromFloat(50),
		TrackingID:    "stat-1",
		CompletedAt:   &now,
		CreatedAt:     now,
	}
	open := &models.Referral{
		ReferrerID:    referrer.ID,
		ReferredEmail: "waiting@example.com",
		Status:        constants.ReferralStatusSignedUp,
		Origin:        constants.ReferralOriginLink,
		TrackingID:    "stat-2",
		CreatedAt:     now,
	}
	for _, r := range []*models.Referral{completed, open} {
		if err := db.Create(r).Error; err != nil {
			t.Fatalf("create referral failed: %v", err)
		}
	}
	clicks := []models.ReferralClick{
		{ReferrerID: referrer.ID, IP: "10.1.0.1", TrackingID: "stat-click-1", ClickedAt: now},
		{ReferrerID: referrer.ID, IP: "10.1.0.2", TrackingID: "stat-click-2", ClickedAt: now.AddDate(0, 0, -45)},
	}
	for i := range clicks {
		if err := db.Create(&clicks[i]).Error; err != nil {
			t.Fatalf("create click failed: %v", err)
		}
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalUsers != 1 {
		t.Fatalf("total users want 1 got %d", stats.TotalUsers)
	}
	if stats.TotalReferrals != 2 || stats.CompletedReferrals != 1 || stats.SignedUpReferrals != 1 {
		t.Fatalf("referral counts want 2/1/1 got %d/%d/%d", stats.TotalReferrals, stats.CompletedReferrals, stats.SignedUpReferrals)
	}
	if !stats.TotalEarningsPaid.Decimal.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("earnings paid want 50 got %s", stats.TotalEarningsPaid.String())
	}
	if stats.TotalClicks != 2 {
		t.Fatalf("total clicks want 2 got %d", stats.TotalClicks)
	}
	if stats.ClicksLast30Days != 1 {
		t.Fatalf("recent clicks want 1 got %d", stats.ClicksLast30Days)
	}

	rows, err := svc.ExportReferrals(ctx)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("export rows want 2 got %d", len(rows))
	}
	for _, row := range rows {
		if row.ReferrerEmail != "top@example.com" || row.ReferrerCode != "SSSS4444" {
			t.Fatalf("referrer columns should be backfilled: %+v", row)
		}
	}
}
