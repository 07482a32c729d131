package main

import (
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/constants"
	"github.com/smileref/smileref/internal/logger"
	"github.com/smileref/smileref/internal/models"

	"github.com/google/uuid"
)

type seedUser struct {
	Email   string
	Name    string
	Phone   string
	Staff   string
	IsAdmin bool
}

type seedReferral struct {
	ReferrerEmail string
	ReferredEmail string
	ReferredName  string
	Status        string
	Reward        float64
	DaysAgo       int
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	users := []seedUser{
		{Email: "admin@smileref.local", Name: "Clinic Admin", IsAdmin: true},
		{Email: "alice@example.com", Name: "Alice Zhang", Phone: "555-0101", Staff: "Maria"},
		{Email: "bob@example.com", Name: "Bob Lee", Phone: "555-0102"},
		{Email: "carol@example.com", Name: "Carol Wu", Phone: "555-0103", Staff: "Jenny"},
	}
	for _, item := range users {
		if err := ensureUser(item); err != nil {
			stdLog.Printf("Failed to seed user %s: %v", item.Email, err)
		} else {
			stdLog.Printf("Seeded user: %s", item.Email)
		}
	}

	referrals := []seedReferral{
		{ReferrerEmail: "alice@example.com", ReferredEmail: "dave@example.com", ReferredName: "Dave Kim", Status: constants.ReferralStatusSignedUp, DaysAgo: 10},
		{ReferrerEmail: "alice@example.com", ReferredEmail: "erin@example.com", ReferredName: "Erin Park", Status: constants.ReferralStatusComplete, Reward: cfg.Referral.RewardAmount, DaysAgo: 30},
		{ReferrerEmail: "bob@example.com", ReferredEmail: "frank@example.com", ReferredName: "Frank Chen", Status: constants.ReferralStatusSignedUp, DaysAgo: 3},
	}
	for _, item := range referrals {
		if err := ensureReferral(item); err != nil {
			stdLog.Printf("Failed to seed referral %s -> %s: %v", item.ReferrerEmail, item.ReferredEmail, err)
		} else {
			stdLog.Printf("Seeded referral: %s -> %s", item.ReferrerEmail, item.ReferredEmail)
		}
	}

	stdLog.Printf("Seed finished")
}

func ensureUser(item seedUser) error {
	var existing models.User
	err := models.DB.Where("email = ?", item.Email).First(&existing).Error
	if err == nil {
		return nil
	}

	code, err := models.RandomReferralCode()
	if err != nil {
		return err
	}
	user := models.User{
		Email:           item.Email,
		ReferralCode:    code,
		Name:            item.Name,
		Phone:           item.Phone,
		SignedUpByStaff: item.Staff,
		IsAdmin:         item.IsAdmin,
	}
	return models.DB.Create(&user).Error
}

func ensureReferral(item seedReferral) error {
	var referrer models.User
	if err := models.DB.Where("email = ?", item.ReferrerEmail).First(&referrer).Error; err != nil {
		return err
	}

	var existing models.Referral
	err := models.DB.Where("referrer_id = ? AND referred_email = ?", referrer.ID, item.ReferredEmail).
		First(&existing).Error
	if err == nil {
		return nil
	}

	createdAt := time.Now().AddDate(0, 0, -item.DaysAgo)
	referral := models.Referral{
		ReferrerID:    referrer.ID,
		ReferredEmail: item.ReferredEmail,
		ReferredName:  item.ReferredName,
		Origin:        constants.ReferralOriginLink,
		Status:        item.Status,
		TrackingID:    uuid.New().String(),
		CreatedAt:     createdAt,
	}
	if item.Status == constants.ReferralStatusComplete {
		completedAt := createdAt.AddDate(0, 0, 7)
		referral.CompletedAt = &completedAt
		referral.Earnings = models.NewMoneyFromFloat(item.Reward)
	}
	if err := models.DB.Create(&referral).Error; err != nil {
		return err
	}
	if referral.Earnings.IsPositive() {
		return models.DB.Model(&models.User{}).
			Where("id = ?", referrer.ID).
			Update("total_earnings", models.NewMoneyFromFloat(item.Reward)).Error
	}
	return nil
}
