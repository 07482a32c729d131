package public

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smileref/smileref/internal/config"
	"github.com/smileref/smileref/internal/models"
	"github.com/smileref/smileref/internal/provider"
	"github.com/smileref/smileref/internal/repository"
	"github.com/smileref/smileref/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupClickTrackingTest(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:public_referral_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Referral{}, &models.ReferralClick{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{PublicURL: "https://smile.example"},
		Referral: config.ReferralConfig{
			RewardAmount:            50,
			AnnualCap:               500,
			AttributionCookieName:   "ref_visitor",
			AttributionCookieMaxAge: 86400,
		},
	}

	userRepo := repository.NewUserRepository(db)
	referralSvc := service.NewReferralService(
		cfg,
		userRepo,
		repository.NewReferralRepository(db),
		repository.NewReferralClickRepository(db),
		service.NewEmailService(&cfg.Email),
		nil,
	)

	h := New(&provider.Container{
		Config:          cfg,
		UserRepo:        userRepo,
		ReferralService: referralSvc,
	})

	engine := gin.New()
	engine.GET("/ref/:code", h.TrackReferralClick)
	return engine, db
}

func TestTrackReferralClickRedirectsAndSetsCookie(t *testing.T) {
	engine, db := setupClickTrackingTest(t)

	user := &models.User{
		Email:        "referrer@example.com",
		ReferralCode: "GGGG7777",
		Name:         "Grace",
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ref/gggg7777", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Fatalf("expected status 302, got %d", w.Code)
	}
	if location := w.Header().Get("Location"); location != "https://smile.example/signup" {
		t.Fatalf("unexpected redirect target %q", location)
	}
	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "ref_visitor="+fmt.Sprint(user.ID)) {
		t.Fatalf("attribution cookie not set, got %q", cookie)
	}

	var clicks int64
	if err := db.Model(&models.ReferralClick{}).Count(&clicks).Error; err != nil {
		t.Fatalf("count clicks failed: %v", err)
	}
	if clicks != 1 {
		t.Fatalf("expected 1 click recorded, got %d", clicks)
	}
}

func TestTrackReferralClickUnknownCodeReturns404(t *testing.T) {
	engine, db := setupClickTrackingTest(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ref/NOSUCHCD", nil)
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown code, got %d", w.Code)
	}
	if body := w.Body.String(); body != "Invalid referral link" {
		t.Fatalf("unexpected body %q", body)
	}
	if cookie := w.Header().Get("Set-Cookie"); cookie != "" {
		t.Fatalf("no cookie should be set for unknown code, got %q", cookie)
	}

	var clicks int64
	if err := db.Model(&models.ReferralClick{}).Count(&clicks).Error; err != nil {
		t.Fatalf("count clicks failed: %v", err)
	}
	if clicks != 0 {
		t.Fatalf("expected no click rows, got %d", clicks)
	}
}
