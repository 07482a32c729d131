package service

import (
	"errors"
	"testing"

	"github.com/smileref/smileref/internal/config"
)

func TestValidatePassword(t *testing.T) {
	policy := config.PasswordPolicyConfig{MinLength: 8}

	if err := validatePassword(policy, "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("short password want ErrWeakPassword got %v", err)
	}
	if err := validatePassword(policy, "exactly8"); err != nil {
		t.Fatalf("boundary length should pass, got %v", err)
	}

	// 长度按字符数而不是字节数计算
	if err := validatePassword(policy, "密码密码密码密码"); err != nil {
		t.Fatalf("multibyte password of 8 runes should pass, got %v", err)
	}

	// 未配置时使用默认下限
	if err := validatePassword(config.PasswordPolicyConfig{}, "1234567"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("default policy should reject 7 chars, got %v", err)
	}
	if err := validatePassword(config.PasswordPolicyConfig{}, "12345678"); err != nil {
		t.Fatalf("default policy should accept 8 chars, got %v", err)
	}
}
