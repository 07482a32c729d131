package service

import (
	"fmt"

	"github.com/smileref/smileref/internal/config"
)

type passwordPolicyError struct {
	message string
}

func (e passwordPolicyError) Error() string {
	return e.message
}

func (e passwordPolicyError) Is(target error) bool {
	return target == ErrWeakPassword
}

func validatePassword(policy config.PasswordPolicyConfig, password string) error {
	minLength := policy.MinLength
	if minLength <= 0 {
		minLength = 8
	}
	if len([]rune(password)) < minLength {
		return passwordPolicyError{message: fmt.Sprintf("password must be at least %d characters", minLength)}
	}
	return nil
}
