package models

import (
	"net/mail"
	"strings"

	dErrors "opsdash/pkg/domain-errors"
)

const (
	maxEmailLength    = 255
	maxPasswordLength = 256
	maxTokenLength    = 4096
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims and lowercases the email address.
func (r *LoginRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *LoginRequest) Validate() error {
	r.Normalize()
	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if len(r.Password) > maxPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password exceeds max length")
	}
	return nil
}

// RefreshRequest carries the refresh assertion in the body, never a cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r *RefreshRequest) Validate() error {
	return validateToken(r.RefreshToken, true)
}

// LogoutRequest optionally names the refresh assertion to revoke alongside the session.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken,omitempty"`
}

func (r *LogoutRequest) Validate() error {
	return validateToken(r.RefreshToken, false)
}

// PasswordResetRequest is the body of POST /auth/password-reset.
type PasswordResetRequest struct {
	Email string `json:"email"`
}

func (r *PasswordResetRequest) Validate() error {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return validateEmail(r.Email)
}

func validateEmail(email string) error {
	if email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(email) > maxEmailLength {
		return dErrors.New(dErrors.CodeValidation, "email exceeds max length")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

func validateToken(token string, required bool) error {
	if token == "" {
		if required {
			return dErrors.New(dErrors.CodeValidation, "refreshToken is required")
		}
		return nil
	}
	if len(token) > maxTokenLength {
		return dErrors.New(dErrors.CodeValidation, "refreshToken exceeds max length")
	}
	return nil
}
