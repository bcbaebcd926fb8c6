package domain

import (
	"strings"
	"time"
)

// Auth provider values. The invariant is enforced by the account directory:
// "email" requires a password hash and no google_id, "google" the reverse,
// "both" requires both.
const (
	ProviderEmail  = "email"
	ProviderGoogle = "google"
	ProviderBoth   = "both"
)

// Account is a user identity record supporting one or more auth methods.
type Account struct {
	AccountID      string     `json:"id" dynamodbav:"account_id"`
	Email          string     `json:"email" dynamodbav:"email"`
	Phone          *string    `json:"phone,omitempty" dynamodbav:"phone"`
	PasswordHash   string     `json:"-" dynamodbav:"password_hash"`
	GoogleID       string     `json:"-" dynamodbav:"google_id"`
	AuthProvider   string     `json:"auth_provider" dynamodbav:"auth_provider"` // "email" | "google" | "both"
	FullName       string     `json:"full_name,omitempty" dynamodbav:"full_name"`
	ProfilePicture string     `json:"profile_picture,omitempty" dynamodbav:"profile_picture"`
	LastLogin      *time.Time `json:"last_login,omitempty" dynamodbav:"last_login"`
	CreatedAt      time.Time  `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" dynamodbav:"updated_at"`
}

// HasPassword reports whether password auth is enabled for the account.
func (a *Account) HasPassword() bool { return a.PasswordHash != "" }

// NormalizeEmail lowercases and trims an email address. Every lookup and
// write goes through this so the email-index GSI sees one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type SignUpRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
	FullName string  `json:"full_name"`
	Phone    *string `json:"phone,omitempty" validate:"omitempty,e164"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type SendOTPRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose" validate:"omitempty,oneof=signin password_reset"`
	Channel string `json:"channel" validate:"omitempty,oneof=email sms"`
}

type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	OTP         string `json:"otp" validate:"required,len=6,numeric"`
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

type GoogleCallbackRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}
