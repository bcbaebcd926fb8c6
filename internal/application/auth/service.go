package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/application/account"
	"github.com/go-auth-nosql/internal/application/otp"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/hash"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// AuthResult is the uniform success payload of every authentication flow.
type AuthResult struct {
	Account *domain.Account
	Token   string
}

// GoogleResult adds whether the callback created a brand new account.
type GoogleResult struct {
	AuthResult
	IsNewUser bool
}

// OTPIssueResult tells the client how long the dispatched code stays valid.
type OTPIssueResult struct {
	ExpiresInMinutes int
}

// Service orchestrates signup, password sign-in, OTP sign-in, password reset,
// Google identity linking, and session token refresh.
type Service interface {
	SignUp(ctx context.Context, req domain.SignUpRequest) (*AuthResult, error)
	SignIn(ctx context.Context, req domain.SignInRequest) (*AuthResult, error)
	RequestOTP(ctx context.Context, req domain.SendOTPRequest) (*OTPIssueResult, error)
	VerifyOTPAndSignIn(ctx context.Context, req domain.VerifyOTPRequest) (*AuthResult, error)
	VerifyResetOTP(ctx context.Context, req domain.VerifyOTPRequest) error
	ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*AuthResult, error)
	CompleteGoogleSignIn(ctx context.Context, googleID, email, fullName, picture string) (*GoogleResult, error)
	UnlinkGoogle(ctx context.Context, accountID string) (*domain.Account, error)
	Refresh(ctx context.Context, token string) (string, error)
	Me(ctx context.Context, accountID string) (*domain.Account, error)
	SetAvatar(ctx context.Context, accountID string, r io.Reader, contentType string) (*domain.Account, error)
	CleanupOTPs(ctx context.Context) (int, error)
}

type tokenIssuer interface {
	Sign(accountID, email string) (string, error)
	Verify(token string) (*jwtinfra.Claims, error)
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type avatarStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

type service struct {
	directory account.Directory
	otps      otp.Manager
	tokens    tokenIssuer
	mailer    mailer
	sms       smsSender
	avatars   avatarStore
}

type ServiceDeps struct {
	Directory account.Directory
	OTPs      otp.Manager
	Tokens    tokenIssuer
	Mailer    mailer
	SMSSender smsSender
	Avatars   avatarStore
}

func NewService(deps ServiceDeps) Service {
	return &service{
		directory: deps.Directory,
		otps:      deps.OTPs,
		tokens:    deps.Tokens,
		mailer:    deps.Mailer,
		sms:       deps.SMSSender,
		avatars:   deps.Avatars,
	}
}

func (s *service) SignUp(ctx context.Context, req domain.SignUpRequest) (*AuthResult, error) {
	a, err := s.directory.CreateWithPassword(ctx, req.Email, req.Password, req.FullName, req.Phone)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Sign(a.AccountID, a.Email)
	if err != nil {
		return nil, err
	}
	s.directory.TouchLastLogin(ctx, a.AccountID)
	return &AuthResult{Account: a, Token: token}, nil
}

func (s *service) SignIn(ctx context.Context, req domain.SignInRequest) (*AuthResult, error) {
	a, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	// One error for both unknown email and wrong password, so the response
	// never reveals which part failed.
	if a == nil || !hash.Verify(req.Password, a.PasswordHash) {
		return nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	token, err := s.tokens.Sign(a.AccountID, a.Email)
	if err != nil {
		return nil, err
	}
	s.directory.TouchLastLogin(ctx, a.AccountID)
	return &AuthResult{Account: a, Token: token}, nil
}

func (s *service) RequestOTP(ctx context.Context, req domain.SendOTPRequest) (*OTPIssueResult, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = domain.PurposeSignIn
	}
	a, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		if purpose == domain.PurposeSignIn {
			return nil, fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
		}
		// Password reset must not reveal whether the email is registered:
		// report the same success without issuing or sending anything.
		return &OTPIssueResult{ExpiresInMinutes: s.otps.TTLMinutes()}, nil
	}
	if err := s.otps.CheckRateLimit(ctx, a.Email, purpose); err != nil {
		return nil, err
	}
	code, expiresAt, err := s.otps.Issue(ctx, a.Email, purpose)
	if err != nil {
		return nil, err
	}
	if err := s.dispatch(ctx, a, purpose, code, req.Channel); err != nil {
		if purpose == domain.PurposeSignIn {
			return nil, fmt.Errorf("failed to send verification code: %w", domain.ErrInternal)
		}
		// The reset path already promised a uniform response; a delivery
		// failure must not break that.
		slog.Warn("failed to dispatch password reset code", "err", err)
	}
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())
	return &OTPIssueResult{ExpiresInMinutes: minutes}, nil
}

func (s *service) dispatch(ctx context.Context, a *domain.Account, purpose, code, channel string) error {
	// Email is the fallback when the account has no phone or SMS delivery
	// is not configured.
	if channel == "sms" && a.Phone != nil && s.sms != nil {
		return s.sms.SendSMS(ctx, *a.Phone, "Your verification code: "+code)
	}
	subject := "Your sign-in code"
	if purpose == domain.PurposePasswordReset {
		subject = "Your password reset code"
	}
	return s.mailer.SendEmail(a.Email, subject, "Your code: "+code+"\nIt expires in a few minutes.")
}

func (s *service) VerifyOTPAndSignIn(ctx context.Context, req domain.VerifyOTPRequest) (*AuthResult, error) {
	v, err := s.otps.Verify(ctx, req.Email, domain.PurposeSignIn, req.OTP, true)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, otpFailure(v.Reason)
	}
	a, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
	}
	token, err := s.tokens.Sign(a.AccountID, a.Email)
	if err != nil {
		return nil, err
	}
	s.directory.TouchLastLogin(ctx, a.AccountID)
	return &AuthResult{Account: a, Token: token}, nil
}

// VerifyResetOTP checks the reset code without consuming it, so the client
// can collect the new password in a second call. ResetPassword re-validates
// and consumes; this check alone never authorizes anything.
func (s *service) VerifyResetOTP(ctx context.Context, req domain.VerifyOTPRequest) error {
	v, err := s.otps.Verify(ctx, req.Email, domain.PurposePasswordReset, req.OTP, false)
	if err != nil {
		return err
	}
	if !v.Valid {
		return otpFailure(v.Reason)
	}
	return nil
}

func (s *service) ResetPassword(ctx context.Context, req domain.ResetPasswordRequest) (*AuthResult, error) {
	v, err := s.otps.Verify(ctx, req.Email, domain.PurposePasswordReset, req.OTP, true)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, otpFailure(v.Reason)
	}
	a, err := s.directory.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
	}
	a, err = s.directory.SetPassword(ctx, a.AccountID, req.NewPassword)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Sign(a.AccountID, a.Email)
	if err != nil {
		return nil, err
	}
	s.directory.TouchLastLogin(ctx, a.AccountID)
	return &AuthResult{Account: a, Token: token}, nil
}

func (s *service) CompleteGoogleSignIn(ctx context.Context, googleID, email, fullName, picture string) (*GoogleResult, error) {
	a, err := s.directory.FindByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if a != nil {
		token, err := s.tokens.Sign(a.AccountID, a.Email)
		if err != nil {
			return nil, err
		}
		s.directory.TouchLastLogin(ctx, a.AccountID)
		return &GoogleResult{AuthResult: AuthResult{Account: a, Token: token}}, nil
	}

	a, err = s.directory.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a != nil {
		if a.GoogleID != "" && a.GoogleID != googleID {
			return nil, fmt.Errorf("email already linked to a different google account: %w", domain.ErrConflict)
		}
		a, err = s.directory.LinkGoogle(ctx, a.AccountID, googleID, picture)
		if err != nil {
			return nil, err
		}
		token, err := s.tokens.Sign(a.AccountID, a.Email)
		if err != nil {
			return nil, err
		}
		s.directory.TouchLastLogin(ctx, a.AccountID)
		return &GoogleResult{AuthResult: AuthResult{Account: a, Token: token}}, nil
	}

	a, err = s.directory.CreateWithProvider(ctx, email, googleID, fullName, picture)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Sign(a.AccountID, a.Email)
	if err != nil {
		return nil, err
	}
	s.directory.TouchLastLogin(ctx, a.AccountID)
	return &GoogleResult{AuthResult: AuthResult{Account: a, Token: token}, IsNewUser: true}, nil
}

func (s *service) UnlinkGoogle(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.directory.UnlinkGoogle(ctx, accountID)
}

// Refresh mints a new token for a currently valid one, provided the account
// still exists. The old token stays usable until its own expiry: tokens are
// stateless and there is no revocation list.
func (s *service) Refresh(ctx context.Context, token string) (string, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return "", err
	}
	a, err := s.directory.FindByID(ctx, claims.AccountID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", fmt.Errorf("account no longer exists: %w", domain.ErrUnauthorized)
	}
	return s.tokens.Sign(a.AccountID, a.Email)
}

func (s *service) Me(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := s.directory.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrUnauthorized)
	}
	return a, nil
}

// SetAvatar uploads the image under a fresh key, points the profile at it,
// and then removes the previous object so replacements don't pile up in the
// bucket. The removal is best-effort: an orphaned object is only storage.
func (s *service) SetAvatar(ctx context.Context, accountID string, r io.Reader, contentType string) (*domain.Account, error) {
	a, err := s.directory.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrUnauthorized)
	}
	url, err := s.avatars.Upload(ctx, "avatars/"+accountID+"/"+id.New(), r, contentType)
	if err != nil {
		return nil, fmt.Errorf("avatar upload failed: %w", domain.ErrInternal)
	}
	updated, err := s.directory.SetProfilePicture(ctx, accountID, url)
	if err != nil {
		return nil, err
	}
	if oldKey, ok := objectKey(a.ProfilePicture); ok {
		if err := s.avatars.Delete(ctx, oldKey); err != nil {
			slog.Warn("failed to delete previous avatar", "account_id", accountID, "err", err)
		}
	}
	return updated, nil
}

// objectKey extracts the key from an s3://bucket/key URL. Externally hosted
// pictures (such as a Google profile photo) don't match and are left alone.
func objectKey(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", false
	}
	_, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func (s *service) CleanupOTPs(ctx context.Context) (int, error) {
	return s.otps.CleanupExpired(ctx)
}

func otpFailure(reason string) error {
	if reason == otp.ReasonExpired {
		return fmt.Errorf("otp expired: %w", domain.ErrUnauthorized)
	}
	return fmt.Errorf("invalid otp: %w", domain.ErrUnauthorized)
}
