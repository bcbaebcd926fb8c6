package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/hash"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash   = "password_hash"
	fieldGoogleID       = "google_id"
	fieldAuthProvider   = "auth_provider"
	fieldFullName       = "full_name"
	fieldProfilePicture = "profile_picture"
	fieldLastLogin      = "last_login"
)

// Directory is the single authority over account records. It normalizes
// emails, hashes credentials, and enforces the auth_provider invariant:
// "email" iff password only, "google" iff google identity only, "both" iff both.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindByGoogleID(ctx context.Context, googleID string) (*domain.Account, error)
	CreateWithPassword(ctx context.Context, email, password, fullName string, phone *string) (*domain.Account, error)
	CreateWithProvider(ctx context.Context, email, googleID, fullName, picture string) (*domain.Account, error)
	LinkGoogle(ctx context.Context, accountID, googleID, picture string) (*domain.Account, error)
	UnlinkGoogle(ctx context.Context, accountID string) (*domain.Account, error)
	SetPassword(ctx context.Context, accountID, newPassword string) (*domain.Account, error)
	SetProfilePicture(ctx context.Context, accountID, url string) (*domain.Account, error)
	TouchLastLogin(ctx context.Context, accountID string)
}

type accountStore interface {
	Put(ctx context.Context, a *domain.Account) error
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.Account, error)
	Update(ctx context.Context, accountID string, updates map[string]interface{}) error
	UpdateAndRemove(ctx context.Context, accountID string, updates map[string]interface{}, removes ...string) error
}

type directory struct {
	store accountStore
}

func NewDirectory(store accountStore) Directory {
	return &directory{store: store}
}

func (d *directory) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return d.store.GetByEmail(ctx, domain.NormalizeEmail(email))
}

func (d *directory) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return d.store.Get(ctx, accountID)
}

func (d *directory) FindByGoogleID(ctx context.Context, googleID string) (*domain.Account, error) {
	return d.store.GetByGoogleID(ctx, googleID)
}

// CreateWithPassword registers an email/password account. An optional phone
// number (E.164) enables the SMS OTP channel for the account.
func (d *directory) CreateWithPassword(ctx context.Context, email, password, fullName string, phone *string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	existing, err := d.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	passwordHash, err := hash.New(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	a := &domain.Account{
		AccountID:    id.New(),
		Email:        email,
		Phone:        phone,
		PasswordHash: passwordHash,
		AuthProvider: domain.ProviderEmail,
		FullName:     fullName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.store.Put(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *directory) CreateWithProvider(ctx context.Context, email, googleID, fullName, picture string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	existing, err := d.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	now := time.Now().UTC()
	a := &domain.Account{
		AccountID:      id.New(),
		Email:          email,
		GoogleID:       googleID,
		AuthProvider:   domain.ProviderGoogle,
		FullName:       fullName,
		ProfilePicture: picture,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.store.Put(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *directory) LinkGoogle(ctx context.Context, accountID, googleID, picture string) (*domain.Account, error) {
	owner, err := d.store.GetByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	if owner != nil && owner.AccountID != accountID {
		return nil, fmt.Errorf("google account already linked to another account: %w", domain.ErrConflict)
	}
	a, err := d.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	provider := domain.ProviderGoogle
	if a.HasPassword() {
		provider = domain.ProviderBoth
	}
	updates := map[string]interface{}{
		fieldGoogleID:     googleID,
		fieldAuthProvider: provider,
	}
	if a.ProfilePicture == "" && picture != "" {
		updates[fieldProfilePicture] = picture
		a.ProfilePicture = picture
	}
	if err := d.store.Update(ctx, accountID, updates); err != nil {
		return nil, err
	}
	a.GoogleID = googleID
	a.AuthProvider = provider
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

func (d *directory) UnlinkGoogle(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := d.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	if !a.HasPassword() {
		return nil, fmt.Errorf("cannot unlink google account: no password set: %w", domain.ErrBadRequest)
	}
	updates := map[string]interface{}{
		fieldAuthProvider: domain.ProviderEmail,
	}
	if err := d.store.UpdateAndRemove(ctx, accountID, updates, fieldGoogleID); err != nil {
		return nil, err
	}
	a.GoogleID = ""
	a.AuthProvider = domain.ProviderEmail
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

func (d *directory) SetPassword(ctx context.Context, accountID, newPassword string) (*domain.Account, error) {
	a, err := d.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	passwordHash, err := hash.New(newPassword)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		fieldPasswordHash: passwordHash,
	}
	// First password on a google-linked account promotes it to "both".
	if !a.HasPassword() && a.GoogleID != "" {
		updates[fieldAuthProvider] = domain.ProviderBoth
		a.AuthProvider = domain.ProviderBoth
	}
	if err := d.store.Update(ctx, accountID, updates); err != nil {
		return nil, err
	}
	a.PasswordHash = passwordHash
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

func (d *directory) SetProfilePicture(ctx context.Context, accountID, url string) (*domain.Account, error) {
	a, err := d.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("account not found: %w", domain.ErrNotFound)
	}
	if err := d.store.Update(ctx, accountID, map[string]interface{}{fieldProfilePicture: url}); err != nil {
		return nil, err
	}
	a.ProfilePicture = url
	a.UpdatedAt = time.Now().UTC()
	return a, nil
}

// TouchLastLogin is best-effort: a failed write is logged, never propagated,
// so a login can't fail on bookkeeping.
func (d *directory) TouchLastLogin(ctx context.Context, accountID string) {
	if err := d.store.Update(ctx, accountID, map[string]interface{}{fieldLastLogin: time.Now().UTC()}); err != nil {
		slog.Warn("failed to update last_login", "account_id", accountID, "err", err)
	}
}
