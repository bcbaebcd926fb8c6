package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/hash"
)

// Verification is the outcome of checking a submitted code.
// Reason is set only when Valid is false: "invalid" covers absent, mismatched,
// already-consumed, and superseded codes; "expired" is reported separately so
// clients can prompt for a resend instead of a retype.
type Verification struct {
	Valid  bool
	Reason string
}

const (
	ReasonInvalid = "invalid"
	ReasonExpired = "expired"
)

// Manager drives the OTP state machine per (email, purpose):
// absent -> issued -> consumed | expired | superseded.
type Manager interface {
	Issue(ctx context.Context, email, purpose string) (code string, expiresAt time.Time, err error)
	CheckRateLimit(ctx context.Context, email, purpose string) error
	Verify(ctx context.Context, email, purpose, code string, consume bool) (Verification, error)
	CleanupExpired(ctx context.Context) (int, error)
	// TTLMinutes reports the configured code lifetime for client display.
	TTLMinutes() int
}

type otpStore interface {
	Upsert(ctx context.Context, rec *domain.OTPRecord) error
	Get(ctx context.Context, email, purpose string) (*domain.OTPRecord, error)
	Consume(ctx context.Context, email, purpose, codeHash string) error
	MarkUsed(ctx context.Context, email, purpose, codeHash string) error
	DeleteExpired(ctx context.Context, now int64) (int, error)
}

type manager struct {
	store    otpStore
	ttl      time.Duration
	cooldown time.Duration
}

func NewManager(store otpStore, ttl, cooldown time.Duration) Manager {
	return &manager{store: store, ttl: ttl, cooldown: cooldown}
}

// Issue generates a fresh 6-digit code and atomically replaces any existing
// record for (email, purpose); an unconsumed predecessor is superseded. The
// plaintext code goes only to the caller dispatching the notification; it is
// never persisted and never logged.
func (m *manager) Issue(ctx context.Context, email, purpose string) (string, time.Time, error) {
	email = domain.NormalizeEmail(email)
	code, err := generateCode()
	if err != nil {
		return "", time.Time{}, err
	}
	codeHash, err := hash.New(code)
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	rec := &domain.OTPRecord{
		Email:     email,
		Purpose:   purpose,
		CodeHash:  codeHash,
		Used:      false,
		ExpiresAt: expiresAt.Unix(),
		CreatedAt: now.Unix(),
	}
	if err := m.store.Upsert(ctx, rec); err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// CheckRateLimit returns a domain.RateLimitError when the last issuance for
// (email, purpose) is within the cooldown window.
func (m *manager) CheckRateLimit(ctx context.Context, email, purpose string) error {
	email = domain.NormalizeEmail(email)
	rec, err := m.store.Get(ctx, email, purpose)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	elapsed := time.Since(time.Unix(rec.CreatedAt, 0))
	if elapsed < m.cooldown {
		return &domain.RateLimitError{RetryAfter: m.cooldown - elapsed}
	}
	return nil
}

// Verify checks a submitted code against the live record. With consume=true
// the match-and-mark-used step is a single conditional write, so concurrent
// attempts with the same valid code cannot both observe Valid=true.
func (m *manager) Verify(ctx context.Context, email, purpose, code string, consume bool) (Verification, error) {
	email = domain.NormalizeEmail(email)
	rec, err := m.store.Get(ctx, email, purpose)
	if err != nil {
		return Verification{}, err
	}
	if rec == nil || rec.Used {
		return Verification{Valid: false, Reason: ReasonInvalid}, nil
	}
	if time.Now().Unix() > rec.ExpiresAt {
		// Burn the stale record so the same expired code cannot be retried.
		// Passing the hash we read keeps the burn from touching a slot that
		// a reissue replaced after our Get.
		if err := m.store.MarkUsed(ctx, email, purpose, rec.CodeHash); err != nil {
			slog.Warn("failed to mark expired otp as used", "purpose", purpose, "err", err)
		}
		return Verification{Valid: false, Reason: ReasonExpired}, nil
	}
	if !hash.Verify(code, rec.CodeHash) {
		return Verification{Valid: false, Reason: ReasonInvalid}, nil
	}
	if consume {
		if err := m.store.Consume(ctx, email, purpose, rec.CodeHash); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				// Lost the consume race or the record was reissued underneath us.
				return Verification{Valid: false, Reason: ReasonInvalid}, nil
			}
			return Verification{}, err
		}
	}
	return Verification{Valid: true}, nil
}

// CleanupExpired deletes every record past its expiry. Idempotent, and safe
// alongside issuance/verification: expired records are invalid either way.
func (m *manager) CleanupExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, time.Now().Unix())
}

func (m *manager) TTLMinutes() int {
	return int(m.ttl.Minutes())
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
