// Package otp issues and verifies one-time passcodes for out-of-band
// identity proofing. Codes are numeric, short-TTL, single-use, and scoped to
// a purpose so a code issued for identity verification can never be replayed
// against the password-reset flow for the same identifier.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose scopes a code to one flow. The purpose is part of the storage key.
type Purpose string

const (
	// PurposeVerifyIdentity covers email/phone ownership verification.
	PurposeVerifyIdentity Purpose = "verify-identity"
	// PurposeResetPassword covers the password-reset flow.
	PurposeResetPassword Purpose = "reset-password"
)

var (
	// ErrExpired is returned when no code exists for the key: never issued,
	// already consumed, or past its TTL.
	ErrExpired = errors.New("otp expired")
	// ErrMismatch is returned when the presented code is wrong. The stored
	// code is left intact, allowing bounded retries up to the TTL.
	ErrMismatch = errors.New("otp mismatch")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("otp store unavailable")
)

// Generator produces a numeric code of the given length. Production uses
// crypto/rand; tests inject a deterministic one.
type Generator func(digits int) (string, error)

// Config controls code shape and lifetime.
type Config struct {
	Digits   int
	TTL      time.Duration
	Generate Generator // nil selects the crypto/rand generator
}

// Manager issues and single-use-verifies codes. Safe for concurrent use.
type Manager struct {
	redis    redis.UniversalClient
	digits   int
	ttl      time.Duration
	generate Generator
}

// NewManager validates cfg and returns a Manager.
func NewManager(client redis.UniversalClient, cfg Config) (*Manager, error) {
	if cfg.Digits < 4 || cfg.Digits > 10 {
		return nil, errors.New("otp digits must be between 4 and 10")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("otp TTL must be positive")
	}
	gen := cfg.Generate
	if gen == nil {
		gen = randomCode
	}
	return &Manager{redis: client, digits: cfg.Digits, ttl: cfg.TTL, generate: gen}, nil
}

func key(purpose Purpose, identifier string) string {
	return "otp:" + string(purpose) + ":" + identifier
}

// Issue generates a code, stores it under {purpose, identifier} with the
// configured TTL, and returns it. Delivery is the caller's concern; the code
// must never reach production logs. Re-issuing replaces any outstanding code.
func (m *Manager) Issue(ctx context.Context, purpose Purpose, identifier string) (string, error) {
	code, err := m.generate(m.digits)
	if err != nil {
		return "", err
	}
	if err := m.redis.Set(ctx, key(purpose, identifier), code, m.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return code, nil
}

// Verify checks a presented code. On a match the stored code is deleted
// before returning, enforcing single use; an immediate second Verify with
// the same code returns ErrExpired.
func (m *Manager) Verify(ctx context.Context, purpose Purpose, identifier, presented string) error {
	k := key(purpose, identifier)
	stored, err := m.redis.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return ErrMismatch
	}

	if err := m.redis.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func randomCode(digits int) (string, error) {
	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}
