package authcore

import (
	"time"

	"github.com/hrforge/authcore/otp"
	"github.com/hrforge/authcore/password"
	"github.com/hrforge/authcore/token"
)

// Config is the explicit configuration for an [Engine], constructed once at
// startup and passed through [Builder.WithConfig]. There is no global
// configuration state; tests inject fixtures without mutating anything
// shared.
type Config struct {
	Token    token.Config
	Session  SessionConfig
	OTP      OTPConfig
	Reset    ResetConfig
	Password password.Params
}

// SessionConfig bounds concurrent refresh sessions per principal.
type SessionConfig struct {
	// MaxConcurrent is the soft upper bound on live refresh records per
	// principal. At the bound, the record closest to expiry is evicted to
	// make room. Zero selects the default of 5.
	MaxConcurrent int
}

// OTPConfig controls one-time passcode shape and lifetime.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
	// MaxRequests bounds code issuance per purpose/identifier pair within
	// RequestWindow. Issuance is where delivery cost lives, so the budget
	// sits there rather than on verification.
	MaxRequests   int
	RequestWindow time.Duration
	// Generate overrides the crypto/rand code generator. Test-only.
	Generate otp.Generator
}

// ResetConfig controls the password-reset completion token.
type ResetConfig struct {
	// TokenTTL bounds the window between OTP confirmation and the actual
	// password change.
	TokenTTL time.Duration
}

// DefaultConfig returns a Config with production-shaped expiry policy.
// Signing secrets are intentionally absent and must be supplied by the
// caller; Build fails without them.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
		},
		Session:  SessionConfig{MaxConcurrent: 5},
		OTP:      OTPConfig{Digits: 6, TTL: 10 * time.Minute, MaxRequests: 5, RequestWindow: time.Hour},
		Reset:    ResetConfig{TokenTTL: 15 * time.Minute},
		Password: password.DefaultParams,
	}
}
