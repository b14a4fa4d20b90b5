// Package token mints and verifies the two credential kinds used by the
// engine: short-lived self-contained access tokens and server-tracked
// refresh tokens. The two kinds are signed with distinct keys so a leaked
// refresh key can never forge an access token, and vice versa.
package token

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid is returned when a token fails signature or shape checks.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

// Config carries the signing material and expiry policy. AccessSecret and
// RefreshSecret must differ; both are immutable after NewIssuer.
type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
}

// Identity is the claim source for an access token. Flags are read from the
// account at issue time, never cached.
type Identity struct {
	PrincipalID string
	Role        string
	Email       string
	Active      bool
	Verified    bool
}

// AccessClaims is the decoded claim set of an access token.
type AccessClaims struct {
	Role     string `json:"role"`
	Active   bool   `json:"active"`
	Verified bool   `json:"verified"`
	Email    string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded claim set of a refresh token: the principal id
// (sub), the per-token id (jti), and the session id (sid). The sid stays
// stable across rotations of the same session and keys the registry record;
// the jti changes on every rotation.
type RefreshClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Pair is a freshly minted access/refresh token pair. SessionID is the sid
// embedded in Refresh; the caller registers the pair with the session
// registry under it. RefreshID is the per-token jti.
type Pair struct {
	Access    string
	Refresh   string
	RefreshID string
	SessionID string
}

// Issuer mints and verifies token pairs. Safe for concurrent use.
type Issuer struct {
	config Config
}

// NewIssuer validates the signing configuration. Misconfiguration is fatal
// here, at startup, never per request.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.AccessSecret) < 32 {
		return nil, errors.New("access signing secret must be >= 32 bytes")
	}
	if len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("refresh signing secret must be >= 32 bytes")
	}
	if subtle.ConstantTimeCompare(cfg.AccessSecret, cfg.RefreshSecret) == 1 {
		return nil, errors.New("access and refresh signing secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access TTL must be positive")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	return &Issuer{config: cfg}, nil
}

// Issue mints an access/refresh pair for id under a brand new session id.
// The refresh token carries only the principal id, a fresh random jti, and
// the sid; all other state stays server-side.
func (i *Issuer) Issue(id Identity) (Pair, error) {
	return i.Reissue(id, uuid.NewString())
}

// Reissue mints an access/refresh pair that continues an existing session:
// the sid is carried over unchanged while the jti is fresh. Rotation uses
// this so the registry record keeps a stable key across the session's life.
func (i *Issuer) Reissue(id Identity, sessionID string) (Pair, error) {
	if sessionID == "" {
		return Pair{}, fmt.Errorf("%w: empty session id", ErrTokenInvalid)
	}
	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		Role:     id.Role,
		Active:   id.Active,
		Verified: id.Verified,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PrincipalID,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.AccessTTL)),
		},
	})
	accessStr, err := access.SignedString(i.config.AccessSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}

	jti := uuid.NewString()
	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.PrincipalID,
			ID:        jti,
			Issuer:    i.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.config.RefreshTTL)),
		},
	})
	refreshStr, err := refresh.SignedString(i.config.RefreshSecret)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return Pair{Access: accessStr, Refresh: refreshStr, RefreshID: jti, SessionID: sessionID}, nil
}

// ParseAccess verifies the signature and expiry of an access token and
// returns its claims. Pure cryptographic verification, no store lookups.
func (i *Issuer) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(tokenStr, claims, i.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies the signature and expiry of a refresh token and
// returns its claims. The session registry decides whether the token is
// still live.
func (i *Issuer) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(tokenStr, claims, i.config.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// RefreshTTL exposes the configured refresh lifetime so callers can size the
// session record TTL to match the token.
func (i *Issuer) RefreshTTL() time.Duration {
	return i.config.RefreshTTL
}

func (i *Issuer) parse(tokenStr string, claims jwt.Claims, secret []byte) error {
	parsed, err := jwt.ParseWithClaims(
		tokenStr,
		claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.config.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
