package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hrforge/authcore/otp"
	"github.com/hrforge/authcore/password"
	"github.com/hrforge/authcore/session"
	"github.com/hrforge/authcore/token"
)

// Engine is the authentication core. It is immutable after [Builder.Build]
// and safe for concurrent use; every operation runs to completion on its own
// request goroutine with no in-process lock held across a store round-trip.
type Engine struct {
	config      Config
	issuer      *token.Issuer
	sessions    *session.Registry
	otp         *otp.Manager
	otpLimiter  *otpRequestLimiter
	hasher      *password.Hasher
	resetTokens *resetTokenStore
	credentials CredentialStore
	invites     InviteStore
	queue       TaskQueue
	logger      *zap.Logger
	metrics     *Metrics
}

// Login authenticates an employee-portal sign-in by email or phone and
// returns a fresh token pair. Unknown identifiers and wrong passwords are
// indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (TokenPair, error) {
	return e.login(ctx, identifier, pass, CapPortalSignIn)
}

// LoginAdmin authenticates an administrative-console sign-in. Identical to
// Login except for the capability required of the account's role.
func (e *Engine) LoginAdmin(ctx context.Context, identifier, pass string) (TokenPair, error) {
	return e.login(ctx, identifier, pass, CapConsoleSignIn)
}

func (e *Engine) login(ctx context.Context, identifier, pass string, required Capability) (TokenPair, error) {
	acct, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metrics.loginAttempts.WithLabelValues("invalid_credentials").Inc()
			return TokenPair{}, ErrInvalidCredentials
		}
		e.metrics.loginAttempts.WithLabelValues("error").Inc()
		return TokenPair{}, err
	}

	ok, err := e.hasher.Verify(pass, acct.PasswordHash)
	if err != nil || !ok {
		e.metrics.loginAttempts.WithLabelValues("invalid_credentials").Inc()
		return TokenPair{}, ErrInvalidCredentials
	}

	if !acct.Active {
		e.metrics.loginAttempts.WithLabelValues("disabled").Inc()
		return TokenPair{}, ErrAccountDisabled
	}
	if !acct.Role.Can(required) {
		e.metrics.loginAttempts.WithLabelValues("not_allowed").Inc()
		return TokenPair{}, ErrRoleNotAllowed
	}

	pair, err := e.issuer.Issue(e.identity(acct))
	if err != nil {
		e.metrics.loginAttempts.WithLabelValues("error").Inc()
		return TokenPair{}, err
	}

	evicted, err := e.sessions.Register(ctx, acct.ID, pair.SessionID, pair.Refresh, e.issuer.RefreshTTL())
	if err != nil {
		e.metrics.loginAttempts.WithLabelValues("error").Inc()
		return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if evicted > 0 {
		e.metrics.sessionEvictions.Add(float64(evicted))
		e.logger.Info("session evicted at concurrency bound",
			zap.String("principal_id", acct.ID),
			zap.Int("evicted", evicted))
	}

	e.metrics.loginAttempts.WithLabelValues("success").Inc()
	e.logger.Info("login succeeded",
		zap.String("principal_id", acct.ID),
		zap.String("role", string(acct.Role)))
	return TokenPair{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}

// Refresh exchanges a refresh token for a new pair. The token's signature is
// verified first; the session registry then decides whether it is still
// live. A rotated-out token revokes every session for the principal and
// returns ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := e.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrRefreshNotFound
	}
	principalID, sessionID := claims.Subject, claims.SessionID

	// Flags are read fresh on every rotation; a deactivation between
	// refreshes takes effect here.
	acct, err := e.credentials.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			_ = e.sessions.Revoke(ctx, principalID, sessionID)
			return TokenPair{}, ErrRefreshNotFound
		}
		return TokenPair{}, err
	}
	if !acct.Active {
		if err := e.sessions.Revoke(ctx, principalID, sessionID); err != nil {
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return TokenPair{}, ErrAccountDisabled
	}

	pair, err := e.sessions.Rotate(ctx, principalID, sessionID, refreshToken, e.identity(acct))
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return TokenPair{}, ErrRefreshNotFound
		case errors.Is(err, session.ErrReuseDetected):
			e.metrics.refreshReuse.Inc()
			e.logger.Warn("refresh token reuse detected, all sessions revoked",
				zap.String("principal_id", principalID),
				zap.String("session_id", sessionID))
			return TokenPair{}, ErrRefreshReuse
		default:
			return TokenPair{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	e.metrics.refreshRotations.Inc()
	return TokenPair{AccessToken: pair.Access, RefreshToken: pair.Refresh}, nil
}

// Logout revokes a single session. Idempotent.
func (e *Engine) Logout(ctx context.Context, principalID, sessionID string) error {
	if err := e.sessions.Revoke(ctx, principalID, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// LogoutToken revokes the session named by a refresh token. A token that
// fails signature or expiry checks names no live session, so it is a no-op
// rather than an error.
func (e *Engine) LogoutToken(ctx context.Context, refreshToken string) error {
	claims, err := e.issuer.ParseRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return e.Logout(ctx, claims.Subject, claims.SessionID)
}

// LogoutAll revokes every session for a principal (administrative
// force-logout). Idempotent.
func (e *Engine) LogoutAll(ctx context.Context, principalID string) error {
	if err := e.sessions.RevokeAll(ctx, principalID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.logger.Info("all sessions revoked", zap.String("principal_id", principalID))
	return nil
}

// VerifyAccess verifies an access token's signature and expiry and returns
// its claims. Stateless: no store round-trips.
func (e *Engine) VerifyAccess(tokenStr string) (*token.AccessClaims, error) {
	return e.issuer.ParseAccess(tokenStr)
}

func (e *Engine) identity(acct *Account) token.Identity {
	return token.Identity{
		PrincipalID: acct.ID,
		Role:        string(acct.Role),
		Email:       acct.Email,
		Active:      acct.Active,
		Verified:    acct.Verified,
	}
}

// findByIdentifier routes to the email or phone lookup. Anything containing
// '@' is treated as an email.
func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	if strings.Contains(identifier, "@") {
		return e.credentials.FindByEmail(ctx, identifier)
	}
	return e.credentials.FindByPhone(ctx, identifier)
}
