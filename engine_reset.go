package authcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hrforge/authcore/otp"
)

// RequestPasswordReset issues a reset-password passcode for the identifier
// and enqueues its delivery.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	return e.RequestOTP(ctx, otp.PurposeResetPassword, identifier)
}

// ConfirmPasswordResetOTP consumes a reset-password passcode and mints a
// single-use, short-TTL reset token the caller presents to [Engine.ResetPassword].
// The token bounds the window between code confirmation and the actual
// password change.
func (e *Engine) ConfirmPasswordResetOTP(ctx context.Context, identifier, code string) (string, error) {
	if err := e.VerifyOTP(ctx, otp.PurposeResetPassword, identifier, code); err != nil {
		return "", err
	}

	tok := uuid.NewString()
	if err := e.resetTokens.put(ctx, identifier, tok); err != nil {
		return "", err
	}
	return tok, nil
}

// ResetPassword consumes the reset token, replaces the account's password
// hash, and revokes every live session for the principal. Unknown
// identifiers and stale tokens are indistinguishable.
func (e *Engine) ResetPassword(ctx context.Context, identifier, resetToken, newPassword string) error {
	if err := e.resetTokens.consume(ctx, identifier, resetToken); err != nil {
		return err
	}

	acct, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.credentials.UpdateByID(ctx, acct.ID, AccountPatch{PasswordHash: &hash}); err != nil {
		return err
	}

	if err := e.sessions.RevokeAll(ctx, acct.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metrics.passwordResets.Inc()
	e.logger.Info("password reset completed", zap.String("principal_id", acct.ID))
	return nil
}
