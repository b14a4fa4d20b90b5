package authcore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hrforge/authcore/otp"
)

// otpDelivery is the payload of a JobSendOTP task. The code travels only
// here, to the delivery worker.
type otpDelivery struct {
	Identifier string      `json:"identifier"`
	Purpose    otp.Purpose `json:"purpose"`
	Code       string      `json:"code"`
}

// RequestOTP issues a one-time passcode for the purpose/identifier pair and
// enqueues its delivery. The code is never returned to the caller and never
// logged. Whether the identifier belongs to an account is not revealed: a
// code is issued either way and the delivery worker decides what to send.
func (e *Engine) RequestOTP(ctx context.Context, purpose otp.Purpose, identifier string) error {
	if err := e.otpLimiter.check(ctx, purpose, identifier); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metrics.otpThrottled.WithLabelValues(string(purpose)).Inc()
		}
		return err
	}

	code, err := e.otp.Issue(ctx, purpose, identifier)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metrics.otpIssued.WithLabelValues(string(purpose)).Inc()

	if err := e.queue.Enqueue(ctx, JobSendOTP, otpDelivery{
		Identifier: identifier,
		Purpose:    purpose,
		Code:       code,
	}); err != nil {
		// Without delivery the code is useless; surface the failure so the
		// caller can retry the whole request.
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// VerifyOTP checks a presented code. A match consumes the code; for the
// verify-identity purpose it also marks the matching account verified.
// ErrOTPMismatch leaves the code intact for bounded retries; neither error
// reveals whether the identifier exists.
func (e *Engine) VerifyOTP(ctx context.Context, purpose otp.Purpose, identifier, code string) error {
	if err := e.otp.Verify(ctx, purpose, identifier, code); err != nil {
		switch {
		case errors.Is(err, otp.ErrExpired):
			e.metrics.otpVerifications.WithLabelValues(string(purpose), "expired").Inc()
			return ErrOTPExpired
		case errors.Is(err, otp.ErrMismatch):
			e.metrics.otpVerifications.WithLabelValues(string(purpose), "mismatch").Inc()
			return ErrOTPMismatch
		default:
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	e.metrics.otpVerifications.WithLabelValues(string(purpose), "ok").Inc()

	if purpose == otp.PurposeVerifyIdentity {
		if err := e.markVerified(ctx, identifier); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) markVerified(ctx context.Context, identifier string) error {
	acct, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Code was issued for an identifier with no account; nothing to
			// flag, and existence is still not revealed.
			return nil
		}
		return err
	}
	verified := true
	if err := e.credentials.UpdateByID(ctx, acct.ID, AccountPatch{Verified: &verified}); err != nil {
		return err
	}
	e.logger.Info("account verified", zap.String("principal_id", acct.ID))
	return nil
}
