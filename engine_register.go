package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// verificationNotice is the payload of a JobSendVerification task.
type verificationNotice struct {
	PrincipalID string `json:"principal_id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
}

// Register runs the invite-gated registration flow: validate the invite,
// check identifier uniqueness, persist the account and employee profile in
// one transaction, consume the invite, and enqueue the verification
// notification.
//
// Failure before the transaction leaves no state behind. The invite
// transition runs after commit and is the one accepted narrow inconsistency
// window: if it fails, a valid account coexists with a stale ACTIVE invite.
// That invite cannot be consumed again (the employee row holds a unique
// reference to it), so the condition is logged for reconciliation rather
// than rolled back. The notification enqueue is best-effort.
func (e *Engine) Register(ctx context.Context, input RegistrationInput) error {
	if err := validateRegistration(&input); err != nil {
		e.metrics.registrations.WithLabelValues("invalid").Inc()
		return err
	}

	invite, err := e.invites.FindActiveByCode(ctx, input.InviteCode)
	if err != nil {
		if errors.Is(err, ErrInviteInvalid) {
			e.metrics.registrations.WithLabelValues("invite_invalid").Inc()
		}
		return err
	}

	if err := e.checkUniqueness(ctx, input.Email, input.Phone); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			e.metrics.registrations.WithLabelValues("already_exists").Inc()
		}
		return err
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		return err
	}

	now := time.Now()
	acct := &Account{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: hash,
		Role:         input.Role,
		Active:       true,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	emp := &Employee{
		ID:           uuid.NewString(),
		AccountID:    acct.ID,
		InviteCode:   invite.Code,
		DepartmentID: invite.DepartmentID,
		PositionID:   invite.PositionID,
		Status:       EmploymentActive,
		HireDate:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// The only step requiring multi-record atomicity. A concurrent
	// registration racing on the same invite loses here on the employee
	// row's unique invite reference and observes ErrInviteInvalid.
	if err := e.credentials.CreateWithEmployee(ctx, acct, emp); err != nil {
		switch {
		case errors.Is(err, ErrAlreadyExists):
			e.metrics.registrations.WithLabelValues("already_exists").Inc()
		case errors.Is(err, ErrInviteInvalid):
			e.metrics.registrations.WithLabelValues("invite_invalid").Inc()
		}
		return err
	}

	if err := e.invites.MarkUsed(ctx, invite.Code); err != nil {
		e.logger.Error("invite not marked used after committed registration; needs reconciliation",
			zap.String("invite_code", invite.Code),
			zap.String("principal_id", acct.ID),
			zap.Error(err))
	}

	if err := e.queue.Enqueue(ctx, JobSendVerification, verificationNotice{
		PrincipalID: acct.ID,
		Email:       acct.Email,
		Phone:       acct.Phone,
		FirstName:   input.FirstName,
	}); err != nil {
		e.metrics.enqueueFailures.Inc()
		e.logger.Warn("verification notification dropped",
			zap.String("principal_id", acct.ID),
			zap.Error(err))
	}

	e.metrics.registrations.WithLabelValues("success").Inc()
	e.logger.Info("registration completed",
		zap.String("principal_id", acct.ID),
		zap.String("invite_code", invite.Code))
	return nil
}

// checkUniqueness probes email and phone in parallel. Email takes precedence
// when both collide.
func (e *Engine) checkUniqueness(ctx context.Context, email, phone string) error {
	var emailTaken, phoneTaken bool

	g, gctx := errgroup.WithContext(ctx)
	if email != "" {
		g.Go(func() error {
			_, err := e.credentials.FindByEmail(gctx, email)
			if err == nil {
				emailTaken = true
				return nil
			}
			if errors.Is(err, ErrAccountNotFound) {
				return nil
			}
			return err
		})
	}
	if phone != "" {
		g.Go(func() error {
			_, err := e.credentials.FindByPhone(gctx, phone)
			if err == nil {
				phoneTaken = true
				return nil
			}
			if errors.Is(err, ErrAccountNotFound) {
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if emailTaken {
		return fmt.Errorf("%w: email", ErrAlreadyExists)
	}
	if phoneTaken {
		return fmt.Errorf("%w: phone", ErrAlreadyExists)
	}
	return nil
}

func validateRegistration(input *RegistrationInput) error {
	if input.InviteCode == "" {
		return ErrInviteInvalid
	}
	if input.Email == "" && input.Phone == "" {
		return fmt.Errorf("%w: email or phone required", ErrInvalidInput)
	}
	if input.Role == "" {
		input.Role = RoleEmployee
	}
	if !input.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, input.Role)
	}
	return nil
}
