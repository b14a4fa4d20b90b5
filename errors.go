package authcore

import "errors"

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords. The two cases are never distinguished to the caller, which
	// would otherwise enable identifier enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned when the account exists but is
	// soft-deactivated.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrAccountNotFound is returned by credential-store lookups.
	ErrAccountNotFound = errors.New("account not found")
	// ErrRoleNotAllowed is returned when the account's role lacks the
	// capability required by the sign-in surface.
	ErrRoleNotAllowed = errors.New("role not allowed on this surface")

	// ErrRefreshNotFound means the presented refresh token is unknown,
	// already consumed, or expired. The bearer is fully unauthenticated.
	ErrRefreshNotFound = errors.New("refresh session not found")
	// ErrRefreshReuse means a rotated-out refresh token was presented.
	// Every session for the principal has been revoked as a side effect.
	// Callers may surface this identically to ErrRefreshNotFound.
	ErrRefreshReuse = errors.New("refresh token reuse detected")

	// ErrOTPExpired means no code is outstanding for the purpose/identifier.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch means the presented code is wrong; retries are allowed
	// until the TTL runs out.
	ErrOTPMismatch = errors.New("otp mismatch")

	// ErrRateLimited is returned when code issuance for a purpose/identifier
	// pair exceeds the configured window budget.
	ErrRateLimited = errors.New("too many otp requests")

	// ErrInvalidInput is returned when registration fields fail validation.
	ErrInvalidInput = errors.New("invalid registration input")
	// ErrAlreadyExists is returned when registration collides with an
	// existing email or phone number.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrInviteInvalid is returned when the invite code is unknown, not
	// ACTIVE, or was consumed by a concurrent registration.
	ErrInviteInvalid = errors.New("invite code invalid")
	// ErrResetTokenInvalid is returned when a password-reset token is
	// unknown, expired, or already consumed.
	ErrResetTokenInvalid = errors.New("reset token invalid")

	// ErrStoreUnavailable wraps infrastructure failures from the credential
	// store, the key-value store, or the task queue. Never retried
	// internally; the caller applies its own retry policy.
	ErrStoreUnavailable = errors.New("backing store unavailable")
)
