package authcore

import (
	"context"
	"time"
)

// Role is the closed set of principal roles.
type Role string

const (
	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
	// RoleHR is a human-resources operator.
	RoleHR Role = "hr"
	// RoleManager is a department manager.
	RoleManager Role = "manager"
	// RoleEmployee is a regular employee.
	RoleEmployee Role = "employee"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHR, RoleManager, RoleEmployee:
		return true
	}
	return false
}

// Account is the identity record for one principal. Accounts are never
// hard-deleted; deactivation clears Active.
type Account struct {
	ID           string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	Active       bool
	Verified     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmploymentStatus is the lifecycle state of an employee profile.
type EmploymentStatus string

const (
	// EmploymentActive marks a currently employed profile.
	EmploymentActive EmploymentStatus = "active"
	// EmploymentTerminated marks an ended employment.
	EmploymentTerminated EmploymentStatus = "terminated"
)

// Employee is the employment profile owned by an Account, stored as its own
// record joined by AccountID and written together with the account in one
// transaction during registration.
type Employee struct {
	ID           string
	AccountID    string
	InviteCode   string
	DepartmentID string
	PositionID   string
	Status       EmploymentStatus
	HireDate     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InviteStatus is the lifecycle state of an invite code.
type InviteStatus string

const (
	// InviteActive is consumable.
	InviteActive InviteStatus = "ACTIVE"
	// InviteUsed has been consumed by a registration.
	InviteUsed InviteStatus = "USED"
	// InviteRevoked was withdrawn by an administrator.
	InviteRevoked InviteStatus = "REVOKED"
	// InviteExpired passed its validity window.
	InviteExpired InviteStatus = "EXPIRED"
)

// Invite is a pre-provisioned, department/position-bound registration ticket
// owned by a sibling module. The engine only ever transitions ACTIVE to USED.
type Invite struct {
	Code         string
	Status       InviteStatus
	DepartmentID string
	PositionID   string
}

// TokenPair is the result of a successful login or refresh. The caller
// stores the refresh token in an HTTP-only cookie equivalent and the access
// token as a bearer credential.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegistrationInput carries the caller-supplied fields for Register.
type RegistrationInput struct {
	InviteCode string
	Email      string
	Phone      string
	Password   string
	FirstName  string
	LastName   string
	Role       Role
}

// AccountPatch is a partial account update. Nil fields are left unchanged.
type AccountPatch struct {
	PasswordHash *string
	Active       *bool
	Verified     *bool
}

// CredentialStore is the document-oriented persistence contract for
// accounts and their employee profiles. Lookups return ErrAccountNotFound
// when no record matches; infrastructure failures wrap ErrStoreUnavailable.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByPhone(ctx context.Context, phone string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// CreateWithEmployee persists the account and its employee profile
	// inside a single transaction; either both rows commit or neither does.
	// Unique-key collisions surface as ErrAlreadyExists (email/phone) or
	// ErrInviteInvalid (invite reference consumed concurrently).
	CreateWithEmployee(ctx context.Context, acct *Account, emp *Employee) error
	UpdateByID(ctx context.Context, id string, patch AccountPatch) error
}

// InviteStore is the contract to the sibling invite module.
type InviteStore interface {
	// FindActiveByCode returns the invite only while it is ACTIVE;
	// unknown or non-ACTIVE codes return ErrInviteInvalid.
	FindActiveByCode(ctx context.Context, code string) (*Invite, error)
	// MarkUsed transitions ACTIVE to USED. Idempotent: marking an already
	// USED invite is not an error.
	MarkUsed(ctx context.Context, code string) error
}

// TaskQueue hands slow or external work off the request path. Delivery is
// at-least-once and fire-and-forget from the engine's point of view.
type TaskQueue interface {
	Enqueue(ctx context.Context, job string, payload any) error
}

// Job names published to the TaskQueue.
const (
	// JobSendVerification asks the notification worker to deliver a
	// verification message for a newly registered or unverified principal.
	JobSendVerification = "notification.send_verification"
	// JobSendOTP asks the notification worker to deliver a one-time
	// passcode. The code travels only in the payload; it is never logged.
	JobSendOTP = "notification.send_otp"
)
