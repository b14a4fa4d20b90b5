package pgstore

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/hrforge/authcore"
)

var _ authcore.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implements authcore.CredentialStore on PostgreSQL.
type CredentialStore struct {
	db DB
}

// NewCredentialStore wraps db.
func NewCredentialStore(db DB) *CredentialStore {
	return &CredentialStore{db: db}
}

const accountColumns = `id, email, phone, password_hash, role, active, verified, created_at, updated_at`

// FindByEmail returns the account owning email.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findBy(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

// FindByPhone returns the account owning phone.
func (s *CredentialStore) FindByPhone(ctx context.Context, phone string) (*authcore.Account, error) {
	return s.findBy(ctx, `SELECT `+accountColumns+` FROM accounts WHERE phone = $1`, phone)
}

// FindByID returns the account by primary key.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.findBy(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *CredentialStore) findBy(ctx context.Context, query string, arg any) (*authcore.Account, error) {
	var (
		acct  authcore.Account
		email *string
		phone *string
	)
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&acct.ID, &email, &phone, &acct.PasswordHash, &acct.Role,
		&acct.Active, &acct.Verified, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, infraErr("find account", err)
	}
	if email != nil {
		acct.Email = *email
	}
	if phone != nil {
		acct.Phone = *phone
	}
	return &acct, nil
}

// CreateWithEmployee inserts the account and its employee profile in one
// transaction. Either both rows commit or neither does. Unique violations
// map to the engine's conflict errors: email/phone to ErrAlreadyExists, the
// employee invite reference to ErrInviteInvalid.
func (s *CredentialStore) CreateWithEmployee(ctx context.Context, acct *authcore.Account, emp *authcore.Employee) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return infraErr("begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, email, phone, password_hash, role, active, verified, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		acct.ID, nullable(acct.Email), nullable(acct.Phone), acct.PasswordHash,
		acct.Role, acct.Active, acct.Verified, acct.CreatedAt, acct.UpdatedAt,
	)
	if err != nil {
		return classifyInsertErr(err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO employees (id, account_id, invite_code, department_id, position_id, status, hire_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		emp.ID, emp.AccountID, emp.InviteCode, emp.DepartmentID, emp.PositionID,
		emp.Status, emp.HireDate, emp.CreatedAt, emp.UpdatedAt,
	)
	if err != nil {
		return classifyInsertErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyInsertErr(err)
	}
	return nil
}

// UpdateByID applies the non-nil fields of patch.
func (s *CredentialStore) UpdateByID(ctx context.Context, id string, patch authcore.AccountPatch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if patch.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*patch.PasswordHash))
	}
	if patch.Active != nil {
		sets = append(sets, "active = "+arg(*patch.Active))
	}
	if patch.Verified != nil {
		sets = append(sets, "verified = "+arg(*patch.Verified))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")

	query := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return infraErr("update account", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func classifyInsertErr(err error) error {
	constraint, ok := asUniqueViolation(err)
	if !ok {
		return infraErr("create account aggregate", err)
	}
	switch constraint {
	case "accounts_email_key", "accounts_phone_key":
		return authcore.ErrAlreadyExists
	case "employees_invite_code_key":
		return authcore.ErrInviteInvalid
	default:
		return infraErr("create account aggregate", err)
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
