package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeInvite(code string) *Invite {
	return &Invite{
		Code:         code,
		Status:       InviteActive,
		DepartmentID: "dept-eng",
		PositionID:   "pos-backend",
	}
}

func registrationInput(invite, email string) RegistrationInput {
	return RegistrationInput{
		InviteCode: invite,
		Email:      email,
		Password:   "a strong password",
		FirstName:  "Ada",
		LastName:   "Lovelace",
	}
}

func TestRegisterHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.invites = newFakeInvites(activeInvite("INV-1"))
	env.engine.invites = env.invites

	require.NoError(t, env.engine.Register(ctx, registrationInput("INV-1", "new@example.com")))

	// Account exists, inherits the invite's department/position binding.
	acct, err := env.credentials.FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleEmployee, acct.Role)
	assert.True(t, acct.Active)
	assert.False(t, acct.Verified)

	env.credentials.mu.Lock()
	emp := env.credentials.profiles["INV-1"]
	env.credentials.mu.Unlock()
	require.NotNil(t, emp)
	assert.Equal(t, acct.ID, emp.AccountID)
	assert.Equal(t, "dept-eng", emp.DepartmentID)
	assert.Equal(t, "pos-backend", emp.PositionID)
	assert.Equal(t, EmploymentActive, emp.Status)
	assert.False(t, emp.HireDate.IsZero())

	// Invite consumed, notification enqueued.
	assert.Equal(t, InviteUsed, env.invites.status("INV-1"))
	require.Len(t, env.queue.byName(JobSendVerification), 1)

	// And the new account can log in.
	_, err = env.engine.Login(ctx, "new@example.com", "a strong password")
	require.NoError(t, err)
}

func TestRegisterUnknownOrConsumedInvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	used := activeInvite("INV-USED")
	used.Status = InviteUsed
	env.invites = newFakeInvites(used)
	env.engine.invites = env.invites

	err := env.engine.Register(ctx, registrationInput("INV-MISSING", "a@example.com"))
	require.ErrorIs(t, err, ErrInviteInvalid)

	err = env.engine.Register(ctx, registrationInput("INV-USED", "a@example.com"))
	require.ErrorIs(t, err, ErrInviteInvalid)
}

func TestRegisterEmailCollisionLeavesNoPartialState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.invites = newFakeInvites(activeInvite("INV-1"))
	env.engine.invites = env.invites
	env.seedAccount(t, "p-1", "taken@example.com", "", "super secret pass", RoleHR, true)

	err := env.engine.Register(ctx, registrationInput("INV-1", "taken@example.com"))
	require.ErrorIs(t, err, ErrAlreadyExists)

	// No partial writes: invite still ACTIVE, no employee row, no ephemeral
	// keys, no notification.
	assert.Equal(t, InviteActive, env.invites.status("INV-1"))
	env.credentials.mu.Lock()
	_, wrote := env.credentials.profiles["INV-1"]
	env.credentials.mu.Unlock()
	assert.False(t, wrote)
	assert.Empty(t, env.redis.Keys())
	assert.Empty(t, env.queue.byName(JobSendVerification))
}

func TestRegisterPhoneCollision(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.invites = newFakeInvites(activeInvite("INV-1"))
	env.engine.invites = env.invites
	env.seedAccount(t, "p-1", "", "+15550001111", "super secret pass", RoleHR, true)

	input := registrationInput("INV-1", "fresh@example.com")
	input.Phone = "+15550001111"
	require.ErrorIs(t, env.engine.Register(ctx, input), ErrAlreadyExists)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := registrationInput("INV-1", "a@example.com")
	input.InviteCode = ""
	require.ErrorIs(t, env.engine.Register(ctx, input), ErrInviteInvalid)

	input = registrationInput("INV-1", "")
	require.ErrorIs(t, env.engine.Register(ctx, input), ErrInvalidInput)

	input = registrationInput("INV-1", "a@example.com")
	input.Role = Role("superuser")
	require.ErrorIs(t, env.engine.Register(ctx, input), ErrInvalidInput)
}

func TestRegisterConcurrentSameInvite(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.invites = newFakeInvites(activeInvite("INV-1"))
	env.engine.invites = env.invites

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			email := fmt.Sprintf("racer%d@example.com", i)
			results[i] = env.engine.Register(ctx, registrationInput("INV-1", email))
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrInviteInvalid):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, winners, "exactly one registration must win the invite")
	assert.Equal(t, InviteUsed, env.invites.status("INV-1"))
}

func TestRegisterEnqueueFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.invites = newFakeInvites(activeInvite("INV-1"))
	env.engine.invites = env.invites
	env.queue.fail = true

	// Registration commits even when the notification cannot be enqueued.
	require.NoError(t, env.engine.Register(ctx, registrationInput("INV-1", "new@example.com")))
	_, err := env.credentials.FindByEmail(ctx, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, InviteUsed, env.invites.status("INV-1"))
}
