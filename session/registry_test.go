package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hrforge/authcore/token"
)

func newTestRegistry(t *testing.T, maxSessions int) (*Registry, *miniredis.Miniredis, *token.Issuer) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  []byte("access-secret-0123456789abcdef-0123"),
		AccessTTL:     15 * time.Minute,
		RefreshSecret: []byte("refresh-secret-0123456789abcdef-012"),
		RefreshTTL:    time.Hour,
		Issuer:        "authcore-test",
	})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}

	return NewRegistry(rdb, issuer, maxSessions), mr, issuer
}

func testIdentity(principalID string) token.Identity {
	return token.Identity{PrincipalID: principalID, Role: "employee", Active: true}
}

func register(t *testing.T, reg *Registry, issuer *token.Issuer, principalID string) token.Pair {
	t.Helper()
	pair, err := issuer.Issue(testIdentity(principalID))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := reg.Register(context.Background(), principalID, pair.SessionID, pair.Refresh, issuer.RefreshTTL()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return pair
}

func TestRotateLeavesExactlyOneRecord(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)
	ctx := context.Background()

	pair := register(t, reg, issuer, "p-1")

	pair2, err := reg.Rotate(ctx, "p-1", pair.SessionID, pair.Refresh, testIdentity("p-1"))
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	pair3, err := reg.Rotate(ctx, "p-1", pair2.SessionID, pair2.Refresh, testIdentity("p-1"))
	if err != nil {
		t.Fatalf("second Rotate: %v", err)
	}
	if pair3.RefreshID == pair2.RefreshID || pair2.RefreshID == pair.RefreshID {
		t.Fatal("rotation reused a jti")
	}
	if pair2.SessionID != pair.SessionID || pair3.SessionID != pair.SessionID {
		t.Fatal("rotation changed the session id")
	}

	n, err := reg.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("active sessions = %d, want 1", n)
	}
}

func TestRotateUnknownSessionIsNotFound(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)

	pair, err := issuer.Issue(testIdentity("p-1"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = reg.Rotate(context.Background(), "p-1", pair.SessionID, pair.Refresh, testIdentity("p-1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRotatedOutTokenRevokesEverySession(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)
	ctx := context.Background()

	// Three live sessions for the principal. Rotate the first one, then
	// replay the token that rotation consumed.
	stale := register(t, reg, issuer, "p-1")
	register(t, reg, issuer, "p-1")
	register(t, reg, issuer, "p-1")

	if _, err := reg.Rotate(ctx, "p-1", stale.SessionID, stale.Refresh, testIdentity("p-1")); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	_, err := reg.Rotate(ctx, "p-1", stale.SessionID, stale.Refresh, testIdentity("p-1"))
	if !errors.Is(err, ErrReuseDetected) {
		t.Fatalf("err = %v, want ErrReuseDetected", err)
	}

	n, err := reg.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("active sessions after reuse = %d, want 0 (full revocation)", n)
	}
}

func TestConcurrentRotationHasOneWinner(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)
	ctx := context.Background()

	pair := register(t, reg, issuer, "p-1")

	const presenters = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		reuses int
	)
	for i := 0; i < presenters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Rotate(ctx, "p-1", pair.SessionID, pair.Refresh, testIdentity("p-1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrReuseDetected):
				reuses++
			case errors.Is(err, ErrNotFound):
				// Record already torn down by a reuse responder.
			default:
				t.Errorf("Rotate: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("successful rotations = %d, want exactly 1", wins)
	}
	if reuses == 0 {
		t.Error("no presenter tripped reuse detection")
	}

	// Reuse detection revokes everything, including the winner's record.
	n, err := reg.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("active sessions = %d, want 0", n)
	}
}

func TestEvictionPicksSmallestRemainingTTL(t *testing.T) {
	reg, mr, issuer := newTestRegistry(t, 3)
	ctx := context.Background()

	// Four sequential logins with clock advances in between, so the oldest
	// record always has the smallest remaining TTL at eviction time.
	first := register(t, reg, issuer, "p-1")
	mr.FastForward(3 * time.Minute)
	second := register(t, reg, issuer, "p-1")
	mr.FastForward(2 * time.Minute)
	third := register(t, reg, issuer, "p-1")
	mr.FastForward(time.Minute)
	fourth := register(t, reg, issuer, "p-1")

	n, err := reg.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if n != 3 {
		t.Fatalf("active sessions = %d, want 3", n)
	}

	if mr.Exists(key("p-1", first.SessionID)) {
		t.Error("record closest to expiry survived eviction")
	}
	for _, p := range []token.Pair{second, third, fourth} {
		if !mr.Exists(key("p-1", p.SessionID)) {
			t.Errorf("record %s evicted, want the oldest one", p.SessionID)
		}
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)
	ctx := context.Background()

	pair := register(t, reg, issuer, "p-1")
	if err := reg.Revoke(ctx, "p-1", pair.SessionID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := reg.Revoke(ctx, "p-1", pair.SessionID); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := reg.RevokeAll(ctx, "p-1"); err != nil {
		t.Fatalf("RevokeAll on empty prefix: %v", err)
	}
}

func TestRevokeAllOnlyTouchesOnePrincipal(t *testing.T) {
	reg, _, issuer := newTestRegistry(t, 5)
	ctx := context.Background()

	register(t, reg, issuer, "p-1")
	register(t, reg, issuer, "p-1")
	other := register(t, reg, issuer, "p-2")

	if err := reg.RevokeAll(ctx, "p-1"); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}

	n, err := reg.ActiveSessions(ctx, "p-1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if n != 0 {
		t.Errorf("p-1 sessions = %d, want 0", n)
	}
	if _, err := reg.Rotate(ctx, "p-2", other.SessionID, other.Refresh, testIdentity("p-2")); err != nil {
		t.Errorf("p-2 session unexpectedly revoked: %v", err)
	}
}
