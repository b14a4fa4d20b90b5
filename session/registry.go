// Package session implements the server-tracked side of refresh-token
// rotation: a Redis-backed registry of live refresh records keyed by
// refresh:{principalId}:{sessionId}, with bounded concurrent sessions,
// single-use rotation, and full revocation on reuse detection.
//
// The key stays stable for the whole life of a session; rotation overwrites
// the stored token in place under a compare-and-swap script. A stale token
// presented after rotation therefore still finds the record, fails the
// compare, and trips reuse detection instead of falling through as unknown.
//
// A refresh token is valid for presentation only while its record holds that
// exact token. Deleting the record revokes the session unconditionally.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrforge/authcore/token"
)

var (
	// ErrNotFound is returned when the presented refresh record is unknown,
	// already consumed, or expired. Callers must treat the bearer as fully
	// unauthenticated.
	ErrNotFound = errors.New("refresh session not found")
	// ErrReuseDetected is returned when a rotated-out refresh token is
	// presented again. Every session for the principal has been revoked by
	// the time this error is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("session store unavailable")
)

const keyPrefix = "refresh:"

// rotateScript swaps the stored refresh token for its successor, but only if
// the presented token is exactly what the record holds. Running it as a
// script makes the read-compare-write atomic: of N concurrent presentations
// of the same token, exactly one swaps and the rest see a mismatch.
//
// Returns 0 when the record is absent, -1 when the presented token does not
// match (the record is deleted on the way out), and 1 on a successful swap.
var rotateScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return 0
end
if stored ~= ARGV[1] then
	redis.call("DEL", KEYS[1])
	return -1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`)

// Registry is the session registry. Safe for concurrent use; all durable
// state lives in Redis.
type Registry struct {
	redis       redis.UniversalClient
	issuer      *token.Issuer
	maxSessions int
}

// NewRegistry creates a Registry bounded to maxSessions concurrent refresh
// records per principal. The bound is soft: concurrent logins for one
// principal may transiently exceed it (the eviction sequence is not wrapped
// in a distributed lock).
func NewRegistry(client redis.UniversalClient, issuer *token.Issuer, maxSessions int) *Registry {
	if maxSessions <= 0 {
		maxSessions = 5
	}
	return &Registry{redis: client, issuer: issuer, maxSessions: maxSessions}
}

func key(principalID, sessionID string) string {
	return keyPrefix + principalID + ":" + sessionID
}

func prefix(principalID string) string {
	return keyPrefix + principalID + ":"
}

// Register stores a refresh record for {principalID, sessionID} with the
// given TTL and returns the number of records evicted to make room. When the
// principal is already at the session bound, the record closest to expiry is
// evicted first, favoring long-lived sessions over soon-to-expire ones.
func (r *Registry) Register(ctx context.Context, principalID, sessionID, refreshToken string, ttl time.Duration) (int, error) {
	existing, err := r.scan(ctx, principalID)
	if err != nil {
		return 0, err
	}

	evicted := 0
	if len(existing) >= r.maxSessions {
		victim, err := r.closestToExpiry(ctx, existing)
		if err != nil {
			return 0, err
		}
		if victim != "" {
			if err := r.redis.Del(ctx, victim).Err(); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			evicted++
		}
	}

	if err := r.redis.Set(ctx, key(principalID, sessionID), refreshToken, ttl).Err(); err != nil {
		return evicted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return evicted, nil
}

// Rotate exchanges a presented refresh token for a new pair.
//
// The record key is the session id, so a token rotated out earlier still
// resolves to its session's record. The script compares the presented token
// against the stored one and overwrites it with the successor only on an
// exact match. A mismatch means the presented token is stale relative to
// what the store now holds, a replay signal: every record for the principal
// is deleted before ErrReuseDetected is returned. The blast radius of a
// leaked refresh token is "all sessions revoked", never "attacker keeps a
// parallel valid session".
func (r *Registry) Rotate(ctx context.Context, principalID, sessionID, presented string, id token.Identity) (token.Pair, error) {
	pair, err := r.issuer.Reissue(id, sessionID)
	if err != nil {
		return token.Pair{}, err
	}

	ttl := r.issuer.RefreshTTL().Milliseconds()
	status, err := rotateScript.Run(
		ctx, r.redis,
		[]string{key(principalID, sessionID)},
		presented, pair.Refresh, ttl,
	).Int()
	if err != nil {
		return token.Pair{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case 1:
		return pair, nil
	case -1:
		if revokeErr := r.RevokeAll(ctx, principalID); revokeErr != nil {
			return token.Pair{}, revokeErr
		}
		return token.Pair{}, ErrReuseDetected
	default:
		return token.Pair{}, ErrNotFound
	}
}

// Revoke deletes a single session's refresh record. Idempotent; revoking an
// absent record is not an error.
func (r *Registry) Revoke(ctx context.Context, principalID, sessionID string) error {
	if err := r.redis.Del(ctx, key(principalID, sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RevokeAll deletes every refresh record for a principal. Idempotent.
func (r *Registry) RevokeAll(ctx context.Context, principalID string) error {
	keys, err := r.scan(ctx, principalID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveSessions returns the number of live refresh records for a principal.
func (r *Registry) ActiveSessions(ctx context.Context, principalID string) (int, error) {
	keys, err := r.scan(ctx, principalID)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (r *Registry) scan(ctx context.Context, principalID string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	pattern := prefix(principalID) + "*"
	for {
		batch, next, err := r.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// closestToExpiry returns the key with the smallest remaining TTL. Keys that
// vanished between scan and TTL query are skipped.
func (r *Registry) closestToExpiry(ctx context.Context, keys []string) (string, error) {
	pipe := r.redis.Pipeline()
	cmds := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var (
		victim  string
		minLeft time.Duration
	)
	for i, cmd := range cmds {
		left, err := cmd.Result()
		if err != nil {
			continue
		}
		if left <= 0 {
			// No TTL or already gone; treat as the cheapest victim.
			return keys[i], nil
		}
		if victim == "" || left < minLeft {
			victim = keys[i]
			minLeft = left
		}
	}
	return victim, nil
}
