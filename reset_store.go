package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// resetTokenStore holds single-use password-reset tokens under
// reset_token:{identifier}. A token is minted after a successful
// reset-password OTP confirmation and consumed by the actual password
// change.
type resetTokenStore struct {
	redis redis.UniversalClient
	ttl   time.Duration
}

func resetKey(identifier string) string {
	return "reset_token:" + identifier
}

func (s *resetTokenStore) put(ctx context.Context, identifier, tok string) error {
	if err := s.redis.Set(ctx, resetKey(identifier), tok, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// consume deletes the token on a successful match, enforcing single use.
func (s *resetTokenStore) consume(ctx context.Context, identifier, presented string) error {
	k := resetKey(identifier)
	stored, err := s.redis.Get(ctx, k).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return ErrResetTokenInvalid
	}
	if err := s.redis.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
