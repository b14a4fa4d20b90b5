package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hrforge/authcore/otp"
)

// otpRequestLimiter throttles code issuance per purpose/identifier pair with
// a fixed window counter. It bounds delivery abuse (SMS and email cost,
// inbox flooding), not verification attempts; mismatch handling already
// bounds those through the code's single TTL.
type otpRequestLimiter struct {
	redis  redis.UniversalClient
	max    int
	window time.Duration
}

func (l *otpRequestLimiter) check(ctx context.Context, purpose otp.Purpose, identifier string) error {
	key := "otp_req:" + string(purpose) + ":" + identifier

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if count > int64(l.max) {
		return ErrRateLimited
	}
	return nil
}
