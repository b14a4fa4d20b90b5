package authcore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBuildValidatesCollaboratorsAndConfig(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	goodConfig := func() Config {
		cfg := DefaultConfig()
		cfg.Token.AccessSecret = []byte("access-secret-0123456789abcdef-0123")
		cfg.Token.RefreshSecret = []byte("refresh-secret-0123456789abcdef-012")
		return cfg
	}
	complete := func() *Builder {
		return New().
			WithConfig(goodConfig()).
			WithRedis(rdb).
			WithCredentialStore(newFakeCredentials()).
			WithInviteStore(newFakeInvites()).
			WithTaskQueue(&fakeQueue{})
	}

	_, err = complete().Build()
	require.NoError(t, err)

	cases := []struct {
		name  string
		build func() *Builder
	}{
		{"missing redis", func() *Builder {
			return New().WithConfig(goodConfig()).
				WithCredentialStore(newFakeCredentials()).
				WithInviteStore(newFakeInvites()).
				WithTaskQueue(&fakeQueue{})
		}},
		{"missing credential store", func() *Builder {
			return New().WithConfig(goodConfig()).WithRedis(rdb).
				WithInviteStore(newFakeInvites()).
				WithTaskQueue(&fakeQueue{})
		}},
		{"missing invite store", func() *Builder {
			return New().WithConfig(goodConfig()).WithRedis(rdb).
				WithCredentialStore(newFakeCredentials()).
				WithTaskQueue(&fakeQueue{})
		}},
		{"missing task queue", func() *Builder {
			return New().WithConfig(goodConfig()).WithRedis(rdb).
				WithCredentialStore(newFakeCredentials()).
				WithInviteStore(newFakeInvites())
		}},
		{"missing signing secrets", func() *Builder {
			cfg := goodConfig()
			cfg.Token.AccessSecret = nil
			return complete().WithConfig(cfg)
		}},
		{"bad reset token ttl", func() *Builder {
			cfg := goodConfig()
			cfg.Reset.TokenTTL = 0
			return complete().WithConfig(cfg)
		}},
		{"bad otp request budget", func() *Builder {
			cfg := goodConfig()
			cfg.OTP.MaxRequests = 0
			return complete().WithConfig(cfg)
		}},
		{"bad password params", func() *Builder {
			cfg := goodConfig()
			cfg.Password.Memory = 64
			return complete().WithConfig(cfg)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			require.Error(t, err)
		})
	}
}

func TestDefaultConfigShape(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	require.Greater(t, cfg.Token.RefreshTTL, cfg.Token.AccessTTL)
	require.Equal(t, 6, cfg.OTP.Digits)
	require.NotZero(t, cfg.Session.MaxConcurrent)
	// Secrets are deliberately absent; Build must reject the raw default.
	require.Empty(t, cfg.Token.AccessSecret)
}
