package authcore

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hrforge/authcore/otp"
	"github.com/hrforge/authcore/password"
	"github.com/hrforge/authcore/session"
	"github.com/hrforge/authcore/token"
)

// Builder assembles an [Engine]. Construction is allocation-only; all
// validation happens in [Builder.Build], and a misconfigured engine never
// reaches request traffic.
type Builder struct {
	config      Config
	redis       redis.UniversalClient
	credentials CredentialStore
	invites     InviteStore
	queue       TaskQueue
	logger      *zap.Logger
	registerer  prometheus.Registerer
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the ephemeral key-value store client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the account persistence collaborator.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithInviteStore sets the invite-module collaborator.
func (b *Builder) WithInviteStore(store InviteStore) *Builder {
	b.invites = store
	return b
}

// WithTaskQueue sets the asynchronous job queue collaborator.
func (b *Builder) WithTaskQueue(queue TaskQueue) *Builder {
	b.queue = queue
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics registers the engine's collectors with reg. Without it the
// collectors exist but stay unregistered.
func (b *Builder) WithMetrics(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// Build validates the configuration and wires the engine. Signing-key or
// parameter misconfiguration fails here, at startup, never per request.
func (b *Builder) Build() (*Engine, error) {
	if b.redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if b.credentials == nil {
		return nil, errors.New("authcore: credential store is required")
	}
	if b.invites == nil {
		return nil, errors.New("authcore: invite store is required")
	}
	if b.queue == nil {
		return nil, errors.New("authcore: task queue is required")
	}

	issuer, err := token.NewIssuer(b.config.Token)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	otpManager, err := otp.NewManager(b.redis, otp.Config{
		Digits:   b.config.OTP.Digits,
		TTL:      b.config.OTP.TTL,
		Generate: b.config.OTP.Generate,
	})
	if err != nil {
		return nil, err
	}

	if b.config.Reset.TokenTTL <= 0 {
		return nil, errors.New("authcore: reset token TTL must be positive")
	}
	if b.config.OTP.MaxRequests <= 0 || b.config.OTP.RequestWindow <= 0 {
		return nil, errors.New("authcore: otp request budget must be positive")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		config:      b.config,
		issuer:      issuer,
		sessions:    session.NewRegistry(b.redis, issuer, b.config.Session.MaxConcurrent),
		otp:         otpManager,
		otpLimiter: &otpRequestLimiter{
			redis:  b.redis,
			max:    b.config.OTP.MaxRequests,
			window: b.config.OTP.RequestWindow,
		},
		hasher:      hasher,
		resetTokens: &resetTokenStore{redis: b.redis, ttl: b.config.Reset.TokenTTL},
		credentials: b.credentials,
		invites:     b.invites,
		queue:       b.queue,
		logger:      logger,
		metrics:     newMetrics(b.registerer),
	}, nil
}
