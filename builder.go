package passgate

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

// Builder assembles an Engine. Configure it once during startup; it can
// build a single Engine.
type Builder struct {
	config Config

	store    credential.Store
	notifier Notifier
	codec    TokenCodec
	hasher   password.Hasher
	logger   *zap.Logger
	now      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(store credential.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithTokenCodec replaces the codec built from Config.Tokens.
func (b *Builder) WithTokenCodec(codec TokenCodec) *Builder {
	b.codec = codec
	return b
}

// WithHasher replaces the hasher built from Config.Password. It hashes both
// passwords and codes.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now for every expiry decision, including the
// built-in token codec.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		multi, err := password.New(password.Options{
			Algorithm:  cfg.Password.Algorithm,
			Argon2:     cfg.Password.Argon2,
			BcryptCost: cfg.Password.BcryptCost,
		})
		if err != nil {
			return nil, err
		}
		hasher = multi
	}

	codec := b.codec
	if codec == nil {
		c, err := jwt.NewCodec(jwt.Config{
			SigningMethod: cfg.Tokens.SigningMethod,
			PrivateKey:    cfg.Tokens.PrivateKey,
			PublicKey:     cfg.Tokens.PublicKey,
			Issuer:        cfg.Tokens.Issuer,
			Audience:      cfg.Tokens.Audience,
			KeyID:         cfg.Tokens.KeyID,
			Leeway:        cfg.Tokens.Leeway,
			Now:           now,
		})
		if err != nil {
			return nil, err
		}
		codec = c
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = nopNotifier{}
		if !cfg.TwoFactor.Bypass {
			logger.Warn("passgate: no notifier configured, verification codes will not be delivered")
		}
	}
	if cfg.TwoFactor.Bypass {
		logger.Warn("passgate: code delivery bypass is enabled, codes are returned to callers")
	}

	e := &Engine{
		config:   cfg,
		store:    b.store,
		notifier: notifier,
		codec:    codec,
		hasher:   hasher,
		logger:   logger,
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
	}
	e.flows = e.buildFlows()

	b.built = true
	return e, nil
}
