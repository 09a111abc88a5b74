package passgate

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/passgate/internal"
	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

// Config is the static configuration of an Engine. It is copied at Build and
// never mutated afterwards.
type Config struct {
	Lockout   LockoutConfig
	Password  PasswordConfig
	TwoFactor TwoFactorConfig
	Tokens    TokenConfig
	Metrics   MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutTier is one escalation level. Exhausting AttemptLimit at this tier
// locks the account for Duration and moves it to the next tier.
type LockoutTier struct {
	Duration     time.Duration
	AttemptLimit int
}

// LockoutConfig holds the ordered tier table; the last tier repeats.
type LockoutConfig struct {
	Tiers []LockoutTier
}

// DefaultLockoutTiers is 10 attempts then 1m, 5 then 5m, 2 then 10m, and 1
// then 15m.
func DefaultLockoutTiers() []LockoutTier {
	return []LockoutTier{
		{Duration: time.Minute, AttemptLimit: 10},
		{Duration: 5 * time.Minute, AttemptLimit: 5},
		{Duration: 10 * time.Minute, AttemptLimit: 2},
		{Duration: 15 * time.Minute, AttemptLimit: 1},
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	Policy      password.Policy
	HistorySize int
	// Algorithm is used for new hashes. Both formats always verify.
	Algorithm  password.Algorithm
	Argon2     password.Argon2Params
	BcryptCost int
	// UpgradeOnLogin rehashes a verified password whose hash is not in the
	// primary format or uses weaker parameters.
	UpgradeOnLogin bool
}

/*
====================================
TWO-FACTOR CONFIG
====================================
*/

type TwoFactorConfig struct {
	CodeTTL time.Duration
	// ResetCodeTTL applies to password_reset codes.
	ResetCodeTTL  time.Duration
	Digits        int
	MaxAttempts   int
	RetainedCodes int
	SplitMode     bool
	// Bypass skips delivery and returns the code to the caller. Never enable
	// it in production.
	Bypass bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

type TokenConfig struct {
	SigningMethod jwt.SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
	AccessTTL     time.Duration
	VerifyTTL     time.Duration
}

/*
====================================
METRICS CONFIG
====================================
*/

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Token keys are left empty and
// must be supplied unless a TokenCodec is given to the Builder.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{Tiers: DefaultLockoutTiers()},
		Password: PasswordConfig{
			Policy:         password.DefaultPolicy(),
			HistorySize:    5,
			Algorithm:      password.AlgorithmArgon2id,
			Argon2:         password.DefaultArgon2Params(),
			BcryptCost:     12,
			UpgradeOnLogin: true,
		},
		TwoFactor: TwoFactorConfig{
			CodeTTL:       10 * time.Minute,
			ResetCodeTTL:  120 * time.Minute,
			Digits:        6,
			MaxAttempts:   5,
			RetainedCodes: 5,
		},
		Tokens: TokenConfig{
			SigningMethod: jwt.MethodEd25519,
			Issuer:        "passgate",
			AccessTTL:     time.Hour,
			VerifyTTL:     10 * time.Minute,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Lockout.Tiers = append([]LockoutTier(nil), cfg.Lockout.Tiers...)
	out.Tokens.PrivateKey = cloneBytes(cfg.Tokens.PrivateKey)
	out.Tokens.PublicKey = cloneBytes(cfg.Tokens.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks every section. Token keys are checked by the codec when the
// Builder constructs one.
func (c *Config) Validate() error {
	if len(c.Lockout.Tiers) == 0 {
		return errors.New("Lockout Tiers must not be empty")
	}
	for i, tier := range c.Lockout.Tiers {
		if tier.AttemptLimit <= 0 {
			return fmt.Errorf("Lockout tier %d AttemptLimit must be > 0", i)
		}
		if tier.Duration <= 0 {
			return fmt.Errorf("Lockout tier %d Duration must be > 0", i)
		}
	}

	p := c.Password.Policy
	if p.MinLength < 1 {
		return errors.New("Password Policy MinLength must be >= 1")
	}
	if p.MaxLength > 0 && p.MaxLength < p.MinLength {
		return errors.New("Password Policy MaxLength must be >= MinLength")
	}
	if c.Password.HistorySize < 1 {
		return errors.New("Password HistorySize must be >= 1")
	}
	switch c.Password.Algorithm {
	case password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}

	tf := c.TwoFactor
	if tf.CodeTTL <= 0 {
		return errors.New("TwoFactor CodeTTL must be > 0")
	}
	if tf.ResetCodeTTL <= 0 {
		return errors.New("TwoFactor ResetCodeTTL must be > 0")
	}
	if tf.Digits < internal.MinOTPDigits || tf.Digits > internal.MaxOTPDigits {
		return fmt.Errorf("TwoFactor Digits must be between %d and %d", internal.MinOTPDigits, internal.MaxOTPDigits)
	}
	if tf.MaxAttempts < 1 {
		return errors.New("TwoFactor MaxAttempts must be >= 1")
	}
	if tf.RetainedCodes < 1 {
		return errors.New("TwoFactor RetainedCodes must be >= 1")
	}

	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.VerifyTTL <= 0 {
		return errors.New("Tokens VerifyTTL must be > 0")
	}
	return nil
}
