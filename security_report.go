package passgate

import (
	"time"

	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

// SecurityReport summarizes the security-relevant settings of a running
// engine. It never contains key material.
type SecurityReport struct {
	SigningMethod  jwt.SigningMethod
	AccessTTL      time.Duration
	VerifyTTL      time.Duration
	HashAlgorithm  password.Algorithm
	Argon2         PasswordConfigReport
	UpgradeOnLogin bool
	HistorySize    int

	LockoutTiers      int
	FirstLockout      time.Duration
	MaxLockout        time.Duration
	CodeDigits        int
	CodeMaxAttempts   int
	SplitMode         bool
	DeliveryBypassed  bool
	NotifierAttached  bool
	MetricsEnabled    bool
	LatencyHistograms bool
}

type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	cfg := e.config
	var first, longest time.Duration
	if len(cfg.Lockout.Tiers) > 0 {
		first = cfg.Lockout.Tiers[0].Duration
	}
	for _, tier := range cfg.Lockout.Tiers {
		if tier.Duration > longest {
			longest = tier.Duration
		}
	}
	_, nop := e.notifier.(nopNotifier)

	return SecurityReport{
		SigningMethod:  cfg.Tokens.SigningMethod,
		AccessTTL:      cfg.Tokens.AccessTTL,
		VerifyTTL:      cfg.Tokens.VerifyTTL,
		HashAlgorithm:  cfg.Password.Algorithm,
		UpgradeOnLogin: cfg.Password.UpgradeOnLogin,
		HistorySize:    cfg.Password.HistorySize,
		Argon2: PasswordConfigReport{
			Memory:      cfg.Password.Argon2.Memory,
			Time:        cfg.Password.Argon2.Time,
			Parallelism: cfg.Password.Argon2.Parallelism,
			SaltLength:  cfg.Password.Argon2.SaltLength,
			KeyLength:   cfg.Password.Argon2.KeyLength,
		},
		LockoutTiers:      len(cfg.Lockout.Tiers),
		FirstLockout:      first,
		MaxLockout:        longest,
		CodeDigits:        cfg.TwoFactor.Digits,
		CodeMaxAttempts:   cfg.TwoFactor.MaxAttempts,
		SplitMode:         cfg.TwoFactor.SplitMode,
		DeliveryBypassed:  cfg.TwoFactor.Bypass,
		NotifierAttached:  !nop,
		MetricsEnabled:    cfg.Metrics.Enabled,
		LatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
	}
}
