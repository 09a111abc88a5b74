package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/password"
)

// errSkipWrite aborts a store mutation while the real outcome travels in a
// closure variable.
var errSkipWrite = errors.New("flows: skip write")

// LockoutTier is one row of the escalation table.
type LockoutTier struct {
	Duration     time.Duration
	AttemptLimit int
}

// Lockout describes a lock applied by a failed verification.
type Lockout struct {
	AccountID string
	Until     time.Time
	Duration  time.Duration
	Attempts  int
	Tier      int
}

type PasswordMetrics struct {
	VerifySuccess  int
	VerifyFailure  int
	Lockout        int
	LockedReject   int
	RotateSuccess  int
	ReuseRejected  int
	PolicyRejected int
}

type PasswordErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	NoValidCredential  error
	PasswordReused     error
	AccountNotFound    error
	StoreUnavailable   error
	Internal           error
	Locked             func(until time.Time) error
	Policy             func(violations []string) error
}

type PasswordDeps struct {
	Store       credential.PasswordStore
	Tiers       []LockoutTier
	HistorySize int
	Policy      password.Policy

	Hash   func(string) (string, error)
	Verify func(secret, encoded string) (bool, error)
	Now    func() time.Time
	NewID  func() string

	// OnLockout runs after a lock has been committed. It must not block.
	OnLockout func(context.Context, Lockout)

	// NeedsRehash, when set, lets a successful verification rewrite the
	// matched row's hash in place. OnRehash reports the outcome; a nil error
	// means the new hash was stored.
	NeedsRehash func(encoded string) bool
	OnRehash    func(ctx context.Context, accountID string, err error)
	MetricInc func(int)

	Metrics PasswordMetrics
	Errors  PasswordErrors
}

func (d *PasswordDeps) ready() bool {
	return d.Store != nil && len(d.Tiers) > 0 && d.Hash != nil && d.Verify != nil &&
		d.Now != nil && d.NewID != nil && d.Errors.Locked != nil && d.Errors.Policy != nil
}

func (d *PasswordDeps) inc(id int) {
	if d.MetricInc != nil {
		d.MetricInc(id)
	}
}

func (d *PasswordDeps) tier(i int) LockoutTier {
	if i < 0 {
		i = 0
	}
	if i >= len(d.Tiers) {
		i = len(d.Tiers) - 1
	}
	return d.Tiers[i]
}

func intPtr(v int) *int { return &v }

// RunVerifyPassword checks secret against the account's current credential and
// applies the lockout state machine in one atomic store mutation.
func RunVerifyPassword(ctx context.Context, accountID, secret string, deps PasswordDeps) error {
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	var (
		outcome  error
		lock     *Lockout
		verified credential.PasswordCredential
	)
	err := deps.Store.MutateCurrentPassword(ctx, accountID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		outcome, lock = nil, nil
		now := deps.Now()

		var patch credential.PasswordPatch
		if cur.LockExpiry != nil {
			if cur.LockedAt(now) {
				outcome = deps.Errors.Locked(*cur.LockExpiry)
				return patch, errSkipWrite
			}
			patch.ClearLockExpiry = true
		}

		ok, err := deps.Verify(secret, cur.SecretHash)
		if err != nil {
			outcome = fmt.Errorf("%w: verify password hash: %v", deps.Errors.Internal, err)
			return credential.PasswordPatch{}, errSkipWrite
		}

		if ok {
			verified = cur
			patch.AttemptCount = intPtr(0)
			patch.LockoutTier = intPtr(0)
			patch.AttemptLimit = intPtr(deps.tier(0).AttemptLimit)
			patch.ClearLockExpiry = true
			return patch, nil
		}

		attempts := cur.AttemptCount + 1
		if attempts < cur.AttemptLimit {
			patch.AttemptCount = intPtr(attempts)
			outcome = deps.Errors.InvalidCredentials
			return patch, nil
		}

		// The exhausted tier sets the lock duration; the next tier sets the
		// budget after the lock.
		current := deps.tier(cur.LockoutTier)
		next := cur.LockoutTier + 1
		if next >= len(deps.Tiers) {
			next = len(deps.Tiers) - 1
		}
		until := now.Add(current.Duration)
		patch.AttemptCount = intPtr(0)
		patch.AttemptLimit = intPtr(deps.tier(next).AttemptLimit)
		patch.LockoutTier = intPtr(next)
		patch.LockExpiry = &until

		lock = &Lockout{AccountID: accountID, Until: until, Duration: current.Duration, Attempts: attempts, Tier: next}
		outcome = deps.Errors.Locked(until)
		return patch, nil
	})

	switch {
	case errors.Is(err, errSkipWrite):
		if lock == nil && outcome != nil && !errors.Is(outcome, deps.Errors.Internal) {
			deps.inc(deps.Metrics.LockedReject)
		}
		return outcome
	case errors.Is(err, credential.ErrNotFound):
		return deps.Errors.NoValidCredential
	case err != nil:
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	if lock != nil {
		deps.inc(deps.Metrics.Lockout)
		if deps.OnLockout != nil {
			deps.OnLockout(ctx, *lock)
		}
	}
	if outcome != nil {
		deps.inc(deps.Metrics.VerifyFailure)
		return outcome
	}
	deps.inc(deps.Metrics.VerifySuccess)
	if deps.NeedsRehash != nil && deps.NeedsRehash(verified.SecretHash) {
		err := rehash(ctx, accountID, secret, verified, deps)
		if deps.OnRehash != nil {
			deps.OnRehash(ctx, accountID, err)
		}
	}
	return nil
}

// errRehashSkipped reports that the verified row changed before the new hash
// could be written.
var errRehashSkipped = errors.New("flows: credential changed before rehash")

// rehash replaces the hash of the verified row without rotating history. The
// write lands only while that row is still current with the hash that was
// checked.
func rehash(ctx context.Context, accountID, secret string, verified credential.PasswordCredential, deps PasswordDeps) error {
	encoded, err := deps.Hash(secret)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", deps.Errors.Internal, err)
	}
	err = deps.Store.MutateCurrentPassword(ctx, accountID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		if cur.ID != verified.ID || cur.SecretHash != verified.SecretHash {
			return credential.PasswordPatch{}, errSkipWrite
		}
		return credential.PasswordPatch{SecretHash: &encoded}, nil
	})
	switch {
	case errors.Is(err, errSkipWrite), errors.Is(err, credential.ErrNotFound):
		return errRehashSkipped
	case err != nil:
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	return nil
}

// IsRehashSkipped reports whether err came from a rehash that found the
// credential already replaced.
func IsRehashSkipped(err error) bool {
	return errors.Is(err, errRehashSkipped)
}

// RunCheckCandidate enforces the composition policy and rejects a candidate
// that matches any retained permanent credential.
func RunCheckCandidate(ctx context.Context, accountID, candidate string, deps PasswordDeps) error {
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	if violations := deps.Policy.Check(candidate); len(violations) > 0 {
		deps.inc(deps.Metrics.PolicyRejected)
		return deps.Errors.Policy(violations)
	}

	history, err := deps.Store.PasswordHistory(ctx, accountID, deps.HistorySize)
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	for _, row := range history {
		same, err := deps.Verify(candidate, row.SecretHash)
		if err != nil {
			return fmt.Errorf("%w: verify history hash: %v", deps.Errors.Internal, err)
		}
		if same {
			deps.inc(deps.Metrics.ReuseRejected)
			return deps.Errors.PasswordReused
		}
	}
	return nil
}

// RunCommitPassword hashes secret and installs it as the current credential,
// blocking the previous one and pruning history.
func RunCommitPassword(ctx context.Context, accountID, secret string, deps PasswordDeps) error {
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	hash, err := deps.Hash(secret)
	if err != nil {
		return fmt.Errorf("%w: hash password: %v", deps.Errors.Internal, err)
	}

	next := credential.PasswordCredential{
		ID:           deps.NewID(),
		AccountID:    accountID,
		SecretHash:   hash,
		AttemptLimit: deps.tier(0).AttemptLimit,
		Status:       credential.PasswordValid,
		CreatedAt:    deps.Now(),
	}
	if err := deps.Store.RotatePassword(ctx, accountID, next, deps.HistorySize); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return deps.Errors.AccountNotFound
		}
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	deps.inc(deps.Metrics.RotateSuccess)
	return nil
}

// RunRotatePassword replaces the account's password. A non-empty current
// secret must verify first, which counts toward lockout like any login.
func RunRotatePassword(ctx context.Context, accountID, next, current string, deps PasswordDeps) error {
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}
	if violations := deps.Policy.Check(next); len(violations) > 0 {
		deps.inc(deps.Metrics.PolicyRejected)
		return deps.Errors.Policy(violations)
	}
	if current != "" {
		if err := RunVerifyPassword(ctx, accountID, current, deps); err != nil {
			return err
		}
	}
	if err := RunCheckCandidate(ctx, accountID, next, deps); err != nil {
		return err
	}
	return RunCommitPassword(ctx, accountID, next, deps)
}
