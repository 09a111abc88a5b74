package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/passgate/credential"
)

type CodeMetrics struct {
	Issued       int
	Verified     int
	Failed       int
	Denied       int
	NotifySkip   int
	TokenFailure int
}

type CodeErrors struct {
	EngineNotReady       error
	InvalidPurpose       error
	CodeNotFound         error
	CodeExhausted        error
	CodeMismatch         error
	TokenInvalid         error
	TokenPurposeMismatch error
	StoreUnavailable     error
	Internal             error
}

// CodeDelivery is what a notifier receives for a freshly issued code.
type CodeDelivery struct {
	Account   credential.Account
	Purpose   credential.Purpose
	Code      string
	ExpiresAt time.Time
}

// IssuedCode is the result of RunIssueCode. Code holds the first part and is
// always populated; callers decide whether to expose it.
type IssuedCode struct {
	Code       string
	SplitToken string
	ExpiresAt  time.Time
	Delivered  bool
}

type CodeDeps struct {
	Store       credential.CodeStore
	Digits      int
	MaxAttempts int
	Retain      int
	Split       bool
	// Bypass returns the code to the caller instead of delivering it.
	Bypass bool

	Hash   func(string) (string, error)
	Verify func(secret, encoded string) (bool, error)
	NewOTP func(digits int) (string, error)
	NewID  func() string
	Now    func() time.Time

	SignSplit   func(part string, purpose credential.Purpose, ttl time.Duration) (string, error)
	DecodeSplit func(token string) (part string, purpose credential.Purpose, err error)

	// Deliver hands a code to the notifier. It must not block on the
	// transport.
	Deliver   func(context.Context, CodeDelivery)
	MetricInc func(int)

	Metrics CodeMetrics
	Errors  CodeErrors
}

func (d *CodeDeps) ready() bool {
	if d.Store == nil || d.Hash == nil || d.Verify == nil || d.NewOTP == nil || d.NewID == nil || d.Now == nil {
		return false
	}
	if d.Split && (d.SignSplit == nil || d.DecodeSplit == nil) {
		return false
	}
	return d.Digits > 0 && d.MaxAttempts > 0 && d.Retain > 0
}

func (d *CodeDeps) inc(id int) {
	if d.MetricInc != nil {
		d.MetricInc(id)
	}
}

// RunIssueCode mints a code for account and purpose, persists its hash while
// pruning older rows, and delivers it unless bypass is on.
func RunIssueCode(ctx context.Context, account credential.Account, purpose credential.Purpose, ttl time.Duration, deps CodeDeps) (IssuedCode, error) {
	if !deps.ready() {
		return IssuedCode{}, deps.Errors.EngineNotReady
	}
	if !purpose.Valid() {
		return IssuedCode{}, deps.Errors.InvalidPurpose
	}

	part1, err := deps.NewOTP(deps.Digits)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("%w: generate code: %v", deps.Errors.Internal, err)
	}
	full := part1

	now := deps.Now()
	out := IssuedCode{Code: part1, ExpiresAt: now.Add(ttl)}

	if deps.Split {
		part2, err := deps.NewOTP(deps.Digits)
		if err != nil {
			return IssuedCode{}, fmt.Errorf("%w: generate code: %v", deps.Errors.Internal, err)
		}
		full += part2
		out.SplitToken, err = deps.SignSplit(part2, purpose, ttl)
		if err != nil {
			return IssuedCode{}, fmt.Errorf("%w: sign split token: %v", deps.Errors.Internal, err)
		}
	}

	hash, err := deps.Hash(full)
	if err != nil {
		return IssuedCode{}, fmt.Errorf("%w: hash code: %v", deps.Errors.Internal, err)
	}

	row := credential.VerificationCode{
		ID:           deps.NewID(),
		AccountID:    account.ID,
		CodeHash:     hash,
		Split:        deps.Split,
		AttemptLimit: deps.MaxAttempts,
		Status:       credential.CodePending,
		Purpose:      purpose,
		Expiry:       out.ExpiresAt,
		CreatedAt:    now,
	}
	if err := deps.Store.CreateCode(ctx, row, deps.Retain); err != nil {
		return IssuedCode{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	deps.inc(deps.Metrics.Issued)

	if deps.Bypass {
		deps.inc(deps.Metrics.NotifySkip)
		return out, nil
	}
	if deps.Deliver != nil {
		deps.Deliver(ctx, CodeDelivery{Account: account, Purpose: purpose, Code: part1, ExpiresAt: out.ExpiresAt})
		out.Delivered = true
	}
	return out, nil
}

// RunVerifyCode checks a submitted code against the newest pending row for
// (accountID, purpose). Every failed check past the exhaustion gate costs one
// attempt, including a bad split token.
func RunVerifyCode(ctx context.Context, accountID string, purpose credential.Purpose, submitted, splitToken string, deps CodeDeps) error {
	// Split mode may have changed since issue; the row decides.
	if deps.Store == nil || deps.Verify == nil || deps.Now == nil {
		return deps.Errors.EngineNotReady
	}
	if !purpose.Valid() {
		return deps.Errors.InvalidPurpose
	}

	var outcome error
	err := deps.Store.MutateLatestPendingCode(ctx, accountID, purpose, func(code credential.VerificationCode) (credential.CodePatch, error) {
		outcome = nil
		if code.Exhausted(deps.Now()) {
			denied := credential.CodeDenied
			outcome = deps.Errors.CodeExhausted
			return credential.CodePatch{Status: &denied}, nil
		}

		failed := credential.CodePatch{AttemptCount: intPtr(code.AttemptCount + 1)}
		full := submitted
		if code.Split {
			if deps.DecodeSplit == nil {
				outcome = deps.Errors.TokenInvalid
				return failed, nil
			}
			part, tokenPurpose, err := deps.DecodeSplit(splitToken)
			if err != nil {
				outcome = deps.Errors.TokenInvalid
				return failed, nil
			}
			if tokenPurpose != purpose {
				outcome = deps.Errors.TokenPurposeMismatch
				return failed, nil
			}
			full += part
		}

		ok, err := deps.Verify(full, code.CodeHash)
		if err != nil {
			outcome = fmt.Errorf("%w: verify code hash: %v", deps.Errors.Internal, err)
			return credential.CodePatch{}, errSkipWrite
		}
		if !ok {
			outcome = deps.Errors.CodeMismatch
			return failed, nil
		}
		verified := credential.CodeVerified
		return credential.CodePatch{Status: &verified}, nil
	})

	switch {
	case errors.Is(err, errSkipWrite):
		return outcome
	case errors.Is(err, credential.ErrNotFound):
		return deps.Errors.CodeNotFound
	case err != nil:
		return fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	switch {
	case outcome == nil:
		deps.inc(deps.Metrics.Verified)
	case errors.Is(outcome, deps.Errors.CodeExhausted):
		deps.inc(deps.Metrics.Denied)
	case errors.Is(outcome, deps.Errors.TokenInvalid), errors.Is(outcome, deps.Errors.TokenPurposeMismatch):
		deps.inc(deps.Metrics.TokenFailure)
		deps.inc(deps.Metrics.Failed)
	default:
		deps.inc(deps.Metrics.Failed)
	}
	return outcome
}
