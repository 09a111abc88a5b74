package passgate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingInput is returned before any store access when a required
	// field is empty.
	ErrMissingInput = errors.New("missing required input")
	// ErrInvalidPurpose is returned for a purpose outside the known set.
	ErrInvalidPurpose = errors.New("invalid code purpose")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account inactive")
	ErrAccountLocked      = errors.New("account locked")
	ErrPasswordPolicy     = errors.New("password policy violation")
	ErrPasswordReused     = errors.New("password matches a recent password")

	ErrCodeNotFound           = errors.New("verification code not found")
	ErrCodeExpiredOrExhausted = errors.New("verification code expired or attempts exhausted")
	ErrCodeMismatch           = errors.New("verification code mismatch")

	ErrTokenInvalidOrExpired = errors.New("token invalid or expired")
	ErrTokenPurposeMismatch  = errors.New("token purpose mismatch")
	// ErrScopeMismatch is the boundary error for a verify-scope token that
	// belongs to a different email or carries the wrong scope.
	ErrScopeMismatch = errors.New("token scope mismatch")

	// ErrNoValidCredential means an account has no current permanent
	// password. Provisioning guarantees one, so this is a data error.
	ErrNoValidCredential = errors.New("no valid credential")
	ErrRoleMissing       = errors.New("account role missing")
	ErrAccountNotFound   = errors.New("account not found")

	ErrEngineNotReady   = errors.New("engine not ready")
	ErrStoreUnavailable = errors.New("credential store unavailable")
	ErrInternal         = errors.New("internal error")
)

// LockoutError reports a lock in force until Until. It matches
// ErrAccountLocked.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Is(target error) bool { return target == ErrAccountLocked }

// RetryAfter is the time left on the lock at now, never negative.
func (e *LockoutError) RetryAfter(now time.Time) time.Duration {
	if d := e.Until.Sub(now); d > 0 {
		return d
	}
	return 0
}

// PolicyError lists every rule a candidate password broke. It matches
// ErrPasswordPolicy.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return ErrPasswordPolicy.Error() + ": " + strings.Join(e.Violations, "; ")
}

func (e *PolicyError) Is(target error) bool { return target == ErrPasswordPolicy }

// ErrorKind groups engine errors by how a caller should respond.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindClientInput
	KindAuthentication
	KindExhausted
	KindNotFound
	KindToken
	KindScope
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindAuthentication:
		return "authentication"
	case KindExhausted:
		return "exhausted"
	case KindNotFound:
		return "not_found"
	case KindToken:
		return "token"
	case KindScope:
		return "scope"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Errors the engine did not produce are KindUnknown.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrMissingInput), errors.Is(err, ErrInvalidPurpose),
		errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrPasswordReused):
		return KindClientInput
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrAccountInactive):
		return KindAuthentication
	case errors.Is(err, ErrAccountLocked), errors.Is(err, ErrCodeExpiredOrExhausted):
		return KindExhausted
	case errors.Is(err, ErrNoValidCredential), errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrRoleMissing), errors.Is(err, ErrAccountNotFound):
		return KindNotFound
	case errors.Is(err, ErrTokenInvalidOrExpired), errors.Is(err, ErrTokenPurposeMismatch):
		return KindToken
	case errors.Is(err, ErrScopeMismatch):
		return KindScope
	case errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrInternal):
		return KindInternal
	default:
		return KindUnknown
	}
}
