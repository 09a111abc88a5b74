package passgate

import (
	"context"
	"time"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/jwt"
)

// NoticeKind tells a Notifier which message to render.
type NoticeKind string

const (
	// NoticeCode carries a freshly issued verification code.
	NoticeCode NoticeKind = "code"
	// NoticeLockout tells the holder their account was locked.
	NoticeLockout NoticeKind = "lockout"
)

// Notice is one out-of-band message for an account holder.
type Notice struct {
	Kind    NoticeKind
	Email   string
	Name    string
	Purpose credential.Purpose
	// Code is the user-facing part of a code; empty for lockout notices.
	Code      string
	ExpiresAt time.Time

	LockedUntil time.Time
	Attempts    int
}

// Notifier delivers notices. The engine never waits on the outcome beyond
// logging an error, so implementations that talk to slow transports should be
// wrapped in an asynchronous dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice) error

func (f NotifierFunc) Notify(ctx context.Context, n Notice) error { return f(ctx, n) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notice) error { return nil }

// TokenCodec signs and verifies engine tokens. *jwt.Codec implements it.
type TokenCodec interface {
	Sign(claims jwt.Claims, ttl time.Duration) (string, error)
	Verify(token string) (*jwt.Claims, error)
}

// LoginResult is returned by a successful password step. DebugCode is only
// set when delivery is bypassed.
type LoginResult struct {
	VerifyToken string
	SplitToken  string
	DebugCode   string
	// ExpiresAt is when the issued code stops being valid.
	ExpiresAt time.Time
}

// AccessResult is returned by a successful second factor.
type AccessResult struct {
	AccessToken string
	ExpiresIn   time.Duration
	AccountID   string
	Role        string
}

// CodeIssue is the result of IssueCode. Code is only set when delivery is
// bypassed.
type CodeIssue struct {
	SplitToken string
	Code       string
	ExpiresAt  time.Time
}

// Identity is what a validated access token asserts.
type Identity struct {
	AccountID string
	Email     string
	Name      string
	Role      string
	ExpiresAt time.Time
}
