// Package credential holds the persisted records of the authentication engine
// and the store contract that owns them.
//
// Records are plain values. Mutation happens only through a Store, which must
// run every read-check-write sequence against a single row as one atomic unit.
package credential

import "time"

// Purpose scopes a verification code to one flow.
type Purpose string

const (
	PurposeLogin          Purpose = "login"
	PurposePasswordReset  Purpose = "password_reset"
	PurposePasswordChange Purpose = "password_change"
	PurposeCriticalAction Purpose = "critical_action"
)

// Purposes lists every accepted purpose in a stable order.
func Purposes() []Purpose {
	return []Purpose{PurposeLogin, PurposePasswordReset, PurposePasswordChange, PurposeCriticalAction}
}

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposePasswordReset, PurposePasswordChange, PurposeCriticalAction:
		return true
	default:
		return false
	}
}

// PasswordStatus is the lifecycle state of a password credential.
type PasswordStatus string

const (
	PasswordValid   PasswordStatus = "valid"
	PasswordExpired PasswordStatus = "expired"
	PasswordBlocked PasswordStatus = "blocked"
)

// CodeStatus is the lifecycle state of a verification code.
type CodeStatus string

const (
	CodePending  CodeStatus = "pending"
	CodeVerified CodeStatus = "verified"
	CodeDenied   CodeStatus = "denied"
)

// Account is the identity a credential belongs to. The engine only reads it.
type Account struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	RoleID string `json:"role_id,omitempty"`
}

// Role is the system role embedded in access tokens.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PasswordCredential is one stored password for an account.
//
// At most one row per account is valid and permanent at a time; that row is
// the current credential.
type PasswordCredential struct {
	ID           string         `json:"id"`
	AccountID    string         `json:"account_id"`
	SecretHash   string         `json:"secret_hash"`
	Temporary    bool           `json:"is_temporary"`
	AttemptCount int            `json:"attempt_count"`
	AttemptLimit int            `json:"attempt_limit"`
	LockExpiry   *time.Time     `json:"lock_expiry,omitempty"`
	LockoutTier  int            `json:"lockout_tier"`
	Status       PasswordStatus `json:"status"`
	Expiry       *time.Time     `json:"expiry,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Current reports whether c is eligible to be the account's current credential.
func (c PasswordCredential) Current() bool {
	return c.Status == PasswordValid && !c.Temporary
}

// LockedAt reports whether a lock is still in force at now.
func (c PasswordCredential) LockedAt(now time.Time) bool {
	return c.LockExpiry != nil && now.Before(*c.LockExpiry)
}

// VerificationCode is one issued second-factor code.
type VerificationCode struct {
	ID           string     `json:"id"`
	AccountID    string     `json:"account_id"`
	CodeHash     string     `json:"code_hash"`
	Split        bool       `json:"is_split"`
	AttemptCount int        `json:"attempt_count"`
	AttemptLimit int        `json:"attempt_limit"`
	Status       CodeStatus `json:"status"`
	Purpose      Purpose    `json:"purpose"`
	Expiry       time.Time  `json:"expiry"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Exhausted reports whether the code can no longer be checked at now.
func (c VerificationCode) Exhausted(now time.Time) bool {
	return c.Expiry.Before(now) || c.AttemptCount >= c.AttemptLimit
}
