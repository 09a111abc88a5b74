package credential

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("credential: not found")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("credential: duplicate")
	// ErrConflict is returned when an optimistic transaction kept losing races.
	ErrConflict = errors.New("credential: concurrent update conflict")
)

// PasswordPatch lists the columns a password mutation writes. Nil fields are
// left untouched.
type PasswordPatch struct {
	SecretHash      *string
	AttemptCount    *int
	AttemptLimit    *int
	LockoutTier     *int
	LockExpiry      *time.Time
	ClearLockExpiry bool
}

// Empty reports whether applying p would change nothing.
func (p PasswordPatch) Empty() bool {
	return p.SecretHash == nil && p.AttemptCount == nil && p.AttemptLimit == nil &&
		p.LockoutTier == nil && p.LockExpiry == nil && !p.ClearLockExpiry
}

// Apply writes the set fields of p into c.
func (p PasswordPatch) Apply(c *PasswordCredential) {
	if p.SecretHash != nil {
		c.SecretHash = *p.SecretHash
	}
	if p.AttemptCount != nil {
		c.AttemptCount = *p.AttemptCount
	}
	if p.AttemptLimit != nil {
		c.AttemptLimit = *p.AttemptLimit
	}
	if p.LockoutTier != nil {
		c.LockoutTier = *p.LockoutTier
	}
	if p.ClearLockExpiry {
		c.LockExpiry = nil
	}
	if p.LockExpiry != nil {
		t := *p.LockExpiry
		c.LockExpiry = &t
	}
}

// CodePatch lists the columns a code mutation writes.
type CodePatch struct {
	AttemptCount *int
	Status       *CodeStatus
}

// Empty reports whether applying p would change nothing.
func (p CodePatch) Empty() bool {
	return p.AttemptCount == nil && p.Status == nil
}

// Apply writes the set fields of p into c.
func (p CodePatch) Apply(c *VerificationCode) {
	if p.AttemptCount != nil {
		c.AttemptCount = *p.AttemptCount
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
}

// PasswordMutator decides the patch for a locked password row. Returning an
// error aborts the mutation without writing. Stores with optimistic
// transactions may call it more than once, so it must only compute.
type PasswordMutator func(current PasswordCredential) (PasswordPatch, error)

// CodeMutator decides the patch for a locked code row. Returning an error
// aborts the mutation without writing.
type CodeMutator func(code VerificationCode) (CodePatch, error)

// AccountStore resolves accounts and roles.
type AccountStore interface {
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	Role(ctx context.Context, id string) (Role, error)
}

// AccountWriter provisions accounts and roles.
type AccountWriter interface {
	CreateAccount(ctx context.Context, account Account) error
	PutRole(ctx context.Context, role Role) error
}

// PasswordStore owns password credential rows.
type PasswordStore interface {
	// MutateCurrentPassword locks the newest valid permanent row of the
	// account, hands a copy to fn and writes the returned patch in the same
	// atomic unit. It returns ErrNotFound when there is no such row.
	MutateCurrentPassword(ctx context.Context, accountID string, fn PasswordMutator) error

	// PasswordHistory returns up to limit permanent rows, newest first.
	PasswordHistory(ctx context.Context, accountID string, limit int) ([]PasswordCredential, error)

	// RotatePassword blocks every valid permanent row, inserts next and
	// deletes all but the keep newest permanent rows, atomically.
	RotatePassword(ctx context.Context, accountID string, next PasswordCredential, keep int) error
}

// CodeStore owns verification code rows.
type CodeStore interface {
	// CreateCode deletes all but the keep-1 newest rows for the code's
	// (account, purpose) and inserts code, atomically.
	CreateCode(ctx context.Context, code VerificationCode, keep int) error

	// MutateLatestPendingCode locks the newest pending row for (account,
	// purpose), hands a copy to fn and writes the returned patch in the same
	// atomic unit. It returns ErrNotFound when nothing is pending.
	MutateLatestPendingCode(ctx context.Context, accountID string, purpose Purpose, fn CodeMutator) error

	// Codes returns every retained row for (account, purpose), newest first.
	Codes(ctx context.Context, accountID string, purpose Purpose) ([]VerificationCode, error)
}

// Store is the full persistence contract of the engine.
type Store interface {
	AccountStore
	AccountWriter
	PasswordStore
	CodeStore
}
