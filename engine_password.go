package passgate

import (
	"context"
	"errors"

	"github.com/MrEthical07/passgate/internal/flows"
)

// VerifyPassword checks password against the account's current credential,
// applying the lockout tiers. A lock in force fails with *LockoutError even
// for the right password.
func (e *Engine) VerifyPassword(ctx context.Context, accountID, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || password == "" {
		return ErrMissingInput
	}
	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}
	return e.verifyAccountPassword(ctx, account, password)
}

// RotatePassword installs newPassword as the current credential. When
// currentPassword is non-empty it must verify first, and a failure there
// counts toward lockout.
//
// Policy violations are all reported in one *PolicyError. A candidate equal
// to any retained password fails with ErrPasswordReused.
func (e *Engine) RotatePassword(ctx context.Context, accountID, newPassword, currentPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || newPassword == "" {
		return ErrMissingInput
	}
	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return err
	}

	deps := e.flows.Password
	deps.OnLockout = func(ctx context.Context, l flows.Lockout) {
		e.notifyLockout(ctx, account, l)
	}
	return flows.RunRotatePassword(ctx, account.ID, newPassword, currentPassword, deps)
}

// ChangePassword is RotatePassword with the current password required.
func (e *Engine) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return ErrMissingInput
	}
	return e.RotatePassword(ctx, accountID, newPassword, currentPassword)
}

// ProvisionPassword sets an account's first password, or replaces it
// administratively. Policy and history still apply; the account may be
// inactive.
func (e *Engine) ProvisionPassword(ctx context.Context, accountID, password string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || password == "" {
		return ErrMissingInput
	}
	if _, err := e.activeAccount(ctx, accountID); err != nil && !errors.Is(err, ErrAccountInactive) {
		return err
	}
	if err := flows.RunCheckCandidate(ctx, accountID, password, e.flows.Password); err != nil {
		return err
	}
	return flows.RunCommitPassword(ctx, accountID, password, e.flows.Password)
}
