// Package storetest is a conformance suite shared by every credential.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/passgate/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) credential.Store

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func seedAccount(t *testing.T, s credential.Store, id string) credential.Account {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutRole(ctx, credential.Role{ID: "role-" + id, Name: "Analyst"}))
	acct := credential.Account{ID: id, Email: id + "@example.com", Name: "User " + id, Active: true, RoleID: "role-" + id}
	require.NoError(t, s.CreateAccount(ctx, acct))
	return acct
}

func password(accountID string, n int) credential.PasswordCredential {
	return credential.PasswordCredential{
		ID:           fmt.Sprintf("%s-pw-%d", accountID, n),
		AccountID:    accountID,
		SecretHash:   fmt.Sprintf("hash-%d", n),
		AttemptLimit: 10,
		Status:       credential.PasswordValid,
		CreatedAt:    base.Add(time.Duration(n) * time.Minute),
	}
}

func code(accountID string, purpose credential.Purpose, n int) credential.VerificationCode {
	return credential.VerificationCode{
		ID:           fmt.Sprintf("%s-code-%s-%d", accountID, purpose, n),
		AccountID:    accountID,
		CodeHash:     fmt.Sprintf("code-hash-%d", n),
		AttemptLimit: 5,
		Status:       credential.CodePending,
		Purpose:      purpose,
		Expiry:       base.Add(time.Hour),
		CreatedAt:    base.Add(time.Duration(n) * time.Second),
	}
}

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("MutateCurrentPassword", func(t *testing.T) { testMutateCurrentPassword(t, newStore(t)) })
	t.Run("RehashInPlace", func(t *testing.T) { testRehashInPlace(t, newStore(t)) })
	t.Run("MutatorErrorWritesNothing", func(t *testing.T) { testMutatorErrorWritesNothing(t, newStore(t)) })
	t.Run("RotateBlocksAndPrunes", func(t *testing.T) { testRotate(t, newStore(t)) })
	t.Run("CreateCodePrunes", func(t *testing.T) { testCreateCodePrunes(t, newStore(t)) })
	t.Run("LatestPendingCode", func(t *testing.T) { testLatestPendingCode(t, newStore(t)) })
	t.Run("ConcurrentPasswordAttempts", func(t *testing.T) { testConcurrentPasswordAttempts(t, newStore(t)) })
	t.Run("ConcurrentCodeAttempts", func(t *testing.T) { testConcurrentCodeAttempts(t, newStore(t)) })
}

func testAccounts(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")

	got, err := s.AccountByEmail(ctx, acct.Email)
	require.NoError(t, err)
	assert.Equal(t, acct, got)

	got, err = s.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.Email, got.Email)

	role, err := s.Role(ctx, acct.RoleID)
	require.NoError(t, err)
	assert.Equal(t, "Analyst", role.Name)

	_, err = s.AccountByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, credential.ErrNotFound)
	_, err = s.Role(ctx, "nope")
	assert.ErrorIs(t, err, credential.ErrNotFound)

	err = s.CreateAccount(ctx, credential.Account{ID: "a2", Email: acct.Email, Active: true})
	assert.ErrorIs(t, err, credential.ErrDuplicate)
}

func testMutateCurrentPassword(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")

	err := s.MutateCurrentPassword(ctx, acct.ID, func(credential.PasswordCredential) (credential.PasswordPatch, error) {
		return credential.PasswordPatch{}, nil
	})
	require.ErrorIs(t, err, credential.ErrNotFound)

	require.NoError(t, s.RotatePassword(ctx, acct.ID, password(acct.ID, 1), 5))

	until := base.Add(5 * time.Minute)
	err = s.MutateCurrentPassword(ctx, acct.ID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		assert.Equal(t, acct.ID+"-pw-1", cur.ID)
		return credential.PasswordPatch{AttemptCount: intp(0), AttemptLimit: intp(5), LockoutTier: intp(1), LockExpiry: &until}, nil
	})
	require.NoError(t, err)

	history, err := s.PasswordHistory(ctx, acct.ID, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 5, history[0].AttemptLimit)
	assert.Equal(t, 1, history[0].LockoutTier)
	require.NotNil(t, history[0].LockExpiry)
	assert.True(t, history[0].LockExpiry.Equal(until))

	err = s.MutateCurrentPassword(ctx, acct.ID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		return credential.PasswordPatch{ClearLockExpiry: true}, nil
	})
	require.NoError(t, err)
	history, err = s.PasswordHistory(ctx, acct.ID, 5)
	require.NoError(t, err)
	assert.Nil(t, history[0].LockExpiry)
	assert.Equal(t, 1, history[0].LockoutTier)
}

func testRehashInPlace(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	require.NoError(t, s.RotatePassword(ctx, acct.ID, password(acct.ID, 1), 5))
	require.NoError(t, s.RotatePassword(ctx, acct.ID, password(acct.ID, 2), 5))

	upgraded := "hash-2-stronger"
	err := s.MutateCurrentPassword(ctx, acct.ID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		return credential.PasswordPatch{SecretHash: &upgraded}, nil
	})
	require.NoError(t, err)

	history, err := s.PasswordHistory(ctx, acct.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, acct.ID+"-pw-2", history[0].ID)
	assert.Equal(t, upgraded, history[0].SecretHash)
	assert.Equal(t, credential.PasswordValid, history[0].Status)
	assert.Equal(t, "hash-1", history[1].SecretHash)
}

func testMutatorErrorWritesNothing(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	require.NoError(t, s.RotatePassword(ctx, acct.ID, password(acct.ID, 1), 5))

	boom := errors.New("boom")
	err := s.MutateCurrentPassword(ctx, acct.ID, func(credential.PasswordCredential) (credential.PasswordPatch, error) {
		return credential.PasswordPatch{AttemptCount: intp(9)}, boom
	})
	require.ErrorIs(t, err, boom)

	history, err := s.PasswordHistory(ctx, acct.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, history[0].AttemptCount)
}

func testRotate(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	for i := 1; i <= 7; i++ {
		require.NoError(t, s.RotatePassword(ctx, acct.ID, password(acct.ID, i), 5))
	}

	history, err := s.PasswordHistory(ctx, acct.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 5)
	for i, row := range history {
		assert.Equal(t, fmt.Sprintf("%s-pw-%d", acct.ID, 7-i), row.ID)
	}
	assert.Equal(t, credential.PasswordValid, history[0].Status)
	for _, row := range history[1:] {
		assert.Equal(t, credential.PasswordBlocked, row.Status)
	}

	limited, err := s.PasswordHistory(ctx, acct.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	err = s.MutateCurrentPassword(ctx, acct.ID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
		assert.Equal(t, acct.ID+"-pw-7", cur.ID)
		return credential.PasswordPatch{}, nil
	})
	require.NoError(t, err)
}

func testCreateCodePrunes(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	for i := 1; i <= 6; i++ {
		require.NoError(t, s.CreateCode(ctx, code(acct.ID, credential.PurposeLogin, i), 5))
	}
	require.NoError(t, s.CreateCode(ctx, code(acct.ID, credential.PurposePasswordReset, 1), 5))

	rows, err := s.Codes(ctx, acct.ID, credential.PurposeLogin)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("%s-code-login-%d", acct.ID, 6-i), row.ID)
	}

	other, err := s.Codes(ctx, acct.ID, credential.PurposePasswordReset)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func testLatestPendingCode(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")

	noop := func(credential.VerificationCode) (credential.CodePatch, error) { return credential.CodePatch{}, nil }
	require.ErrorIs(t, s.MutateLatestPendingCode(ctx, acct.ID, credential.PurposeLogin, noop), credential.ErrNotFound)

	require.NoError(t, s.CreateCode(ctx, code(acct.ID, credential.PurposeLogin, 1), 5))
	require.NoError(t, s.CreateCode(ctx, code(acct.ID, credential.PurposeLogin, 2), 5))

	verified := credential.CodeVerified
	err := s.MutateLatestPendingCode(ctx, acct.ID, credential.PurposeLogin, func(c credential.VerificationCode) (credential.CodePatch, error) {
		assert.Equal(t, acct.ID+"-code-login-2", c.ID)
		return credential.CodePatch{Status: &verified}, nil
	})
	require.NoError(t, err)

	// The older pending row is reachable once the newest leaves pending.
	err = s.MutateLatestPendingCode(ctx, acct.ID, credential.PurposeLogin, func(c credential.VerificationCode) (credential.CodePatch, error) {
		assert.Equal(t, acct.ID+"-code-login-1", c.ID)
		return credential.CodePatch{AttemptCount: intp(2)}, nil
	})
	require.NoError(t, err)

	rows, err := s.Codes(ctx, acct.ID, credential.PurposeLogin)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, credential.CodeVerified, rows[0].Status)
	assert.Equal(t, 2, rows[1].AttemptCount)

	require.ErrorIs(t, s.MutateLatestPendingCode(ctx, acct.ID, credential.PurposePasswordChange, noop), credential.ErrNotFound)
}

const workers = 16

func testConcurrentPasswordAttempts(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	row := password(acct.ID, 1)
	row.AttemptLimit = 1000
	require.NoError(t, s.RotatePassword(ctx, acct.ID, row, 5))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MutateCurrentPassword(ctx, acct.ID, func(cur credential.PasswordCredential) (credential.PasswordPatch, error) {
				return credential.PasswordPatch{AttemptCount: intp(cur.AttemptCount + 1)}, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := s.PasswordHistory(ctx, acct.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, workers, history[0].AttemptCount)
}

func testConcurrentCodeAttempts(t *testing.T, s credential.Store) {
	ctx := context.Background()
	acct := seedAccount(t, s, "a1")
	c := code(acct.ID, credential.PurposeLogin, 1)
	c.AttemptLimit = 1000
	require.NoError(t, s.CreateCode(ctx, c, 5))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.MutateLatestPendingCode(ctx, acct.ID, credential.PurposeLogin, func(cur credential.VerificationCode) (credential.CodePatch, error) {
				return credential.CodePatch{AttemptCount: intp(cur.AttemptCount + 1)}, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rows, err := s.Codes(ctx, acct.ID, credential.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, workers, rows[0].AttemptCount)
}
