package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/password"
)

var (
	errNotReady     = errors.New("not ready")
	errInvalid      = errors.New("invalid credentials")
	errNoCredential = errors.New("no valid credential")
	errReused       = errors.New("reused")
	errNoAccount    = errors.New("account not found")
	errStore        = errors.New("store unavailable")
	errInternal     = errors.New("internal")
	errPurpose      = errors.New("invalid purpose")
	errCodeNotFound = errors.New("code not found")
	errExhausted    = errors.New("exhausted")
	errMismatch     = errors.New("mismatch")
	errToken        = errors.New("token invalid")
	errTokenPurpose = errors.New("token purpose mismatch")
	errMissing      = errors.New("missing input")
	errInactive     = errors.New("inactive")
	errRole         = errors.New("role missing")
)

type lockedErr struct{ until time.Time }

func (e *lockedErr) Error() string { return "locked until " + e.until.String() }

type policyErr struct{ violations []string }

func (e *policyErr) Error() string { return strings.Join(e.violations, "; ") }

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

// plainHash keeps tests fast; it is not a real hash.
func plainHash(s string) (string, error) { return "plain:" + s, nil }

func plainVerify(s, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain:") {
		return false, errors.New("malformed")
	}
	return encoded == "plain:"+s, nil
}

var idSeq atomic.Int64

func nextID() string { return fmt.Sprintf("id-%d", idSeq.Add(1)) }

var testTiers = []LockoutTier{
	{Duration: time.Minute, AttemptLimit: 10},
	{Duration: 5 * time.Minute, AttemptLimit: 5},
	{Duration: 10 * time.Minute, AttemptLimit: 2},
	{Duration: 15 * time.Minute, AttemptLimit: 1},
}

func newPasswordDeps(store credential.PasswordStore, clock *testClock) PasswordDeps {
	return PasswordDeps{
		Store:       store,
		Tiers:       testTiers,
		HistorySize: 5,
		Policy:      password.DefaultPolicy(),
		Hash:        plainHash,
		Verify:      plainVerify,
		Now:         clock.Now,
		NewID:       nextID,
		Metrics:     PasswordMetrics{VerifySuccess: 1, VerifyFailure: 2, Lockout: 3, LockedReject: 4, RotateSuccess: 5, ReuseRejected: 6, PolicyRejected: 7},
		Errors: PasswordErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errInvalid,
			NoValidCredential:  errNoCredential,
			PasswordReused:     errReused,
			AccountNotFound:    errNoAccount,
			StoreUnavailable:   errStore,
			Internal:           errInternal,
			Locked:             func(until time.Time) error { return &lockedErr{until: until} },
			Policy:             func(v []string) error { return &policyErr{violations: v} },
		},
	}
}

func seedAccount(t *testing.T, store *credential.MemoryStore, id, email string) {
	t.Helper()
	if err := store.PutRole(context.Background(), credential.Role{ID: "r1", Name: "admin"}); err != nil {
		t.Fatalf("PutRole: %v", err)
	}
	if err := store.CreateAccount(context.Background(), credential.Account{ID: id, Email: email, Name: "Ada", Active: true, RoleID: "r1"}); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
}

func seedPassword(t *testing.T, deps PasswordDeps, accountID, secret string) {
	t.Helper()
	if err := RunCommitPassword(context.Background(), accountID, secret, deps); err != nil {
		t.Fatalf("RunCommitPassword: %v", err)
	}
}

func current(t *testing.T, store credential.PasswordStore, accountID string) credential.PasswordCredential {
	t.Helper()
	rows, err := store.PasswordHistory(context.Background(), accountID, 1)
	if err != nil || len(rows) == 0 {
		t.Fatalf("PasswordHistory: %v (%d rows)", err, len(rows))
	}
	return rows[0]
}
