package passgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

const (
	testEmail    = "ada@example.com"
	testPassword = "Correct-horse-9"
	testKey      = "0123456789abcdef0123456789abcdef"
)

type engineClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *engineClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *engineClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return nil
}

func (r *recordingNotifier) last(t *testing.T, kind NoticeKind) Notice {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notices) - 1; i >= 0; i-- {
		if r.notices[i].Kind == kind {
			return r.notices[i]
		}
	}
	t.Fatalf("no %s notice recorded", kind)
	return Notice{}
}

type testEngine struct {
	*Engine
	store    *credential.MemoryStore
	clock    *engineClock
	notifier *recordingNotifier
	account  credential.Account
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.SigningMethod = jwt.MethodHS256
	cfg.Tokens.PrivateKey = []byte(testKey)
	return cfg
}

func newTestEngine(t testing.TB, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	bc, err := password.NewBcrypt(4)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	store := credential.NewMemoryStore()
	clock := &engineClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}

	e, err := New().
		WithConfig(cfg).
		WithStore(store).
		WithNotifier(notifier).
		WithHasher(password.NewMulti(bc)).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ctx := context.Background()
	account := credential.Account{ID: "acc-1", Email: testEmail, Name: "Ada", Active: true, RoleID: "r1"}
	if err := store.PutRole(ctx, credential.Role{ID: "r1", Name: "admin"}); err != nil {
		t.Fatalf("put role: %v", err)
	}
	if err := store.CreateAccount(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if err := e.ProvisionPassword(ctx, account.ID, testPassword); err != nil {
		t.Fatalf("provision: %v", err)
	}

	return &testEngine{Engine: e, store: store, clock: clock, notifier: notifier, account: account}
}

func (te *testEngine) currentPassword(t *testing.T) credential.PasswordCredential {
	t.Helper()
	rows, err := te.store.PasswordHistory(context.Background(), te.account.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, r := range rows {
		if r.Current() {
			return r
		}
	}
	t.Fatalf("no current password")
	return credential.PasswordCredential{}
}

// tamperSignature flips one character inside the JWS signature.
func tamperSignature(token string) string {
	b := []byte(token)
	i := len(b) - 10
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatalf("expected build without store to fail")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.TwoFactor.MaxAttempts = 0
	if _, err := New().WithConfig(cfg).WithStore(credential.NewMemoryStore()).Build(); err == nil {
		t.Fatalf("expected invalid config to fail")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithStore(credential.NewMemoryStore())
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected second build to fail")
	}
}

func TestLoginDeliversCodeAndFinalizes(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	res, err := te.Login(ctx, "  ADA@example.com ", testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.DebugCode != "" {
		t.Fatalf("code must not be returned while delivery is on")
	}
	if res.VerifyToken == "" {
		t.Fatalf("expected verify token")
	}
	if !res.ExpiresAt.Equal(te.clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}

	notice := te.notifier.last(t, NoticeCode)
	if notice.Email != testEmail || notice.Purpose != credential.PurposeLogin || len(notice.Code) != 6 {
		t.Fatalf("unexpected notice %+v", notice)
	}

	if err := te.CheckVerifyScope(res.VerifyToken, testEmail); err != nil {
		t.Fatalf("verify scope: %v", err)
	}
	access, err := te.FinalizeLogin(ctx, testEmail, notice.Code, "", "")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if access.Role != "admin" || access.AccountID != te.account.ID || access.ExpiresIn != time.Hour {
		t.Fatalf("unexpected access result %+v", access)
	}

	id, err := te.ValidateAccessToken(access.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if id.AccountID != te.account.ID || id.Email != testEmail || id.Role != "admin" {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := te.FinalizeLogin(ctx, testEmail, notice.Code, "", ""); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected replay to fail with ErrCodeNotFound, got %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricFinalizeSuccess] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}

func TestLoginBypassReturnsCode(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.TwoFactor.Bypass = true })

	res, err := te.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(res.DebugCode) != 6 {
		t.Fatalf("expected debug code, got %q", res.DebugCode)
	}
	te.notifier.mu.Lock()
	delivered := len(te.notifier.notices)
	te.notifier.mu.Unlock()
	if delivered != 0 {
		t.Fatalf("expected no delivery in bypass mode, got %d", delivered)
	}
	if got := te.MetricsSnapshot().Counters[MetricCodeBypassed]; got != 1 {
		t.Fatalf("expected bypass counter 1, got %d", got)
	}
	if _, err := te.FinalizeLogin(context.Background(), testEmail, res.DebugCode, "", credential.PurposeLogin); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestLoginUnknownEmailLooksLikeWrongPassword(t *testing.T) {
	te := newTestEngine(t, nil)
	_, err := te.Login(context.Background(), "nobody@example.com", testPassword)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := te.Login(context.Background(), "", testPassword); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}

type countingHasher struct {
	password.Hasher
	mu       sync.Mutex
	hashes   int
	verifies int
}

func (h *countingHasher) Hash(secret string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return h.Hasher.Hash(secret)
}

func (h *countingHasher) Verify(secret, encoded string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(secret, encoded)
}

func TestLoginUnknownEmailVerifiesDecoyHash(t *testing.T) {
	te := newTestEngine(t, nil)
	counting := &countingHasher{Hasher: te.hasher}
	te.hasher = counting
	te.flows = te.buildFlows()

	for i := 0; i < 2; i++ {
		if _, err := te.Login(context.Background(), "nobody@example.com", testPassword); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
	if counting.verifies != 2 {
		t.Fatalf("expected one verify per unknown-address login, got %d", counting.verifies)
	}
	if counting.hashes != 1 {
		t.Fatalf("expected the decoy hash to be computed once, got %d", counting.hashes)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	te := newTestEngine(t, nil)
	if err := te.store.SetAccountActive(te.account.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := te.Login(context.Background(), testEmail, testPassword); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestTenFailuresLockForOneMinute(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		if _, err := te.Login(ctx, testEmail, "Wrong-horse-9"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	_, err := te.Login(ctx, testEmail, "Wrong-horse-9")
	var lockErr *LockoutError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockoutError on 10th failure, got %v", err)
	}
	want := te.clock.Now().Add(time.Minute)
	if !lockErr.Until.Equal(want) {
		t.Fatalf("expected lock until %v, got %v", want, lockErr.Until)
	}
	if KindOf(err) != KindExhausted {
		t.Fatalf("expected exhausted kind, got %v", KindOf(err))
	}

	cur := te.currentPassword(t)
	if cur.AttemptCount != 0 || cur.LockoutTier != 1 || cur.AttemptLimit != 5 {
		t.Fatalf("unexpected credential after lock %+v", cur)
	}

	notice := te.notifier.last(t, NoticeLockout)
	if notice.Email != testEmail || !notice.LockedUntil.Equal(want) || notice.Attempts != 10 {
		t.Fatalf("unexpected lockout notice %+v", notice)
	}

	// The right password is still refused while locked.
	if _, err := te.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	te.clock.Advance(time.Minute)
	if _, err := te.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
	cur = te.currentPassword(t)
	if cur.LockoutTier != 0 || cur.AttemptLimit != 10 || cur.LockExpiry != nil {
		t.Fatalf("expected reset counters, got %+v", cur)
	}
}

func TestSplitModeTamperedTokenCostsAttempt(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.TwoFactor.SplitMode = true
		c.TwoFactor.Bypass = true
	})
	ctx := context.Background()

	res, err := te.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.SplitToken == "" || len(res.DebugCode) != 6 {
		t.Fatalf("expected split token and first half, got %+v", res)
	}

	tampered := tamperSignature(res.SplitToken)
	if _, err := te.FinalizeLogin(ctx, testEmail, res.DebugCode, tampered, ""); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired, got %v", err)
	}
	codes, err := te.store.Codes(ctx, te.account.ID, credential.PurposeLogin)
	if err != nil || len(codes) != 1 {
		t.Fatalf("codes: %v %d", err, len(codes))
	}
	if codes[0].AttemptCount != 1 || !codes[0].Split {
		t.Fatalf("expected one attempt on split row, got %+v", codes[0])
	}

	if _, err := te.FinalizeLogin(ctx, testEmail, res.DebugCode, res.SplitToken, ""); err != nil {
		t.Fatalf("finalize with genuine token: %v", err)
	}
}

func TestSplitTokenPurposeMismatch(t *testing.T) {
	te := newTestEngine(t, func(c *Config) {
		c.TwoFactor.SplitMode = true
		c.TwoFactor.Bypass = true
	})
	ctx := context.Background()

	login, err := te.IssueCode(ctx, te.account.ID, credential.PurposeLogin)
	if err != nil {
		t.Fatalf("issue login: %v", err)
	}
	action, err := te.IssueCode(ctx, te.account.ID, credential.PurposeCriticalAction)
	if err != nil {
		t.Fatalf("issue action: %v", err)
	}

	err = te.VerifyCode(ctx, te.account.ID, credential.PurposeCriticalAction, action.Code, login.SplitToken)
	if !errors.Is(err, ErrTokenPurposeMismatch) {
		t.Fatalf("expected ErrTokenPurposeMismatch, got %v", err)
	}
	if err := te.VerifyCode(ctx, te.account.ID, credential.PurposeCriticalAction, action.Code, action.SplitToken); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyCodeRejectsBadInput(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	if err := te.VerifyCode(ctx, te.account.ID, "signup", "123456", ""); !errors.Is(err, ErrInvalidPurpose) {
		t.Fatalf("expected ErrInvalidPurpose, got %v", err)
	}
	if err := te.VerifyCode(ctx, te.account.ID, credential.PurposeLogin, "", ""); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	if _, err := te.IssueCode(ctx, "missing", credential.PurposeLogin); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestCodeExhaustsAfterMaxAttempts(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.TwoFactor.Bypass = true })
	ctx := context.Background()

	issued, err := te.IssueCode(ctx, te.account.ID, credential.PurposePasswordChange)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	wrong := "000000"
	if issued.Code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 5; i++ {
		if err := te.VerifyCode(ctx, te.account.ID, credential.PurposePasswordChange, wrong, ""); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}
	err = te.VerifyCode(ctx, te.account.ID, credential.PurposePasswordChange, issued.Code, "")
	if !errors.Is(err, ErrCodeExpiredOrExhausted) {
		t.Fatalf("expected ErrCodeExpiredOrExhausted, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if err := te.ChangePassword(ctx, te.account.ID, "", "Brand-new-pass-1"); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
	err := te.ChangePassword(ctx, te.account.ID, testPassword, "short")
	var policyErr *PolicyError
	if !errors.As(err, &policyErr) || len(policyErr.Violations) == 0 {
		t.Fatalf("expected *PolicyError, got %v", err)
	}
	if err := te.ChangePassword(ctx, te.account.ID, testPassword, testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
	if err := te.ChangePassword(ctx, te.account.ID, "Wrong-horse-9", "Brand-new-pass-1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := te.ChangePassword(ctx, te.account.ID, testPassword, "Brand-new-pass-1"); err != nil {
		t.Fatalf("change: %v", err)
	}

	if err := te.VerifyPassword(ctx, te.account.ID, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if err := te.VerifyPassword(ctx, te.account.ID, "Brand-new-pass-1"); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.TwoFactor.Bypass = true })
	ctx := context.Background()

	issued, err := te.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !issued.ExpiresAt.Equal(te.clock.Now().Add(120 * time.Minute)) {
		t.Fatalf("reset code must use the reset ttl, got %v", issued.ExpiresAt)
	}

	// A reused password is rejected without burning the code.
	if err := te.ConfirmPasswordReset(ctx, testEmail, issued.Code, "", testPassword); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
	codes, _ := te.store.Codes(ctx, te.account.ID, credential.PurposePasswordReset)
	if codes[len(codes)-1].AttemptCount != 0 {
		t.Fatalf("rejected password must not cost an attempt")
	}

	if err := te.ConfirmPasswordReset(ctx, testEmail, issued.Code, "", "Reset-pass-42"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := te.VerifyPassword(ctx, te.account.ID, "Reset-pass-42"); err != nil {
		t.Fatalf("verify new password: %v", err)
	}

	snap := te.MetricsSnapshot()
	if snap.Counters[MetricPasswordResetRequest] != 1 ||
		snap.Counters[MetricPasswordResetConfirmSuccess] != 1 ||
		snap.Counters[MetricPasswordResetConfirmFailure] != 1 {
		t.Fatalf("unexpected reset counters %+v", snap.Counters)
	}

	if _, err := te.RequestPasswordReset(ctx, "nobody@example.com"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestResetCodeCannotFinalizeLogin(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.TwoFactor.Bypass = true })
	ctx := context.Background()

	issued, err := te.RequestPasswordReset(ctx, testEmail)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := te.FinalizeLogin(ctx, testEmail, issued.Code, "", credential.PurposeLogin); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestCheckVerifyScope(t *testing.T) {
	te := newTestEngine(t, func(c *Config) { c.TwoFactor.Bypass = true })

	res, err := te.Login(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := te.CheckVerifyScope(res.VerifyToken, "ADA@example.com"); err != nil {
		t.Fatalf("case-insensitive email must match: %v", err)
	}
	if err := te.CheckVerifyScope(res.VerifyToken, "eve@example.com"); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch, got %v", err)
	}
	if err := te.CheckVerifyScope("", testEmail); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("expected ErrScopeMismatch for missing token, got %v", err)
	}
	if _, err := te.ValidateAccessToken(res.VerifyToken); !errors.Is(err, ErrScopeMismatch) {
		t.Fatalf("verify token must not pass as access token, got %v", err)
	}

	te.clock.Advance(11 * time.Minute)
	if err := te.CheckVerifyScope(res.VerifyToken, testEmail); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("expected expired verify token, got %v", err)
	}
}

func TestLoginUpgradesWeakHash(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	strong, err := password.NewBcrypt(5)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	te.hasher = password.NewMulti(strong)
	te.flows = te.buildFlows()

	if err := te.VerifyPassword(ctx, te.account.ID, testPassword); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if strong.NeedsRehash(te.currentPassword(t).SecretHash) {
		t.Fatalf("expected hash to be upgraded to the stronger cost")
	}
	if err := te.VerifyPassword(ctx, te.account.ID, testPassword); err != nil {
		t.Fatalf("verify after upgrade: %v", err)
	}
}

// rotatingStore installs a new password just before its second password
// mutation, the way a concurrent reset would.
type rotatingStore struct {
	credential.Store
	calls  int
	rotate func()
}

func (s *rotatingStore) MutateCurrentPassword(ctx context.Context, accountID string, fn credential.PasswordMutator) error {
	s.calls++
	if s.calls == 2 {
		s.rotate()
	}
	return s.Store.MutateCurrentPassword(ctx, accountID, fn)
}

func upgradeHasher(t *testing.T, te *testEngine) {
	t.Helper()
	strong, err := password.NewBcrypt(5)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	te.hasher = password.NewMulti(strong)
	te.flows = te.buildFlows()
}

func TestLoginUpgradeKeepsConcurrentPasswordChange(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	const replacement = "Brand-new-pass-7"

	wrapped := &rotatingStore{Store: te.store}
	wrapped.rotate = func() {
		if err := te.ProvisionPassword(ctx, te.account.ID, replacement); err != nil {
			t.Fatalf("concurrent provision: %v", err)
		}
	}
	te.Engine.store = wrapped
	upgradeHasher(t, te)

	if err := te.VerifyPassword(ctx, te.account.ID, testPassword); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := te.VerifyPassword(ctx, te.account.ID, replacement); err != nil {
		t.Fatalf("concurrently set password must survive the upgrade, got %v", err)
	}
	if err := te.VerifyPassword(ctx, te.account.ID, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("replaced password must not be restored, got %v", err)
	}
}

func TestLoginUpgradeKeepsHistory(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	rotations := []string{"Second-horse-2", "Third-horse-3", "Fourth-horse-4", "Fifth-horse-5"}
	for _, p := range rotations {
		if err := te.ProvisionPassword(ctx, te.account.ID, p); err != nil {
			t.Fatalf("provision %s: %v", p, err)
		}
	}
	before, err := te.store.PasswordHistory(ctx, te.account.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	upgradeHasher(t, te)

	last := rotations[len(rotations)-1]
	if err := te.VerifyPassword(ctx, te.account.ID, last); err != nil {
		t.Fatalf("verify: %v", err)
	}
	after, err := te.store.PasswordHistory(ctx, te.account.ID, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(after) != len(before) || after[0].ID != before[0].ID {
		t.Fatalf("upgrade must rewrite the current row in place, before %d rows, after %d rows", len(before), len(after))
	}
	if after[0].SecretHash == before[0].SecretHash {
		t.Fatal("expected the current hash to change")
	}
	if err := te.RotatePassword(ctx, te.account.ID, testPassword, ""); !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("oldest retained password must still be rejected, got %v", err)
	}
}

func TestProvisionInactiveAccount(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	if err := te.store.CreateAccount(ctx, credential.Account{ID: "acc-2", Email: "bob@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := te.ProvisionPassword(ctx, "acc-2", testPassword); err != nil {
		t.Fatalf("provision inactive: %v", err)
	}
	if err := te.ProvisionPassword(ctx, "missing", testPassword); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSecurityReport(t *testing.T) {
	te := newTestEngine(t, nil)
	r := te.SecurityReport()
	if r.SigningMethod != jwt.MethodHS256 || r.LockoutTiers != 4 || r.FirstLockout != time.Minute || r.MaxLockout != 15*time.Minute {
		t.Fatalf("unexpected report %+v", r)
	}
	if !r.NotifierAttached || r.DeliveryBypassed {
		t.Fatalf("unexpected delivery flags %+v", r)
	}
}

func TestNilEngine(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), testEmail, testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if e.NotifyDropped() != 0 {
		t.Fatalf("expected 0 dropped")
	}
	e.Close()
}
