package passgate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/internal"
	"github.com/MrEthical07/passgate/internal/flows"
	"github.com/MrEthical07/passgate/jwt"
	"github.com/MrEthical07/passgate/password"
)

// Engine runs the credential lifecycle: password verification with tiered
// lockout, rotation with history, verification codes, and the two-step login.
//
// An Engine holds no per-account state; everything lives in the store, so any
// number of engines may share one store.
type Engine struct {
	config   Config
	store    credential.Store
	notifier Notifier
	codec    TokenCodec
	hasher   password.Hasher
	logger   *zap.Logger
	now      func() time.Time
	metrics  *Metrics

	flows flows.Deps
}

// Close releases the notifier when it owns resources, such as a dispatcher
// queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if c, ok := e.notifier.(interface{ Close() }); ok {
		c.Close()
	}
}

// NotifyDropped reports notices discarded by a dispatcher under backpressure.
func (e *Engine) NotifyDropped() uint64 {
	if e == nil {
		return 0
	}
	if d, ok := e.notifier.(interface{ Dropped() uint64 }); ok {
		return d.Dropped()
	}
	return 0
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) buildFlows() flows.Deps {
	cfg := e.config

	tiers := make([]flows.LockoutTier, len(cfg.Lockout.Tiers))
	for i, t := range cfg.Lockout.Tiers {
		tiers[i] = flows.LockoutTier{Duration: t.Duration, AttemptLimit: t.AttemptLimit}
	}

	pw := flows.PasswordDeps{
		Store:       e.store,
		Tiers:       tiers,
		HistorySize: cfg.Password.HistorySize,
		Policy:      cfg.Password.Policy,
		Hash:        e.hasher.Hash,
		Verify:      e.hasher.Verify,
		Now:         e.now,
		NewID:       internal.NewID,
		MetricInc:   e.metrics.incInt,
		Metrics: flows.PasswordMetrics{
			VerifySuccess:  int(MetricPasswordVerifySuccess),
			VerifyFailure:  int(MetricPasswordVerifyFailure),
			Lockout:        int(MetricAccountLocked),
			LockedReject:   int(MetricLockedRejected),
			RotateSuccess:  int(MetricPasswordRotated),
			ReuseRejected:  int(MetricPasswordReuseRejected),
			PolicyRejected: int(MetricPasswordPolicyRejected),
		},
		Errors: flows.PasswordErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			NoValidCredential:  ErrNoValidCredential,
			PasswordReused:     ErrPasswordReused,
			AccountNotFound:    ErrAccountNotFound,
			StoreUnavailable:   ErrStoreUnavailable,
			Internal:           ErrInternal,
			Locked:             func(until time.Time) error { return &LockoutError{Until: until} },
			Policy:             func(v []string) error { return &PolicyError{Violations: v} },
		},
	}

	code := flows.CodeDeps{
		Store:       e.store,
		Digits:      cfg.TwoFactor.Digits,
		MaxAttempts: cfg.TwoFactor.MaxAttempts,
		Retain:      cfg.TwoFactor.RetainedCodes,
		Split:       cfg.TwoFactor.SplitMode,
		Bypass:      cfg.TwoFactor.Bypass,
		Hash:        e.hasher.Hash,
		Verify:      e.hasher.Verify,
		NewOTP:      internal.NewOTP,
		NewID:       internal.NewID,
		Now:         e.now,
		SignSplit:   e.signSplit,
		DecodeSplit: e.decodeSplit,
		Deliver:     e.deliverCode,
		MetricInc:   e.metrics.incInt,
		Metrics: flows.CodeMetrics{
			Issued:       int(MetricCodeIssued),
			Verified:     int(MetricCodeVerified),
			Failed:       int(MetricCodeFailed),
			Denied:       int(MetricCodeDenied),
			NotifySkip:   int(MetricCodeBypassed),
			TokenFailure: int(MetricSplitTokenRejected),
		},
		Errors: flows.CodeErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidPurpose:       ErrInvalidPurpose,
			CodeNotFound:         ErrCodeNotFound,
			CodeExhausted:        ErrCodeExpiredOrExhausted,
			CodeMismatch:         ErrCodeMismatch,
			TokenInvalid:         ErrTokenInvalidOrExpired,
			TokenPurposeMismatch: ErrTokenPurposeMismatch,
			StoreUnavailable:     ErrStoreUnavailable,
			Internal:             ErrInternal,
		},
	}

	hasher := e.hasher
	decoy := sync.OnceValue(func() string {
		encoded, err := hasher.Hash("passgate-decoy-secret")
		if err != nil {
			e.logger.Warn("passgate: decoy hash unavailable", zap.Error(err))
			return ""
		}
		return encoded
	})

	login := flows.LoginDeps{
		Accounts:       e.store,
		VerifyPassword: e.verifyAccountPassword,
		DecoyVerify: func(secret string) {
			if encoded := decoy(); encoded != "" {
				_, _ = hasher.Verify(secret, encoded)
			}
		},
		IssueCode: func(ctx context.Context, account credential.Account, purpose credential.Purpose) (flows.IssuedCode, error) {
			return flows.RunIssueCode(ctx, account, purpose, e.codeTTL(purpose), e.flows.Code)
		},
		VerifyCode: func(ctx context.Context, accountID string, purpose credential.Purpose, code, splitToken string) error {
			return flows.RunVerifyCode(ctx, accountID, purpose, code, splitToken, e.flows.Code)
		},
		SignVerify: e.signVerify,
		SignAccess: e.signAccess,
		MetricInc:  e.metrics.incInt,
		Metrics: flows.LoginMetrics{
			LoginSuccess:    int(MetricLoginSuccess),
			LoginFailure:    int(MetricLoginFailure),
			FinalizeSuccess: int(MetricFinalizeSuccess),
			FinalizeFailure: int(MetricFinalizeFailure),
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			MissingInput:       ErrMissingInput,
			InvalidCredentials: ErrInvalidCredentials,
			AccountInactive:    ErrAccountInactive,
			AccountNotFound:    ErrAccountNotFound,
			RoleMissing:        ErrRoleMissing,
			StoreUnavailable:   ErrStoreUnavailable,
		},
	}

	return flows.Deps{Password: pw, Code: code, Login: login}
}

func (e *Engine) codeTTL(purpose credential.Purpose) time.Duration {
	if purpose == credential.PurposePasswordReset {
		return e.config.TwoFactor.ResetCodeTTL
	}
	return e.config.TwoFactor.CodeTTL
}

// activeAccount loads an account by ID and requires it to be active.
func (e *Engine) activeAccount(ctx context.Context, accountID string) (credential.Account, error) {
	account, err := e.store.AccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return credential.Account{}, ErrAccountNotFound
		}
		return credential.Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		return credential.Account{}, ErrAccountInactive
	}
	return account, nil
}

func (e *Engine) activeAccountByEmail(ctx context.Context, email string) (credential.Account, error) {
	account, err := e.store.AccountByEmail(ctx, flows.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return credential.Account{}, ErrAccountNotFound
		}
		return credential.Account{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !account.Active {
		return credential.Account{}, ErrAccountInactive
	}
	return account, nil
}

// notifyCtx detaches delivery from request cancellation.
func notifyCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (e *Engine) deliverCode(ctx context.Context, d flows.CodeDelivery) {
	err := e.notifier.Notify(notifyCtx(ctx), Notice{
		Kind:      NoticeCode,
		Email:     d.Account.Email,
		Name:      d.Account.Name,
		Purpose:   d.Purpose,
		Code:      d.Code,
		ExpiresAt: d.ExpiresAt,
	})
	if err != nil {
		e.logger.Warn("passgate: code delivery failed",
			zap.String("account_id", d.Account.ID),
			zap.String("purpose", string(d.Purpose)),
			zap.Error(err))
	}
}

func (e *Engine) notifyLockout(ctx context.Context, account credential.Account, l flows.Lockout) {
	e.logger.Info("passgate: account locked",
		zap.String("account_id", account.ID),
		zap.Int("tier", l.Tier),
		zap.Time("until", l.Until))

	err := e.notifier.Notify(notifyCtx(ctx), Notice{
		Kind:        NoticeLockout,
		Email:       account.Email,
		Name:        account.Name,
		LockedUntil: l.Until,
		Attempts:    l.Attempts,
	})
	if err != nil {
		e.logger.Warn("passgate: lockout notice failed", zap.String("account_id", account.ID), zap.Error(err))
	}
}

func (e *Engine) signVerify(account credential.Account) (string, error) {
	token, err := e.codec.Sign(jwt.Claims{Scope: jwt.ScopeVerify, Email: account.Email}, e.config.Tokens.VerifyTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return token, nil
}

func (e *Engine) signAccess(account credential.Account, role credential.Role) (string, error) {
	claims := jwt.Claims{
		Scope:     jwt.ScopeAccess,
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.Name,
		Role:      role.Name,
	}
	claims.Subject = account.ID
	token, err := e.codec.Sign(claims, e.config.Tokens.AccessTTL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return token, nil
}

func (e *Engine) signSplit(part string, purpose credential.Purpose, ttl time.Duration) (string, error) {
	return e.codec.Sign(jwt.Claims{Scope: jwt.ScopeSplit, CodePart: part, Purpose: string(purpose)}, ttl)
}

func (e *Engine) decodeSplit(token string) (string, credential.Purpose, error) {
	if token == "" {
		return "", "", ErrTokenInvalidOrExpired
	}
	claims, err := e.codec.Verify(token)
	if err != nil {
		return "", "", err
	}
	if claims.Scope != jwt.ScopeSplit || claims.CodePart == "" {
		return "", "", ErrTokenInvalidOrExpired
	}
	return claims.CodePart, credential.Purpose(claims.Purpose), nil
}
