package passgate

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/internal/flows"
)

// Login runs the password step for email. On success a login code is issued
// and a verify-scope token is returned; no access token is minted here.
//
// An unknown email fails with ErrInvalidCredentials, the same as a wrong
// password.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	res, err := flows.RunLogin(ctx, email, password, e.flows.Login)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	out := &LoginResult{
		VerifyToken: res.VerifyToken,
		SplitToken:  res.Code.SplitToken,
		ExpiresAt:   res.Code.ExpiresAt,
	}
	if e.config.TwoFactor.Bypass {
		out.DebugCode = res.Code.Code
	}
	return out, nil
}

// FinalizeLogin checks the second factor and mints the access token. The
// caller must already have matched the verify-scope token's email to email;
// see CheckVerifyScope. An empty purpose means login.
func (e *Engine) FinalizeLogin(ctx context.Context, email, code, splitToken string, purpose credential.Purpose) (*AccessResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res, err := flows.RunFinalizeLogin(ctx, email, code, splitToken, purpose, e.flows.Login)
	if err != nil {
		return nil, err
	}
	return &AccessResult{
		AccessToken: res.AccessToken,
		ExpiresIn:   e.config.Tokens.AccessTTL,
		AccountID:   res.Account.ID,
		Role:        res.Role.Name,
	}, nil
}

// verifyAccountPassword runs the password flow with a lockout hook bound to
// account and upgrades the stored hash after a success when configured.
func (e *Engine) verifyAccountPassword(ctx context.Context, account credential.Account, secret string) error {
	deps := e.flows.Password
	deps.OnLockout = func(ctx context.Context, l flows.Lockout) { e.notifyLockout(ctx, account, l) }
	if r, ok := e.hasher.(interface{ NeedsRehash(string) bool }); ok && e.config.Password.UpgradeOnLogin {
		deps.NeedsRehash = r.NeedsRehash
		deps.OnRehash = e.logRehash
	}
	return flows.RunVerifyPassword(ctx, account.ID, secret, deps)
}

func (e *Engine) logRehash(_ context.Context, accountID string, err error) {
	switch {
	case err == nil:
		e.logger.Info("passgate: password hash upgraded", zap.String("account_id", accountID))
	case flows.IsRehashSkipped(err):
		e.logger.Debug("passgate: password hash upgrade skipped", zap.String("account_id", accountID))
	default:
		e.logger.Warn("passgate: password hash upgrade failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
