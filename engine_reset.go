package passgate

import (
	"context"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/internal/flows"
)

// RequestPasswordReset issues a password_reset code for the account behind
// email. The code lives for TwoFactor.ResetCodeTTL.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*CodeIssue, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if flows.NormalizeEmail(email) == "" {
		return nil, ErrMissingInput
	}
	account, err := e.activeAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricPasswordResetRequest)
	return e.issue(ctx, account, credential.PurposePasswordReset)
}

// ConfirmPasswordReset consumes a password_reset code and installs
// newPassword without asking for the old one.
//
// The candidate is checked against policy and history before the code is
// touched, so a rejected password does not burn an attempt.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, splitToken, newPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if flows.NormalizeEmail(email) == "" || code == "" || newPassword == "" {
		return ErrMissingInput
	}

	err := e.confirmReset(ctx, email, code, splitToken, newPassword)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return err
	}
	e.metricInc(MetricPasswordResetConfirmSuccess)
	return nil
}

func (e *Engine) confirmReset(ctx context.Context, email, code, splitToken, newPassword string) error {
	account, err := e.activeAccountByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := flows.RunCheckCandidate(ctx, account.ID, newPassword, e.flows.Password); err != nil {
		return err
	}
	if err := flows.RunVerifyCode(ctx, account.ID, credential.PurposePasswordReset, code, splitToken, e.flows.Code); err != nil {
		return err
	}
	return flows.RunCommitPassword(ctx, account.ID, newPassword, e.flows.Password)
}
