package passgate

import (
	"context"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/internal/flows"
)

// IssueCode mints a code for purpose and delivers it to the account holder.
// Older codes for the same purpose stay pending until pruned; verification
// only ever looks at the newest.
func (e *Engine) IssueCode(ctx context.Context, accountID string, purpose credential.Purpose) (*CodeIssue, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return nil, ErrMissingInput
	}
	if !purpose.Valid() {
		return nil, ErrInvalidPurpose
	}
	account, err := e.activeAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return e.issue(ctx, account, purpose)
}

func (e *Engine) issue(ctx context.Context, account credential.Account, purpose credential.Purpose) (*CodeIssue, error) {
	issued, err := flows.RunIssueCode(ctx, account, purpose, e.codeTTL(purpose), e.flows.Code)
	if err != nil {
		return nil, err
	}
	out := &CodeIssue{SplitToken: issued.SplitToken, ExpiresAt: issued.ExpiresAt}
	if e.config.TwoFactor.Bypass {
		out.Code = issued.Code
	}
	return out, nil
}

// VerifyCode checks code against the newest pending code for purpose. In
// split mode splitToken carries the second half.
func (e *Engine) VerifyCode(ctx context.Context, accountID string, purpose credential.Purpose, code, splitToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || code == "" {
		return ErrMissingInput
	}
	if !purpose.Valid() {
		return ErrInvalidPurpose
	}
	return flows.RunVerifyCode(ctx, accountID, purpose, code, splitToken, e.flows.Code)
}
