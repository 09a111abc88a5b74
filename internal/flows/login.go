package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/passgate/credential"
)

type LoginMetrics struct {
	LoginSuccess    int
	LoginFailure    int
	FinalizeSuccess int
	FinalizeFailure int
}

type LoginErrors struct {
	EngineNotReady     error
	MissingInput       error
	InvalidCredentials error
	AccountInactive    error
	AccountNotFound    error
	RoleMissing        error
	StoreUnavailable   error
}

// LoginResult is the outcome of a successful password step.
type LoginResult struct {
	Account     credential.Account
	VerifyToken string
	Code        IssuedCode
}

// FinalizeResult is the outcome of a successful second factor.
type FinalizeResult struct {
	Account     credential.Account
	Role        credential.Role
	AccessToken string
}

type LoginDeps struct {
	Accounts credential.AccountStore

	VerifyPassword func(ctx context.Context, account credential.Account, secret string) error
	IssueCode      func(ctx context.Context, account credential.Account, purpose credential.Purpose) (IssuedCode, error)
	VerifyCode     func(ctx context.Context, accountID string, purpose credential.Purpose, code, splitToken string) error

	SignVerify func(account credential.Account) (string, error)
	SignAccess func(account credential.Account, role credential.Role) (string, error)

	// DecoyVerify, when set, spends one hash verification on an unknown
	// address so it costs what a wrong password does.
	DecoyVerify func(secret string)

	MetricInc func(int)

	Metrics LoginMetrics
	Errors  LoginErrors
}

func (d *LoginDeps) ready() bool {
	return d.Accounts != nil && d.VerifyPassword != nil && d.IssueCode != nil &&
		d.VerifyCode != nil && d.SignVerify != nil && d.SignAccess != nil
}

func (d *LoginDeps) inc(id int) {
	if d.MetricInc != nil {
		d.MetricInc(id)
	}
}

// NormalizeEmail trims and lowercases an address for lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RunLogin runs the password step: resolve the account, verify the password,
// issue a login code and mint a verify-scope token.
func RunLogin(ctx context.Context, email, secret string, deps LoginDeps) (LoginResult, error) {
	if !deps.ready() {
		return LoginResult{}, deps.Errors.EngineNotReady
	}
	email = NormalizeEmail(email)
	if email == "" || secret == "" {
		return LoginResult{}, deps.Errors.MissingInput
	}

	res, err := runLogin(ctx, email, secret, deps)
	if err != nil {
		deps.inc(deps.Metrics.LoginFailure)
		return LoginResult{}, err
	}
	deps.inc(deps.Metrics.LoginSuccess)
	return res, nil
}

func runLogin(ctx context.Context, email, secret string, deps LoginDeps) (LoginResult, error) {
	account, err := deps.Accounts.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			// Unknown addresses look like a wrong password.
			if deps.DecoyVerify != nil {
				deps.DecoyVerify(secret)
			}
			return LoginResult{}, deps.Errors.InvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if !account.Active {
		return LoginResult{}, deps.Errors.AccountInactive
	}

	if err := deps.VerifyPassword(ctx, account, secret); err != nil {
		return LoginResult{}, err
	}

	code, err := deps.IssueCode(ctx, account, credential.PurposeLogin)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := deps.SignVerify(account)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Account: account, VerifyToken: token, Code: code}, nil
}

// RunFinalizeLogin checks the second factor for email and mints an access
// token carrying the account's identity and role.
func RunFinalizeLogin(ctx context.Context, email, code, splitToken string, purpose credential.Purpose, deps LoginDeps) (FinalizeResult, error) {
	if !deps.ready() {
		return FinalizeResult{}, deps.Errors.EngineNotReady
	}
	email = NormalizeEmail(email)
	if email == "" || code == "" {
		return FinalizeResult{}, deps.Errors.MissingInput
	}
	if purpose == "" {
		purpose = credential.PurposeLogin
	}

	res, err := runFinalize(ctx, email, code, splitToken, purpose, deps)
	if err != nil {
		deps.inc(deps.Metrics.FinalizeFailure)
		return FinalizeResult{}, err
	}
	deps.inc(deps.Metrics.FinalizeSuccess)
	return res, nil
}

func runFinalize(ctx context.Context, email, code, splitToken string, purpose credential.Purpose, deps LoginDeps) (FinalizeResult, error) {
	account, err := deps.Accounts.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return FinalizeResult{}, deps.Errors.AccountNotFound
		}
		return FinalizeResult{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if !account.Active {
		return FinalizeResult{}, deps.Errors.AccountInactive
	}

	if err := deps.VerifyCode(ctx, account.ID, purpose, code, splitToken); err != nil {
		return FinalizeResult{}, err
	}

	if account.RoleID == "" {
		return FinalizeResult{}, deps.Errors.RoleMissing
	}
	role, err := deps.Accounts.Role(ctx, account.RoleID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return FinalizeResult{}, deps.Errors.RoleMissing
		}
		return FinalizeResult{}, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	token, err := deps.SignAccess(account, role)
	if err != nil {
		return FinalizeResult{}, err
	}
	return FinalizeResult{Account: account, Role: role, AccessToken: token}, nil
}
