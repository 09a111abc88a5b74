// Package bootstrap seeds the super-admin account at startup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MrEthical07/passgate/credential"
	"github.com/MrEthical07/passgate/internal"
)

// Admin describes the account to seed.
type Admin struct {
	Email    string
	Name     string
	Password string
	Role     string
}

// Provisioner sets the first password of an account. *passgate.Engine
// implements it.
type Provisioner interface {
	ProvisionPassword(ctx context.Context, accountID, password string) error
}

// EnsureAdmin creates the admin role, account and password when they are
// missing. It reports whether an account was created. An existing account
// keeps its password; one without any password gets admin.Password.
func EnsureAdmin(ctx context.Context, store credential.Store, engine Provisioner, admin Admin, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	email := strings.ToLower(strings.TrimSpace(admin.Email))
	if email == "" {
		return false, nil
	}
	if admin.Role == "" {
		admin.Role = "super_admin"
	}

	account, err := store.AccountByEmail(ctx, email)
	switch {
	case err == nil:
		return false, ensurePassword(ctx, store, engine, account, admin.Password, logger)
	case !errors.Is(err, credential.ErrNotFound):
		return false, fmt.Errorf("bootstrap: lookup admin: %w", err)
	}

	role := credential.Role{ID: admin.Role, Name: admin.Role}
	if err := store.PutRole(ctx, role); err != nil {
		return false, fmt.Errorf("bootstrap: put role: %w", err)
	}

	account = credential.Account{ID: internal.NewID(), Email: email, Name: admin.Name, Active: true, RoleID: role.ID}
	if err := store.CreateAccount(ctx, account); err != nil {
		if !errors.Is(err, credential.ErrDuplicate) {
			return false, fmt.Errorf("bootstrap: create admin: %w", err)
		}
		// Another instance won the race.
		account, err = store.AccountByEmail(ctx, email)
		if err != nil {
			return false, fmt.Errorf("bootstrap: lookup admin: %w", err)
		}
		return false, ensurePassword(ctx, store, engine, account, admin.Password, logger)
	}

	if err := engine.ProvisionPassword(ctx, account.ID, admin.Password); err != nil {
		return true, fmt.Errorf("bootstrap: provision admin password: %w", err)
	}
	logger.Info("bootstrap: super-admin created", zap.String("account_id", account.ID), zap.String("role", role.Name))
	return true, nil
}

func ensurePassword(ctx context.Context, store credential.Store, engine Provisioner, account credential.Account, password string, logger *zap.Logger) error {
	history, err := store.PasswordHistory(ctx, account.ID, 1)
	if err != nil {
		return fmt.Errorf("bootstrap: password history: %w", err)
	}
	if len(history) > 0 {
		return nil
	}
	if err := engine.ProvisionPassword(ctx, account.ID, password); err != nil {
		return fmt.Errorf("bootstrap: provision admin password: %w", err)
	}
	logger.Info("bootstrap: super-admin password provisioned", zap.String("account_id", account.ID))
	return nil
}
