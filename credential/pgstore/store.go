// Package pgstore implements credential.Store on PostgreSQL.
//
// Counter mutations run inside a transaction holding SELECT ... FOR UPDATE on
// the addressed row; rotations and code issuance lock the account row so their
// prune-and-insert steps serialize per account.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/MrEthical07/passgate/credential"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Store is a PostgreSQL-backed credential.Store.
type Store struct {
	db *pgxpool.Pool
}

var _ credential.Store = (*Store)(nil)

// NewPool opens and pings a connection pool.
func NewPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// New returns a store over db.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (credential.Account, error) {
	return s.account(ctx, `SELECT id, email, name, active, COALESCE(role_id, '') FROM accounts WHERE email = $1`, email)
}

func (s *Store) AccountByID(ctx context.Context, id string) (credential.Account, error) {
	return s.account(ctx, `SELECT id, email, name, active, COALESCE(role_id, '') FROM accounts WHERE id = $1`, id)
}

func (s *Store) account(ctx context.Context, query, arg string) (credential.Account, error) {
	var a credential.Account
	err := s.db.QueryRow(ctx, query, arg).Scan(&a.ID, &a.Email, &a.Name, &a.Active, &a.RoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.Account{}, credential.ErrNotFound
		}
		return credential.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (s *Store) Role(ctx context.Context, id string) (credential.Role, error) {
	var r credential.Role
	err := s.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE id = $1`, id).Scan(&r.ID, &r.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.Role{}, credential.ErrNotFound
		}
		return credential.Role{}, fmt.Errorf("failed to get role: %w", err)
	}
	return r, nil
}

func (s *Store) CreateAccount(ctx context.Context, account credential.Account) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (id, email, name, active, role_id) VALUES ($1, $2, $3, $4, $5)`,
		account.ID, account.Email, account.Name, account.Active, nullString(account.RoleID),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return credential.ErrDuplicate
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *Store) PutRole(ctx context.Context, role credential.Role) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO roles (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		role.ID, role.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to put role: %w", err)
	}
	return nil
}

// lockAccount takes the account row lock for the rest of tx.
func lockAccount(ctx context.Context, tx pgx.Tx, accountID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.ErrNotFound
		}
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

const passwordColumns = `seq, id, account_id, secret_hash, is_temporary, attempt_count, attempt_limit,
	lock_expiry, lockout_tier, status, expiry, created_at`

func scanPassword(row pgx.Row) (int64, credential.PasswordCredential, error) {
	var (
		seq    int64
		c      credential.PasswordCredential
		status string
	)
	err := row.Scan(&seq, &c.ID, &c.AccountID, &c.SecretHash, &c.Temporary, &c.AttemptCount,
		&c.AttemptLimit, &c.LockExpiry, &c.LockoutTier, &status, &c.Expiry, &c.CreatedAt)
	c.Status = credential.PasswordStatus(status)
	return seq, c, err
}

func (s *Store) MutateCurrentPassword(ctx context.Context, accountID string, fn credential.PasswordMutator) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	seq, current, err := scanPassword(tx.QueryRow(ctx,
		`SELECT `+passwordColumns+` FROM password_credentials
		 WHERE account_id = $1 AND status = 'valid' AND NOT is_temporary
		 ORDER BY seq DESC LIMIT 1 FOR UPDATE`, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.ErrNotFound
		}
		return fmt.Errorf("failed to lock password credential: %w", err)
	}

	patch, err := fn(current)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `UPDATE password_credentials SET
		attempt_count = COALESCE($2::integer, attempt_count),
		attempt_limit = COALESCE($3::integer, attempt_limit),
		lockout_tier  = COALESCE($4::integer, lockout_tier),
		lock_expiry   = COALESCE($5::timestamptz, CASE WHEN $6::boolean THEN NULL ELSE lock_expiry END),
		secret_hash   = COALESCE($7::text, secret_hash)
		WHERE seq = $1`,
		seq, patch.AttemptCount, patch.AttemptLimit, patch.LockoutTier, patch.LockExpiry, patch.ClearLockExpiry,
		patch.SecretHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password credential: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) PasswordHistory(ctx context.Context, accountID string, limit int) ([]credential.PasswordCredential, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+passwordColumns+` FROM password_credentials
		 WHERE account_id = $1 AND NOT is_temporary
		 ORDER BY seq DESC LIMIT $2`, accountID, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to list password history: %w", err)
	}
	defer rows.Close()

	var out []credential.PasswordCredential
	for rows.Next() {
		_, c, err := scanPassword(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan password credential: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) RotatePassword(ctx context.Context, accountID string, next credential.PasswordCredential, keep int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, accountID); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE password_credentials SET status = 'blocked'
		 WHERE account_id = $1 AND status = 'valid' AND NOT is_temporary`, accountID); err != nil {
		return fmt.Errorf("failed to block previous credentials: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO password_credentials (id, account_id, secret_hash, is_temporary, attempt_count,
			attempt_limit, lock_expiry, lockout_tier, status, expiry, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		next.ID, accountID, next.SecretHash, next.Temporary, next.AttemptCount, next.AttemptLimit,
		next.LockExpiry, next.LockoutTier, string(next.Status), next.Expiry, next.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert password credential: %w", err)
	}

	if keep > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM password_credentials
			 WHERE account_id = $1 AND NOT is_temporary AND seq NOT IN (
				SELECT seq FROM password_credentials
				WHERE account_id = $1 AND NOT is_temporary
				ORDER BY seq DESC LIMIT $2)`, accountID, keep); err != nil {
			return fmt.Errorf("failed to prune password history: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const codeColumns = `seq, id, account_id, code_hash, is_split, attempt_count, attempt_limit,
	status, purpose, expiry, created_at`

func scanCode(row pgx.Row) (int64, credential.VerificationCode, error) {
	var (
		seq             int64
		c               credential.VerificationCode
		status, purpose string
	)
	err := row.Scan(&seq, &c.ID, &c.AccountID, &c.CodeHash, &c.Split, &c.AttemptCount,
		&c.AttemptLimit, &status, &purpose, &c.Expiry, &c.CreatedAt)
	c.Status = credential.CodeStatus(status)
	c.Purpose = credential.Purpose(purpose)
	return seq, c, err
}

func (s *Store) CreateCode(ctx context.Context, code credential.VerificationCode, keep int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, code.AccountID); err != nil {
		return err
	}

	if keep > 0 {
		if _, err := tx.Exec(ctx,
			`DELETE FROM verification_codes
			 WHERE account_id = $1 AND purpose = $2 AND seq NOT IN (
				SELECT seq FROM verification_codes
				WHERE account_id = $1 AND purpose = $2
				ORDER BY seq DESC LIMIT $3)`, code.AccountID, string(code.Purpose), keep-1); err != nil {
			return fmt.Errorf("failed to prune verification codes: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO verification_codes (id, account_id, code_hash, is_split, attempt_count,
			attempt_limit, status, purpose, expiry, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		code.ID, code.AccountID, code.CodeHash, code.Split, code.AttemptCount, code.AttemptLimit,
		string(code.Status), string(code.Purpose), code.Expiry, code.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert verification code: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) MutateLatestPendingCode(ctx context.Context, accountID string, purpose credential.Purpose, fn credential.CodeMutator) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	seq, code, err := scanCode(tx.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM verification_codes
		 WHERE account_id = $1 AND purpose = $2 AND status = 'pending'
		 ORDER BY seq DESC LIMIT 1 FOR UPDATE`, accountID, string(purpose)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.ErrNotFound
		}
		return fmt.Errorf("failed to lock verification code: %w", err)
	}

	patch, err := fn(code)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return tx.Commit(ctx)
	}

	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	_, err = tx.Exec(ctx, `UPDATE verification_codes SET
		attempt_count = COALESCE($2::integer, attempt_count),
		status        = COALESCE($3::text, status)
		WHERE seq = $1`, seq, patch.AttemptCount, status)
	if err != nil {
		return fmt.Errorf("failed to update verification code: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) Codes(ctx context.Context, accountID string, purpose credential.Purpose) ([]credential.VerificationCode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+codeColumns+` FROM verification_codes
		 WHERE account_id = $1 AND purpose = $2 ORDER BY seq DESC`, accountID, string(purpose))
	if err != nil {
		return nil, fmt.Errorf("failed to list verification codes: %w", err)
	}
	defer rows.Close()

	var out []credential.VerificationCode
	for rows.Next() {
		_, c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification code: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Truncate removes every row. Intended for tests.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `TRUNCATE verification_codes, password_credentials, accounts, roles`)
	return err
}
