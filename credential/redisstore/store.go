// Package redisstore implements credential.Store on Redis.
//
// Every password history and every (account, purpose) code list lives under a
// single key, so each mutation is one WATCH/MULTI transaction on one key and
// lost updates surface as redis.TxFailedErr retries.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/passgate/credential"
	"github.com/redis/go-redis/v9"
)

const recordVersion1 = 1

// ErrBackend wraps Redis failures other than not-found.
var ErrBackend = errors.New("redisstore: backend unavailable")

// Options tunes the store.
type Options struct {
	// Prefix namespaces every key. Defaults to "passgate".
	Prefix string
	// MaxRetries bounds optimistic transaction retries per call. Defaults to 32.
	MaxRetries int
}

// Store is a Redis-backed credential.Store.
type Store struct {
	redis      redis.UniversalClient
	prefix     string
	maxRetries int
}

var _ credential.Store = (*Store)(nil)

type passwordRecord struct {
	Version int                             `json:"v"`
	Rows    []credential.PasswordCredential `json:"rows"`
}

type codeRecord struct {
	Version int                           `json:"v"`
	Rows    []credential.VerificationCode `json:"rows"`
}

// New returns a store over client.
func New(client redis.UniversalClient, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = "passgate"
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 32
	}
	return &Store{redis: client, prefix: opts.Prefix, maxRetries: opts.MaxRetries}
}

func (s *Store) accountKey(id string) string    { return s.prefix + ":acct:" + id }
func (s *Store) emailKey(email string) string   { return s.prefix + ":email:" + email }
func (s *Store) roleKey(id string) string       { return s.prefix + ":role:" + id }
func (s *Store) passwordKey(acct string) string { return s.prefix + ":pw:" + acct }
func (s *Store) codeKey(acct string, p credential.Purpose) string {
	return s.prefix + ":code:" + acct + ":" + string(p)
}

func backend(err error) error {
	return fmt.Errorf("%w: %v", ErrBackend, err)
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return credential.ErrNotFound
		}
		return backend(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redisstore: decode %s: %w", key, err)
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (credential.Account, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return credential.Account{}, credential.ErrNotFound
		}
		return credential.Account{}, backend(err)
	}
	return s.AccountByID(ctx, id)
}

func (s *Store) AccountByID(ctx context.Context, id string) (credential.Account, error) {
	var a credential.Account
	if err := s.getJSON(ctx, s.accountKey(id), &a); err != nil {
		return credential.Account{}, err
	}
	return a, nil
}

func (s *Store) Role(ctx context.Context, id string) (credential.Role, error) {
	var r credential.Role
	if err := s.getJSON(ctx, s.roleKey(id), &r); err != nil {
		return credential.Role{}, err
	}
	return r, nil
}

func (s *Store) PutRole(ctx context.Context, role credential.Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.roleKey(role.ID), data, 0).Err(); err != nil {
		return backend(err)
	}
	return nil
}

func (s *Store) CreateAccount(ctx context.Context, account credential.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return err
	}
	acctKey, emailKey := s.accountKey(account.ID), s.emailKey(account.Email)

	return s.retry(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, acctKey, emailKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return abort{credential.ErrDuplicate}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, acctKey, data, 0)
			pipe.Set(ctx, emailKey, account.ID, 0)
			return nil
		})
		return err
	}, acctKey, emailKey)
}

// abort carries an error that must end the transaction without a retry and
// reach the caller unwrapped.
type abort struct{ err error }

func (a abort) Error() string { return a.err.Error() }
func (a abort) Unwrap() error { return a.err }

// retry runs fn under WATCH on keys until it commits, aborts, or the retry
// budget is spent.
func (s *Store) retry(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < s.maxRetries; i++ {
		err := s.redis.Watch(ctx, fn, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var a abort
		if errors.As(err, &a) {
			return a.err
		}
		return backend(err)
	}
	return credential.ErrConflict
}
