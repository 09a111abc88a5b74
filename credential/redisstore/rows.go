package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrEthical07/passgate/credential"
	"github.com/redis/go-redis/v9"
)

// getter is satisfied by both the client and a watched *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadPasswords(ctx context.Context, c getter, key string) ([]credential.PasswordCredential, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec passwordRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode password record: %w", err)
	}
	if rec.Version != recordVersion1 {
		return nil, errors.New("invalid password record version")
	}
	return rec.Rows, nil
}

func encodePasswords(rows []credential.PasswordCredential) ([]byte, error) {
	return json.Marshal(passwordRecord{Version: recordVersion1, Rows: rows})
}

func loadCodes(ctx context.Context, c getter, key string) ([]credential.VerificationCode, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec codeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode code record: %w", err)
	}
	if rec.Version != recordVersion1 {
		return nil, errors.New("invalid code record version")
	}
	return rec.Rows, nil
}

func encodeCodes(rows []credential.VerificationCode) ([]byte, error) {
	return json.Marshal(codeRecord{Version: recordVersion1, Rows: rows})
}

func (s *Store) MutateCurrentPassword(ctx context.Context, accountID string, fn credential.PasswordMutator) error {
	key := s.passwordKey(accountID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		rows, err := loadPasswords(ctx, tx, key)
		if err != nil {
			return err
		}
		idx := -1
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].Current() {
				idx = i
				break
			}
		}
		if idx < 0 {
			return abort{credential.ErrNotFound}
		}

		patch, err := fn(rows[idx])
		if err != nil {
			return abort{err}
		}
		if patch.Empty() {
			return nil
		}
		patch.Apply(&rows[idx])

		encoded, err := encodePasswords(rows)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)
}

func (s *Store) PasswordHistory(ctx context.Context, accountID string, limit int) ([]credential.PasswordCredential, error) {
	rows, err := loadPasswords(ctx, s.redis, s.passwordKey(accountID))
	if err != nil {
		return nil, backend(err)
	}
	out := make([]credential.PasswordCredential, 0, len(rows))
	for i := len(rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if !rows[i].Temporary {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

func (s *Store) RotatePassword(ctx context.Context, accountID string, next credential.PasswordCredential, keep int) error {
	key := s.passwordKey(accountID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		rows, err := loadPasswords(ctx, tx, key)
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].Current() {
				rows[i].Status = credential.PasswordBlocked
			}
		}
		rows = append(rows, next)

		// Count permanent rows from the newest end and drop the overflow.
		permanent := 0
		kept := make([]credential.PasswordCredential, 0, len(rows))
		for i := len(rows) - 1; i >= 0; i-- {
			if !rows[i].Temporary {
				permanent++
				if keep > 0 && permanent > keep {
					continue
				}
			}
			kept = append([]credential.PasswordCredential{rows[i]}, kept...)
		}

		encoded, err := encodePasswords(kept)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)
}

func (s *Store) CreateCode(ctx context.Context, code credential.VerificationCode, keep int) error {
	key := s.codeKey(code.AccountID, code.Purpose)
	return s.retry(ctx, func(tx *redis.Tx) error {
		rows, err := loadCodes(ctx, tx, key)
		if err != nil {
			return err
		}
		if keep > 0 && len(rows) > keep-1 {
			rows = rows[len(rows)-(keep-1):]
		}
		rows = append(rows, code)

		encoded, err := encodeCodes(rows)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)
}

func (s *Store) MutateLatestPendingCode(ctx context.Context, accountID string, purpose credential.Purpose, fn credential.CodeMutator) error {
	key := s.codeKey(accountID, purpose)
	return s.retry(ctx, func(tx *redis.Tx) error {
		rows, err := loadCodes(ctx, tx, key)
		if err != nil {
			return err
		}
		idx := -1
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i].Status == credential.CodePending {
				idx = i
				break
			}
		}
		if idx < 0 {
			return abort{credential.ErrNotFound}
		}

		patch, err := fn(rows[idx])
		if err != nil {
			return abort{err}
		}
		if patch.Empty() {
			return nil
		}
		patch.Apply(&rows[idx])

		encoded, err := encodeCodes(rows)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		return err
	}, key)
}

func (s *Store) Codes(ctx context.Context, accountID string, purpose credential.Purpose) ([]credential.VerificationCode, error) {
	rows, err := loadCodes(ctx, s.redis, s.codeKey(accountID, purpose))
	if err != nil {
		return nil, backend(err)
	}
	out := make([]credential.VerificationCode, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}
