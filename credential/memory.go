package credential

import (
	"context"
	"sync"
)

type codeKey struct {
	accountID string
	purpose   Purpose
}

// MemoryStore is an in-process Store.
//
// Mutations are serialized by one mutex per row set, held across the mutator
// callback: an account's password rows share one, and each (account, purpose)
// code list has its own. Rows are kept in insertion order; the last element
// is the newest.
type MemoryStore struct {
	locks sync.Map // rowLock -> *sync.Mutex

	mu        sync.RWMutex
	accounts  map[string]Account
	emails    map[string]string
	roles     map[string]Role
	passwords map[string][]PasswordCredential
	codes     map[codeKey][]VerificationCode
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]Account),
		emails:    make(map[string]string),
		roles:     make(map[string]Role),
		passwords: make(map[string][]PasswordCredential),
		codes:     make(map[codeKey][]VerificationCode),
	}
}

// rowLock names a row set; an empty purpose means the password rows.
type rowLock struct {
	accountID string
	purpose   Purpose
}

func (s *MemoryStore) lock(key rowLock) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *MemoryStore) AccountByEmail(_ context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return Account{}, ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *MemoryStore) AccountByID(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) Role(_ context.Context, id string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.emails[account.Email]; ok {
		return ErrDuplicate
	}
	s.accounts[account.ID] = account
	s.emails[account.Email] = account.ID
	return nil
}

func (s *MemoryStore) PutRole(_ context.Context, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
	return nil
}

// SetAccountActive flips the active flag of an existing account.
func (s *MemoryStore) SetAccountActive(accountID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	a.Active = active
	s.accounts[accountID] = a
	return nil
}

func currentIndex(rows []PasswordCredential) int {
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Current() {
			return i
		}
	}
	return -1
}

func (s *MemoryStore) MutateCurrentPassword(_ context.Context, accountID string, fn PasswordMutator) error {
	unlock := s.lock(rowLock{accountID: accountID})
	defer unlock()

	s.mu.RLock()
	rows := s.passwords[accountID]
	idx := currentIndex(rows)
	var current PasswordCredential
	if idx >= 0 {
		current = rows[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		return ErrNotFound
	}

	patch, err := fn(current)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	patch.Apply(&s.passwords[accountID][idx])
	return nil
}

func (s *MemoryStore) PasswordHistory(_ context.Context, accountID string, limit int) ([]PasswordCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.passwords[accountID]
	out := make([]PasswordCredential, 0, len(rows))
	for i := len(rows) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if !rows[i].Temporary {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

func (s *MemoryStore) RotatePassword(_ context.Context, accountID string, next PasswordCredential, keep int) error {
	unlock := s.lock(rowLock{accountID: accountID})
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.passwords[accountID]
	for i := range rows {
		if rows[i].Current() {
			rows[i].Status = PasswordBlocked
		}
	}
	rows = append(rows, next)

	// Walk newest to oldest keeping the first keep permanent rows.
	permanent := 0
	kept := make([]PasswordCredential, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].Temporary {
			permanent++
			if keep > 0 && permanent > keep {
				continue
			}
		}
		kept = append(kept, rows[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	s.passwords[accountID] = kept
	return nil
}

func (s *MemoryStore) CreateCode(_ context.Context, code VerificationCode, keep int) error {
	unlock := s.lock(rowLock{accountID: code.AccountID, purpose: code.Purpose})
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	k := codeKey{accountID: code.AccountID, purpose: code.Purpose}
	rows := s.codes[k]
	if keep > 0 && len(rows) > keep-1 {
		rows = append([]VerificationCode(nil), rows[len(rows)-(keep-1):]...)
	}
	s.codes[k] = append(rows, code)
	return nil
}

func (s *MemoryStore) MutateLatestPendingCode(_ context.Context, accountID string, purpose Purpose, fn CodeMutator) error {
	unlock := s.lock(rowLock{accountID: accountID, purpose: purpose})
	defer unlock()

	k := codeKey{accountID: accountID, purpose: purpose}

	s.mu.RLock()
	rows := s.codes[k]
	idx := -1
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Status == CodePending {
			idx = i
			break
		}
	}
	var code VerificationCode
	if idx >= 0 {
		code = rows[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		return ErrNotFound
	}

	patch, err := fn(code)
	if err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	patch.Apply(&s.codes[k][idx])
	return nil
}

func (s *MemoryStore) Codes(_ context.Context, accountID string, purpose Purpose) ([]VerificationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.codes[codeKey{accountID: accountID, purpose: purpose}]
	out := make([]VerificationCode, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		out = append(out, rows[i])
	}
	return out, nil
}
