package password

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySecret     = errors.New("password: empty secret")
	ErrMalformedHash   = errors.New("password: malformed hash")
	ErrUnsupportedHash = errors.New("password: unsupported hash format")
)

// Hasher produces and checks one hash format.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
	// Handles reports whether encoded is in this hasher's format.
	Handles(encoded string) bool
}

// Algorithm names a supported hash format.
type Algorithm string

const (
	AlgorithmArgon2id Algorithm = "argon2id"
	AlgorithmBcrypt   Algorithm = "bcrypt"
)

// Multi hashes with a primary Hasher and verifies against whichever
// registered Hasher recognizes the stored format, so rows written under an
// older algorithm keep working.
type Multi struct {
	primary Hasher
	all     []Hasher
}

var _ Hasher = (*Multi)(nil)

// NewMulti returns a verifier that hashes with primary and also accepts the
// formats of legacy.
func NewMulti(primary Hasher, legacy ...Hasher) *Multi {
	return &Multi{primary: primary, all: append([]Hasher{primary}, legacy...)}
}

// Options selects and tunes the hashers built by New.
type Options struct {
	Algorithm  Algorithm
	Argon2     Argon2Params
	BcryptCost int
}

// New builds a Multi whose primary hasher is opts.Algorithm and which accepts
// both argon2id and bcrypt hashes.
func New(opts Options) (*Multi, error) {
	a, err := NewArgon2(opts.Argon2)
	if err != nil {
		return nil, err
	}
	b, err := NewBcrypt(opts.BcryptCost)
	if err != nil {
		return nil, err
	}
	switch opts.Algorithm {
	case AlgorithmArgon2id, "":
		return NewMulti(a, b), nil
	case AlgorithmBcrypt:
		return NewMulti(b, a), nil
	default:
		return nil, fmt.Errorf("password: unknown algorithm %q", opts.Algorithm)
	}
}

func (m *Multi) Hash(secret string) (string, error) {
	return m.primary.Hash(secret)
}

func (m *Multi) Verify(secret, encoded string) (bool, error) {
	for _, h := range m.all {
		if h.Handles(encoded) {
			return h.Verify(secret, encoded)
		}
	}
	return false, ErrUnsupportedHash
}

func (m *Multi) Handles(encoded string) bool {
	for _, h := range m.all {
		if h.Handles(encoded) {
			return true
		}
	}
	return false
}

// NeedsRehash reports whether encoded is not in the primary format, or is
// in the primary format with weaker parameters.
func (m *Multi) NeedsRehash(encoded string) bool {
	if !m.primary.Handles(encoded) {
		return true
	}
	if r, ok := m.primary.(interface{ NeedsRehash(string) bool }); ok {
		return r.NeedsRehash(encoded)
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
