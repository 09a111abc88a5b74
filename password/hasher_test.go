package password

import (
	"reflect"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestMultiVerifiesBothFormats(t *testing.T) {
	m, err := New(Options{Algorithm: AlgorithmArgon2id, Argon2: testParams(), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	legacy, err := bcrypt.GenerateFromPassword([]byte("Legacy#Pass1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt error: %v", err)
	}

	ok, err := m.Verify("Legacy#Pass1", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected bcrypt hash to verify: ok=%v err=%v", ok, err)
	}
	if !m.NeedsRehash(string(legacy)) {
		t.Fatal("expected bcrypt hash to need rehash under argon2id primary")
	}

	fresh, err := m.Hash("Fresh#Pass1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(fresh, "$argon2id$") {
		t.Fatalf("expected argon2id primary, got %s", fresh)
	}
	if m.NeedsRehash(fresh) {
		t.Fatal("expected fresh hash not to need rehash")
	}
}

func TestMultiBcryptPrimary(t *testing.T) {
	m, err := New(Options{Algorithm: AlgorithmBcrypt, Argon2: testParams(), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	h, err := m.Hash("Bcrypt#Pass1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(h, "$2a$") {
		t.Fatalf("expected bcrypt hash, got %s", h)
	}
	if ok, _ := m.Verify("Bcrypt#Pass2", h); ok {
		t.Fatal("expected mismatch")
	}
}

func TestMultiUnknownFormat(t *testing.T) {
	m, err := New(Options{Argon2: testParams(), BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := m.Verify("x", "plaintext"); err != ErrUnsupportedHash {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if m.Handles("plaintext") {
		t.Fatal("expected Handles to reject unknown format")
	}
}

func TestNewRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := New(Options{Algorithm: "md5", Argon2: testParams()}); err == nil {
		t.Fatal("expected unknown algorithm error")
	}
}

func TestBcryptCostBounds(t *testing.T) {
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected cost above max to fail")
	}
	b, err := NewBcrypt(0)
	if err != nil {
		t.Fatalf("NewBcrypt(0) error: %v", err)
	}
	if b.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", b.cost)
	}
}

func TestPolicyCollectsAllViolations(t *testing.T) {
	p := DefaultPolicy()

	got := p.Check("abc")
	want := []string{
		"must be at least 8 characters",
		"must contain an uppercase letter",
		"must contain a digit",
		"must contain a symbol",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected violations:\n got %q\nwant %q", got, want)
	}

	if v := p.Check("Str0ng!Pass"); len(v) != 0 {
		t.Fatalf("expected strong password to pass, got %q", v)
	}

	long := "Aa1!" + strings.Repeat("x", 61)
	if v := p.Check(long); len(v) != 1 || v[0] != "must be at most 64 characters" {
		t.Fatalf("expected only the length violation, got %q", v)
	}
}

func TestPolicySymbolSet(t *testing.T) {
	p := DefaultPolicy()
	for _, r := range DefaultSymbols {
		if v := p.Check("Abcdefg1" + string(r)); len(v) != 0 {
			t.Fatalf("symbol %q should satisfy the policy, got %q", r, v)
		}
	}
	if v := p.Check("Abcdefg1~"); len(v) != 1 {
		t.Fatalf("tilde is not in the symbol set, got %q", v)
	}
}
