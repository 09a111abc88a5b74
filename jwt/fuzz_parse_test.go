package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

// FuzzVerify feeds arbitrary strings to the parser. Invalid inputs must be
// rejected with an error and never panic.
func FuzzVerify(f *testing.F) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		f.Fatal(err)
	}
	codec, err := NewCodec(Config{
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "fuzz-test",
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}

	valid, err := codec.Sign(Claims{Scope: ScopeSplit, Purpose: "login", CodePart: "654321"}, 300_000_000_000)
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzY29wZSI6ImFjY2VzcyJ9.")

	f.Fuzz(func(t *testing.T, token string) {
		claims, err := codec.Verify(token)
		if err == nil && claims == nil {
			t.Fatal("nil claims without error")
		}
	})
}
