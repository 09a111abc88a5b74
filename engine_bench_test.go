package passgate

import (
	"context"
	"testing"
)

func BenchmarkValidateAccessToken(b *testing.B) {
	te := newTestEngine(b, func(c *Config) { c.TwoFactor.Bypass = true })
	ctx := context.Background()

	res, err := te.Login(ctx, testEmail, testPassword)
	if err != nil {
		b.Fatalf("login: %v", err)
	}
	access, err := te.FinalizeLogin(ctx, testEmail, res.DebugCode, "", "")
	if err != nil {
		b.Fatalf("finalize: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.ValidateAccessToken(access.AccessToken); err != nil {
			b.Fatalf("validate: %v", err)
		}
	}
}

func BenchmarkLoginFinalize(b *testing.B) {
	te := newTestEngine(b, func(c *Config) { c.TwoFactor.Bypass = true })
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := te.Login(ctx, testEmail, testPassword)
		if err != nil {
			b.Fatalf("login: %v", err)
		}
		if _, err := te.FinalizeLogin(ctx, testEmail, res.DebugCode, "", ""); err != nil {
			b.Fatalf("finalize: %v", err)
		}
	}
}
