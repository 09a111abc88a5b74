package internal

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewOTPLengthAndAlphabet(t *testing.T) {
	for digits := MinOTPDigits; digits <= MaxOTPDigits; digits++ {
		otp, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) error: %v", digits, err)
		}
		if len(otp) != digits {
			t.Fatalf("expected %d digits, got %q", digits, otp)
		}
		for _, r := range otp {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in otp %q", otp)
			}
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected NewOTP(%d) to fail", digits)
		}
	}
}

func TestNewOTPVaries(t *testing.T) {
	seen := make(map[string]struct{}, 32)
	for i := 0; i < 32; i++ {
		otp, err := NewOTP(10)
		if err != nil {
			t.Fatalf("NewOTP error: %v", err)
		}
		seen[otp] = struct{}{}
	}
	if len(seen) < 30 {
		t.Fatalf("expected mostly distinct codes, got %d distinct of 32", len(seen))
	}
}

func TestNewIDIsUUID(t *testing.T) {
	if _, err := uuid.Parse(NewID()); err != nil {
		t.Fatalf("NewID is not a uuid: %v", err)
	}
}
