package password

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultSymbols are the punctuation characters that satisfy the symbol class.
const DefaultSymbols = `!@#$%^&*()_-+=[]{};':"\|,.<>/?`

// Policy describes the composition rules for a new password.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireLower  bool
	RequireUpper  bool
	RequireDigit  bool
	RequireSymbol bool
	Symbols       string
}

// DefaultPolicy requires 8 to 64 characters with every character class.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     64,
		RequireLower:  true,
		RequireUpper:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		Symbols:       DefaultSymbols,
	}
}

// Check returns every rule candidate breaks, in a stable order. An empty
// result means the candidate is acceptable.
func (p Policy) Check(candidate string) []string {
	var violations []string

	n := utf8.RuneCountInString(candidate)
	if p.MinLength > 0 && n < p.MinLength {
		violations = append(violations, "must be at least "+strconv.Itoa(p.MinLength)+" characters")
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		violations = append(violations, "must be at most "+strconv.Itoa(p.MaxLength)+" characters")
	}

	symbols := p.Symbols
	if symbols == "" {
		symbols = DefaultSymbols
	}
	var lower, upper, digit, symbol bool
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(symbols, r):
			symbol = true
		}
	}

	if p.RequireLower && !lower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "must contain a digit")
	}
	if p.RequireSymbol && !symbol {
		violations = append(violations, "must contain a symbol")
	}
	return violations
}
