package security

import (
	"errors"
	"unicode"
	"unicode/utf8"
)

// ErrPasswordPolicy is returned when a password fails the complexity policy.
var ErrPasswordPolicy = errors.New("password must be 8-20 characters and include upper, lower, digit and special characters")

const (
	minPasswordRunes = 8
	maxPasswordRunes = 20
)

// ValidatePasswordPolicy requires 8-20 runes with at least one upper, one
// lower, one digit and one punctuation or symbol rune.
func ValidatePasswordPolicy(password string) error {
	if n := utf8.RuneCountInString(password); n < minPasswordRunes || n > maxPasswordRunes {
		return ErrPasswordPolicy
	}
	const (
		upper = 1 << iota
		lower
		digit
		special
		all = upper | lower | digit | special
	)
	var seen int
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			seen |= upper
		case unicode.IsLower(r):
			seen |= lower
		case unicode.IsDigit(r):
			seen |= digit
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			seen |= special
		}
	}
	if seen != all {
		return ErrPasswordPolicy
	}
	return nil
}
