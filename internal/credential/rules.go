package credential

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule checks a single password property.
type Rule interface {
	Check(password string) error
}

// RuleFunc adapts a function into a Rule.
type RuleFunc func(password string) error

// Check implements Rule.
func (f RuleFunc) Check(password string) error {
	return f(password)
}

// Rules is an ordered set of strength rules.
type Rules []Rule

// DefaultRules is the registration policy.
func DefaultRules() Rules {
	return Rules{
		MinLength(8),
		MaxBytes(72),
		RequireUpper(),
		RequireLower(),
		RequireDigit(),
		RequireSymbol(),
	}
}

// With returns a copy of rs extended with more rules.
func (rs Rules) With(more ...Rule) Rules {
	out := make(Rules, 0, len(rs)+len(more))
	out = append(out, rs...)
	return append(out, more...)
}

// Validate runs every rule and reports all violations at once.
func (rs Rules) Validate(password string) error {
	var errs []error
	for _, r := range rs {
		if err := r.Check(password); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrWeakPassword, errors.Join(errs...))
}

// Violations flattens a Validate error into messages for display.
func Violations(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		if e == ErrWeakPassword {
			continue
		}
		if inner, ok := e.(interface{ Unwrap() []error }); ok {
			for _, ie := range inner.Unwrap() {
				out = append(out, ie.Error())
			}
			continue
		}
		out = append(out, e.Error())
	}
	return out
}

// MinLength requires at least n characters.
func MinLength(n int) Rule {
	return RuleFunc(func(pw string) error {
		if utf8.RuneCountInString(pw) < n {
			return fmt.Errorf("must be at least %d characters", n)
		}
		return nil
	})
}

// MaxBytes caps the encoded length; bcrypt ignores input past 72 bytes.
func MaxBytes(n int) Rule {
	return RuleFunc(func(pw string) error {
		if len(normalize(pw)) > n {
			return fmt.Errorf("must be at most %d bytes", n)
		}
		return nil
	})
}

// RequireUpper requires an upper-case letter.
func RequireUpper() Rule {
	return requireClass(unicode.IsUpper, "must contain an upper-case letter")
}

// RequireLower requires a lower-case letter.
func RequireLower() Rule {
	return requireClass(unicode.IsLower, "must contain a lower-case letter")
}

// RequireDigit requires a digit.
func RequireDigit() Rule {
	return requireClass(unicode.IsDigit, "must contain a digit")
}

// RequireSymbol requires a punctuation or symbol character.
func RequireSymbol() Rule {
	return requireClass(func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}, "must contain a symbol")
}

// NotContaining rejects passwords containing any of the given values,
// compared case-insensitively. Values shorter than three characters are ignored.
func NotContaining(values ...string) Rule {
	return RuleFunc(func(pw string) error {
		lower := strings.ToLower(pw)
		for _, v := range values {
			v = strings.ToLower(strings.TrimSpace(v))
			if len(v) < 3 {
				continue
			}
			if strings.Contains(lower, v) {
				return errors.New("must not contain personal information")
			}
		}
		return nil
	})
}

func requireClass(match func(rune) bool, msg string) Rule {
	return RuleFunc(func(pw string) error {
		if strings.IndexFunc(pw, match) < 0 {
			return errors.New(msg)
		}
		return nil
	})
}
