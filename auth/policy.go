package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"

	"github.com/Hussein-Mazeh/secretvault/internal/vaulterr"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

// Policy decides which master passphrases are acceptable. The zero value only
// rejects the empty passphrase.
type Policy struct {
	// MinScore is the lowest zxcvbn score (0-4) accepted.
	MinScore int `yaml:"min_score"`
	// WarnScore below which Evaluate adds a warning without rejecting.
	WarnScore int `yaml:"warn_score"`
	// RequireComplexity enforces the length and character-class rule.
	RequireComplexity bool `yaml:"require_complexity"`
	// CheckBreached queries the Pwned Passwords range API.
	CheckBreached bool `yaml:"check_breached"`

	// Breached overrides the breach lookup; nil uses DefaultHIBP.
	Breached func(ctx context.Context, pw string) (HIBPResult, error) `yaml:"-"`
}

// DefaultPolicy accepts any non-empty passphrase and warns on weak ones.
func DefaultPolicy() Policy {
	return Policy{WarnScore: 3}
}

// Verdict is the outcome of a passing evaluation.
type Verdict struct {
	Score    int
	Warnings []string
}

// Evaluate checks pw against the policy. A rejection is a WeakInput error;
// warnings are returned with a nil error.
func (p Policy) Evaluate(ctx context.Context, pw []byte) (Verdict, error) {
	var v Verdict
	if len(pw) == 0 {
		return v, weak(errors.New("passphrase is empty"))
	}
	s := string(pw)

	if p.RequireComplexity {
		if err := ValidateComplexity(s); err != nil {
			return v, weak(err)
		}
	}

	v.Score = zxcvbn.PasswordStrength(s, []string{"secretvault"}).Score
	if v.Score < p.MinScore {
		return v, weak(fmt.Errorf("passphrase strength %d/4 is below the required %d", v.Score, p.MinScore))
	}
	if v.Score < p.WarnScore {
		v.Warnings = append(v.Warnings, fmt.Sprintf("passphrase strength is %d/4; consider a longer one", v.Score))
	}

	if p.CheckBreached {
		lookup := p.Breached
		if lookup == nil {
			lookup = DefaultHIBP.Check
		}
		res, err := lookup(ctx, s)
		switch {
		case err != nil:
			v.Warnings = append(v.Warnings, "breach check unavailable: "+err.Error())
		case res.Found:
			return v, weak(fmt.Errorf("passphrase appears in %d known breaches", res.Count))
		}
	}
	return v, nil
}

func weak(err error) error {
	return vaulterr.E("check passphrase", vaulterr.ErrWeakInput, err)
}

// ValidateComplexity applies the classic rule: at least 12 characters with an
// uppercase letter, a digit and a special character.
func ValidateComplexity(pw string) error {
	if utf8.RuneCountInString(pw) < 12 {
		return errors.New("passphrase must be at least 12 characters long")
	}
	var upper, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(specialChars, r):
			special = true
		}
	}
	switch {
	case !upper:
		return errors.New("passphrase must include an uppercase letter")
	case !digit:
		return errors.New("passphrase must include a digit")
	case !special:
		return errors.New("passphrase must include a special character")
	}
	return nil
}
