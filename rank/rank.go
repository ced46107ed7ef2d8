// Package rank generates lexicographic ordering keys over the lowercase
// alphabet. Keys are strings that sort in plain byte order, so inserting an
// item between two neighbors only needs a new key strictly between the
// neighbors' keys; nothing else gets renumbered.
//
// Generated keys never end in 'a', which keeps every generated key usable as
// a bound for further insertions.
package rank

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minChar = 'a'
	maxChar = 'z'
	midChar = 'n' // midpoint of the 26-letter alphabet, digit 13
)

// Validation errors returned by Validate and BetweenChecked.
var (
	ErrInvalidCharacter = errors.New("rank: character outside a-z")
	ErrInvalidOrder     = errors.New("rank: low must sort before high")
)

// First returns an initial key suitable for the first item in a list.
func First() string {
	return string(midChar)
}

// After returns a key that sorts after s.
func After(s string) string {
	return s + string(midChar)
}

// Before returns a key that sorts before s. s must be non-empty and must
// not consist solely of 'a's (such keys are never generated by this
// package).
func Before(s string) string {
	return Between("", s)
}

// Mid returns a key between a and b, treating the empty string as an open
// bound: if a is empty the key sorts before b, if b is empty it sorts
// after a, and if both are empty it returns First().
func Mid(a, b string) string {
	switch {
	case a == "" && b == "":
		return First()
	case a == "":
		return Before(b)
	case b == "":
		return After(a)
	}
	return Between(a, b)
}

// Between returns a string that sorts strictly between low and high, using
// as few characters as the termination rule allows.
//
// Both inputs must contain only a-z and low must sort before high; high
// must also not be low followed only by 'a's, since the only strings in
// such a gap end in 'a' and are never produced here. Between performs no
// validation and its result is unspecified when the precondition is
// violated (use BetweenChecked at trust boundaries). The sole exception is
// low == high == "", which yields "n".
//
// The scan walks both strings position by position. An exhausted string
// continues implicitly with 'a' (digit 0), which preserves its value. At
// each position the digit gap decides: a gap of 0 or 1 copies the lower
// character and defers to the next position; a gap of 2 or more ends the
// key with the ceiling midpoint of the two digits, which already sorts
// strictly between any continuations of the inputs. When both strings run
// out together the key ends with 'n'.
func Between(low, high string) string {
	buf := make([]byte, 0, len(high)+1)
	for i := 0; ; i++ {
		if i >= len(low) && i >= len(high) {
			return string(append(buf, midChar))
		}

		var lval, rval int
		if i < len(low) {
			lval = int(low[i] - minChar)
		}
		if i < len(high) {
			rval = int(high[i] - minChar)
		}

		if gap := rval - lval; gap >= 2 {
			// Ceiling midpoint: strictly above lval, strictly below rval.
			return string(append(buf, minChar+byte((lval+rval+1)/2)))
		}
		// Gap 0 or 1: no digit fits here, copy the lower character and
		// decide at a later position.
		buf = append(buf, minChar+byte(lval))
	}
}

// Validate reports whether low and high form a valid input pair for
// BetweenChecked: both alphabet-only, low sorting strictly before high (or
// both empty), and at least one producible key fitting between them.
func Validate(low, high string) error {
	if err := checkAlphabet("low", low); err != nil {
		return err
	}
	if err := checkAlphabet("high", high); err != nil {
		return err
	}
	if low == "" && high == "" {
		return nil
	}
	if low >= high {
		return fmt.Errorf("%w: %q >= %q", ErrInvalidOrder, low, high)
	}
	if noRoomBelow(low, high) {
		return fmt.Errorf("%w: no key sorts between %q and %q", ErrInvalidOrder, low, high)
	}
	return nil
}

// noRoomBelow reports whether high is low followed only by 'a's. Every
// string strictly between such a pair ends in 'a', which generated keys
// never do, so the pair has no usable midpoint.
func noRoomBelow(low, high string) bool {
	if len(high) <= len(low) || !strings.HasPrefix(high, low) {
		return false
	}
	return strings.TrimRight(high[len(low):], string(minChar)) == ""
}

// BetweenChecked is Between with input validation, for callers handling
// untrusted keys.
func BetweenChecked(low, high string) (string, error) {
	if err := Validate(low, high); err != nil {
		return "", err
	}
	return Between(low, high), nil
}

// MidChecked is Mid with input validation under open-bound semantics: both
// bounds alphabet-only, and when high is set there must be room for a key
// below it (and above low, when low is set too).
func MidChecked(a, b string) (string, error) {
	if err := checkAlphabet("low", a); err != nil {
		return "", err
	}
	if err := checkAlphabet("high", b); err != nil {
		return "", err
	}
	if b != "" {
		if a >= b {
			return "", fmt.Errorf("%w: %q >= %q", ErrInvalidOrder, a, b)
		}
		if noRoomBelow(a, b) {
			return "", fmt.Errorf("%w: no key sorts between %q and %q", ErrInvalidOrder, a, b)
		}
	}
	return Mid(a, b), nil
}

// Spaced returns n strictly increasing keys spread evenly across the whole
// key space, each as short as the count allows. It is used to reissue
// compact keys for an existing list in one pass. Spaced(0) returns nil.
func Spaced(n int) []string {
	if n <= 0 {
		return nil
	}

	// Smallest width w such that base-26 fractions of w digits leave a
	// strictly positive step between n+1 subdivisions.
	w := 1
	span := 26
	for span < n+2 {
		w++
		span *= 26
	}

	keys := make([]string, n)
	for i := 0; i < n; i++ {
		v := (i + 1) * span / (n + 1)
		digits := make([]byte, w)
		for j := w - 1; j >= 0; j-- {
			digits[j] = minChar + byte(v%26)
			v /= 26
		}
		// Trailing 'a' digits carry no value; trim them so every key stays
		// usable as an insertion bound.
		keys[i] = strings.TrimRight(string(digits), string(minChar))
	}
	return keys
}

// IsKey reports whether s is alphabet-only (the empty string counts: it is
// the open bound).
func IsKey(s string) bool {
	return checkAlphabet("", s) == nil
}

func checkAlphabet(name, s string) error {
	if i := strings.IndexFunc(s, func(r rune) bool {
		return r < minChar || r > maxChar
	}); i >= 0 {
		return fmt.Errorf("%w: %s[%d] in %q", ErrInvalidCharacter, name, i, s)
	}
	return nil
}
