// Package orderkey generates dense, lexicographically sortable sibling keys.
//
// A key is a non-empty string of base-62 digits (0-9, A-Z, a-z in ASCII order)
// that never ends in '0'. Plain byte comparison orders keys, and there is
// always room for another key between any two distinct keys, so inserting a
// sibling never forces its neighbours to be rewritten. Keys only grow when
// insertions keep landing in the same gap; [Space.Between] reports
// [ErrExhausted] once a key would exceed the configured length, and callers
// respace that sibling run with [Spread].
package orderkey

import (
	"errors"
	"fmt"
)

const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(digits)

// DefaultMaxLen bounds generated keys before a sibling run is respaced.
const DefaultMaxLen = 48

var (
	// ErrExhausted means the gap between two keys needs a key longer than MaxLen.
	ErrExhausted = errors.New("order key space exhausted")

	// ErrInvalidKey reports a key with foreign characters, a trailing '0', or no digits.
	ErrInvalidKey = errors.New("invalid order key")

	// ErrOutOfOrder reports Between called with lower >= upper.
	ErrOutOfOrder = errors.New("order keys out of order")
)

// Space generates keys up to MaxLen characters long.
// The zero value uses [DefaultMaxLen].
type Space struct {
	MaxLen int
}

// Initial is the key given to the first block in an empty sibling list.
func Initial() string {
	return midpoint("", "")
}

// Between returns a key strictly between lower and upper.
// An empty lower means "before everything", an empty upper "after everything".
func (s Space) Between(lower, upper string) (string, error) {
	if lower != "" {
		if err := Validate(lower); err != nil {
			return "", err
		}
	}

	if upper != "" {
		if err := Validate(upper); err != nil {
			return "", err
		}
	}

	if lower != "" && upper != "" && lower >= upper {
		return "", fmt.Errorf("%w: %q >= %q", ErrOutOfOrder, lower, upper)
	}

	key := midpoint(lower, upper)
	if len(key) > s.maxLen() {
		return "", fmt.Errorf("%w: between %q and %q", ErrExhausted, lower, upper)
	}

	return key, nil
}

func (s Space) maxLen() int {
	if s.MaxLen <= 0 {
		return DefaultMaxLen
	}

	return s.MaxLen
}

// Spread returns n ascending keys spaced evenly across the key space using the
// shortest width that fits them. It is used to respace a crowded sibling run.
func Spread(n int) []string {
	if n <= 0 {
		return nil
	}

	width := 1
	span := uint64(base)

	for span < uint64(n)+1 {
		width++
		span *= uint64(base)
	}

	step := span / (uint64(n) + 1)
	keys := make([]string, n)

	for i := range keys {
		keys[i] = encode((uint64(i)+1)*step, width)
	}

	return keys
}

// Validate reports whether key is a well-formed order key.
func Validate(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}

	for i := 0; i < len(key); i++ {
		if digitValue(key[i]) < 0 {
			return fmt.Errorf("%w: %q has invalid character %q", ErrInvalidKey, key, key[i])
		}
	}

	if key[len(key)-1] == '0' {
		return fmt.Errorf("%w: %q ends in '0'", ErrInvalidKey, key)
	}

	return nil
}

// midpoint assumes lower < upper (upper == "" is +infinity) and that neither
// ends in '0'. A missing digit in lower reads as '0'.
func midpoint(lower, upper string) string {
	if upper != "" {
		n := 0
		for n < len(upper) && digitAt(lower, n) == upper[n] {
			n++
		}

		if n > 0 {
			return upper[:n] + midpoint(tail(lower, n), upper[n:])
		}
	}

	lo := 0
	if lower != "" {
		lo = digitValue(lower[0])
	}

	hi := base
	if upper != "" {
		hi = digitValue(upper[0])
	}

	if hi-lo > 1 {
		return string(digits[(lo+hi)/2])
	}

	// Adjacent digits. A longer upper leaves room right at its first digit.
	if len(upper) > 1 {
		return upper[:1]
	}

	return string(digits[lo]) + midpoint(tail(lower, 1), "")
}

func digitAt(key string, i int) byte {
	if i < len(key) {
		return key[i]
	}

	return '0'
}

func tail(key string, n int) string {
	if n >= len(key) {
		return ""
	}

	return key[n:]
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 36
	default:
		return -1
	}
}

// encode writes value as a fixed-width base-62 string and drops trailing
// zeros, which keeps equal-width keys in the same order.
func encode(value uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[value%uint64(base)]
		value /= uint64(base)
	}

	end := len(buf)
	for end > 1 && buf[end-1] == '0' {
		end--
	}

	return string(buf[:end])
}
