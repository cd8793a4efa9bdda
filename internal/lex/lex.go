// Package lex holds the byte-oriented tokenizers shared by the header, log
// and comment grammars.
package lex

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrNotHex     = errors.New("not a hexadecimal literal")
	ErrNotFloat   = errors.New("not a floating point literal")
	ErrNotDecimal = errors.New("not a decimal literal")
)

// IsSpace reports whether c is a blank inside a line (space or tab).
func IsSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// IsWhitespace reports whether c is any ASCII whitespace, line endings included.
func IsWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\v', '\f':
		return true
	}
	return false
}

func IsHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func IsDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// TrimEOL strips trailing CR/LF bytes.
func TrimEOL(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// SkipSpaces returns the index of the first non-whitespace byte at or after i.
func SkipSpaces(b []byte, i int) int {
	for i < len(b) && IsWhitespace(b[i]) {
		i++
	}
	return i
}

// Field is a whitespace-delimited token together with its byte offset in the
// line it was cut from.
type Field struct {
	Text   []byte
	Offset int
}

// Fields splits line on runs of whitespace. Consecutive delimiters never
// produce empty fields.
func Fields(line []byte) []Field {
	var out []Field
	i := 0
	for {
		i = SkipSpaces(line, i)
		if i >= len(line) {
			return out
		}
		start := i
		for i < len(line) && !IsWhitespace(line[i]) {
			i++
		}
		out = append(out, Field{Text: line[start:i], Offset: start})
	}
}

// HexDigits returns the length of the run of hex digits at the start of b.
func HexDigits(b []byte) int {
	n := 0
	for n < len(b) && IsHexDigit(b[n]) {
		n++
	}
	return n
}

// HasHexPrefix reports whether b starts with 0x or 0X.
func HasHexPrefix(b []byte) bool {
	return len(b) >= 2 && b[0] == '0' && (b[1] == 'x' || b[1] == 'X')
}

// ParseHex parses b, which must consist of 1 to 8 hex digits only.
func ParseHex(b []byte) (uint32, error) {
	if len(b) == 0 || HexDigits(b) != len(b) {
		return 0, fmt.Errorf("%w: %q", ErrNotHex, b)
	}
	v, err := strconv.ParseUint(string(b), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrNotHex, b)
	}
	return uint32(v), nil
}

// ParsePrefixedHex parses a 0x/0X prefixed hex literal.
func ParsePrefixedHex(b []byte) (uint32, error) {
	if !HasHexPrefix(b) {
		return 0, fmt.Errorf("%w: %q lacks 0x prefix", ErrNotHex, b)
	}
	return ParseHex(b[2:])
}

// ParseFloat parses a float32, accepting a comma as decimal separator
// ("0,449" == "0.449") as written by German-locale loggers.
func ParseFloat(b []byte) (float32, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrNotFloat)
	}
	norm := make([]byte, len(b))
	for i, c := range b {
		if c == ',' {
			c = '.'
		}
		norm[i] = c
	}
	v, err := strconv.ParseFloat(string(norm), 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotFloat, b)
	}
	return float32(v), nil
}

// FloatPrefix parses the longest floating point literal at the start of b:
// optional sign, digits with an optional fraction, and an exponent only when
// digits follow the e/E. It returns the value and the number of bytes used.
func FloatPrefix(b []byte) (float32, int, bool) {
	i := 0
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		i++
	}
	digits := 0
	for i < len(b) && IsDigit(b[i]) {
		i++
		digits++
	}
	if i < len(b) && b[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(b) && IsDigit(b[j]) {
			j++
			frac++
		}
		if digits+frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return 0, 0, false
	}
	if i < len(b) && (b[i] == 'e' || b[i] == 'E') {
		j := i + 1
		if j < len(b) && (b[j] == '+' || b[j] == '-') {
			j++
		}
		k := j
		for k < len(b) && IsDigit(b[k]) {
			k++
		}
		if k > j {
			i = k
		}
	}
	v, err := strconv.ParseFloat(string(b[:i]), 32)
	if err != nil {
		return 0, 0, false
	}
	return float32(v), i, true
}

// ParseDecimal parses an unsigned decimal integer made of digits only.
func ParseDecimal(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, fmt.Errorf("%w: empty", ErrNotDecimal)
	}
	for _, c := range b {
		if !IsDigit(c) {
			return 0, fmt.Errorf("%w: %q", ErrNotDecimal, b)
		}
	}
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrNotDecimal, b)
	}
	return v, nil
}
