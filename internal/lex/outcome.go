package lex

import (
	"fmt"
	"strings"
)

// Diagnostic describes a malformed input line. Offset is the byte offset of
// the offending token inside Source.
type Diagnostic struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line"`
	Offset int    `json:"offset"`
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// At builds a diagnostic for line at byte offset off. File and Line are
// filled in by the reader that owns the line.
func At(line []byte, off int, format string, args ...interface{}) Diagnostic {
	if off < 0 {
		off = 0
	}
	if off > len(line) {
		off = len(line)
	}
	return Diagnostic{
		Offset: off,
		Source: string(line),
		Reason: fmt.Sprintf(format, args...),
	}
}

func (d Diagnostic) Error() string {
	if d.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Offset, d.Reason)
	}
	return fmt.Sprintf("line %d:%d: %s", d.Line, d.Offset, d.Reason)
}

// Render formats the diagnostic with the source line and a caret under the
// offending byte.
func (d Diagnostic) Render() string {
	var b strings.Builder
	b.WriteString(d.Error())
	b.WriteString("\n    ")
	src := strings.ReplaceAll(d.Source, "\t", " ")
	b.WriteString(src)
	b.WriteString("\n    ")
	off := d.Offset
	if off > len(src) {
		off = len(src)
	}
	b.WriteString(strings.Repeat(" ", off))
	b.WriteString("^")
	return b.String()
}

// Kind tags the result of parsing one line.
type Kind uint8

const (
	// Skipped lines are not records of the grammar (blank, boilerplate,
	// interleaved free text) and are dropped silently.
	Skipped Kind = iota
	Parsed
	// Malformed lines looked like records but failed to parse.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case Malformed:
		return "malformed"
	default:
		return "skipped"
	}
}

// Outcome is the per-line result shared by every grammar. Value is only set
// for Parsed, Diag only for Malformed, so a bad line never leaks a partial
// value.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Diag  Diagnostic
}

func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: Parsed, Value: v}
}

func Skip[T any]() Outcome[T] {
	return Outcome[T]{Kind: Skipped}
}

func Fail[T any](d Diagnostic) Outcome[T] {
	return Outcome[T]{Kind: Malformed, Diag: d}
}
