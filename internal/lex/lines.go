package lex

import (
	"bufio"
	"errors"
	"io"
)

// MaxLineSize is the longest line handed to a grammar. Longer lines are
// reported and skipped.
const MaxLineSize = 1024 * 1024

// sourcePreview bounds the source text kept in a diagnostic for an
// over-long line.
const sourcePreview = 80

// LineReader reads newline terminated lines like bufio.Scanner, but an
// over-long line does not stop it: the line is cut at max bytes, TooLong
// reports it and reading resumes after its newline.
type LineReader struct {
	br      *bufio.Reader
	max     int
	buf     []byte
	line    []byte
	tooLong bool
	err     error
}

// NewLineReader reads from r. A max of zero or less means MaxLineSize.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = MaxLineSize
	}
	return &LineReader{br: bufio.NewReaderSize(r, 64*1024), max: max}
}

// Scan advances to the next line. It returns false at end of input or on a
// read error.
func (l *LineReader) Scan() bool {
	if l.err != nil {
		return false
	}
	l.buf = l.buf[:0]
	for {
		chunk, err := l.br.ReadSlice('\n')
		if len(l.buf) <= l.max {
			l.buf = append(l.buf, chunk...)
		}
		switch {
		case err == nil:
			return l.finish()
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			l.err = io.EOF
			if len(l.buf) == 0 {
				return false
			}
			return l.finish()
		default:
			l.err = err
			return false
		}
	}
}

func (l *LineReader) finish() bool {
	l.line = TrimEOL(l.buf)
	l.tooLong = len(l.line) > l.max
	if l.tooLong {
		l.line = l.line[:l.max]
	}
	return true
}

// Bytes returns the current line without its line ending. The slice is only
// valid until the next call to Scan.
func (l *LineReader) Bytes() []byte {
	return l.line
}

// TooLong reports whether the current line exceeded the limit and was cut.
func (l *LineReader) TooLong() bool {
	return l.tooLong
}

// Max is the line limit in bytes.
func (l *LineReader) Max() int {
	return l.max
}

// Err returns the first read error other than io.EOF.
func (l *LineReader) Err() error {
	if errors.Is(l.err, io.EOF) {
		return nil
	}
	return l.err
}

// LineTooLong builds the diagnostic for a line cut by a LineReader. Only a
// short prefix of the line is kept as source.
func LineTooLong(line []byte, max int) Diagnostic {
	if len(line) > sourcePreview {
		line = line[:sourcePreview]
	}
	return At(line, len(line), "line exceeds %d bytes", max)
}
