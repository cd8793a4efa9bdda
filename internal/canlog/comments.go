package canlog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"example.com/canlog/internal/lex"
)

// Comment is a parsed comment line before timestamp reconstruction.
type Comment struct {
	ID    uint32
	Clock Clock
	Text  string
}

const junkChars = "0123456789:.-"

func isJunk(b []byte) bool {
	for _, c := range b {
		if strings.IndexByte(junkChars, c) < 0 {
			return false
		}
	}
	return len(b) > 0
}

// looksLikeClock reports whether b has the NN:NN:NN shape, valid or not.
func looksLikeClock(b []byte) bool {
	parts := bytes.Split(b, []byte(":"))
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if len(p) == 0 || len(p) > 2 {
			return false
		}
		for _, c := range p {
			if !lex.IsDigit(c) {
				return false
			}
		}
	}
	return true
}

// ParseCommentLine parses
//
//	<id> [<date>] HH:MM:SS <free text>
//
// e.g. "012\t10-23-2014 09:21:58\tNew Offset on ID ...". Lines of any other
// shape are skipped; a clock-shaped field with out-of-range values is
// malformed.
func ParseCommentLine(line []byte) lex.Outcome[Comment] {
	line = lex.TrimEOL(line)
	fields := lex.Fields(line)
	if len(fields) < 3 {
		return lex.Skip[Comment]()
	}
	id, err := lex.ParseDecimal(fields[0].Text)
	if err != nil || id > 0xFFFFFFFF {
		return lex.Skip[Comment]()
	}
	ti := 1
	if len(fields) >= 4 && isJunk(fields[1].Text) && looksLikeClock(fields[2].Text) {
		ti = 2
	} else if !looksLikeClock(fields[1].Text) {
		return lex.Skip[Comment]()
	}
	clock, err := ParseClock(fields[ti].Text)
	if err != nil {
		return lex.Fail[Comment](lex.At(line, fields[ti].Offset, "%v", err))
	}
	text := strings.TrimRight(string(line[fields[ti+1].Offset:]), " \t")
	return lex.Ok(Comment{ID: uint32(id), Clock: clock, Text: text})
}

// ParseComments reads every comment line of r. Comment timestamps use their
// own rollover tracker, independent of the sample logs.
func ParseComments(r io.Reader, path string, res Resolution) ([]Annotation, []lex.Diagnostic, error) {
	lines := lex.NewLineReader(r, lex.MaxLineSize)
	recon := Reconstructor{Resolution: res}
	var (
		state RolloverState
		out   []Annotation
		diags []lex.Diagnostic
		n     int
	)
	for lines.Scan() {
		n++
		if lines.TooLong() {
			d := lex.LineTooLong(lines.Bytes(), lines.Max())
			d.File = path
			d.Line = n
			diags = append(diags, d)
			continue
		}
		parsed := ParseCommentLine(lines.Bytes())
		switch parsed.Kind {
		case lex.Parsed:
			c := parsed.Value
			var ts uint64
			ts, state = recon.Stamp(state, c.Clock)
			out = append(out, Annotation{ID: c.ID, Timestamp: ts, Text: c.Text})
		case lex.Malformed:
			d := parsed.Diag
			d.File = path
			d.Line = n
			diags = append(diags, d)
		}
	}
	if err := lines.Err(); err != nil {
		return out, diags, fmt.Errorf("read comments %s: %w", path, err)
	}
	return out, diags, nil
}

// LoadComments parses the comment file at path.
func LoadComments(path string, res Resolution) ([]Annotation, []lex.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ParseComments(f, path, res)
}
