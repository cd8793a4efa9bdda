// Package canlog parses CAN bus text logs and their comment files and
// rebuilds monotonic timestamps from clock-only readings.
package canlog

import (
	"example.com/canlog/internal/lex"
)

const (
	simpleMinFields = 3
	// Extended lines carry the value in field 10; shorter lines are
	// interleaved free text.
	extendedValueField = 10
)

// Record is a parsed log line before its clock reading is turned into a
// timestamp.
type Record struct {
	ID    uint32
	Value float32
	Clock Clock
}

// ParseRecord parses one log line with grammar g.
func ParseRecord(line []byte, g Grammar) lex.Outcome[Record] {
	line = lex.TrimEOL(line)
	fields := lex.Fields(line)
	if g == Extended {
		return parseExtended(line, fields)
	}
	return parseSimple(line, fields)
}

// parseSimple handles "0x<hex> <value> ... <timestamp>".
func parseSimple(line []byte, fields []lex.Field) lex.Outcome[Record] {
	if len(fields) == 0 || !lex.HasHexPrefix(fields[0].Text) {
		return lex.Skip[Record]()
	}
	if len(fields) < simpleMinFields {
		return lex.Skip[Record]()
	}
	id, err := lex.ParsePrefixedHex(fields[0].Text)
	if err != nil {
		return lex.Fail[Record](lex.At(line, fields[0].Offset+2, "%v", err))
	}
	return finishRecord(line, id, fields[1], fields[len(fields)-1])
}

// parseExtended handles "<hex>[h] <dlc> <b0> .. <b7> <value> ... <timestamp>".
func parseExtended(line []byte, fields []lex.Field) lex.Outcome[Record] {
	if len(fields) <= extendedValueField {
		return lex.Skip[Record]()
	}
	idField := fields[0]
	text := idField.Text
	off := idField.Offset
	if lex.HasHexPrefix(text) {
		text = text[2:]
		off += 2
	}
	n := lex.HexDigits(text)
	if n == 0 {
		return lex.Fail[Record](lex.At(line, off, "expected hex id"))
	}
	if rest := text[n:]; len(rest) > 0 && !(len(rest) == 1 && (rest[0] == 'h' || rest[0] == 'H')) {
		return lex.Fail[Record](lex.At(line, off+n, "unexpected %q after hex id", rest))
	}
	id, err := lex.ParseHex(text[:n])
	if err != nil {
		return lex.Fail[Record](lex.At(line, off, "%v", err))
	}
	return finishRecord(line, id, fields[extendedValueField], fields[len(fields)-1])
}

func finishRecord(line []byte, id uint32, valueField, tsField lex.Field) lex.Outcome[Record] {
	value, err := lex.ParseFloat(valueField.Text)
	if err != nil {
		return lex.Fail[Record](lex.At(line, valueField.Offset, "%v", err))
	}
	clock, err := ParseClock(tsField.Text)
	if err != nil {
		return lex.Fail[Record](lex.At(line, tsField.Offset, "%v", err))
	}
	return lex.Ok(Record{ID: id, Value: value, Clock: clock})
}
