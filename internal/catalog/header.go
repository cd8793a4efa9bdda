// Package catalog parses the C header that enumerates CAN channel ids and
// keeps the resulting id -> descriptor mapping.
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"example.com/canlog/internal/lex"
)

// Leading tokens of header lines that never carry an id definition.
var boilerplate = [][]byte{
	[]byte("*/"),
	[]byte("//"),
	[]byte("/*"),
	[]byte("*"),
	[]byte("#"),
	[]byte("enum"),
	[]byte("}"),
	[]byte("{"),
	[]byte("error"),
	[]byte("typedef"),
	[]byte("true"),
	[]byte("false"),
	[]byte("unsigned"),
}

func isBoilerplate(b []byte) bool {
	for _, p := range boilerplate {
		if bytes.HasPrefix(b, p) {
			return true
		}
	}
	return false
}

// ParseHeaderLine parses one line of the form
//
//	IDENT = 0xHEX, //description | <scale> <unit> | ...
func ParseHeaderLine(line []byte) lex.Outcome[Descriptor] {
	line = lex.TrimEOL(line)
	i := 0
	for i < len(line) && lex.IsSpace(line[i]) {
		i++
	}
	if i == len(line) || isBoilerplate(line[i:]) {
		return lex.Skip[Descriptor]()
	}

	start := i
	for i < len(line) && !lex.IsWhitespace(line[i]) {
		i++
	}
	name := string(line[start:i])

	j := lex.SkipSpaces(line, i)
	if j == i {
		return lex.Fail[Descriptor](lex.At(line, i, "expected whitespace before '='"))
	}
	if j >= len(line) || line[j] != '=' {
		return lex.Fail[Descriptor](lex.At(line, j, "expected '='"))
	}
	j++
	k := lex.SkipSpaces(line, j)
	if k == j {
		return lex.Fail[Descriptor](lex.At(line, j, "expected whitespace after '='"))
	}

	if !lex.HasHexPrefix(line[k:]) {
		return lex.Fail[Descriptor](lex.At(line, k, "expected 0x prefixed id"))
	}
	k += 2
	n := lex.HexDigits(line[k:])
	if n == 0 {
		return lex.Fail[Descriptor](lex.At(line, k, "expected hex digits"))
	}
	id, err := lex.ParseHex(line[k : k+n])
	if err != nil {
		return lex.Fail[Descriptor](lex.At(line, k, "%v", err))
	}
	k += n

	c := bytes.Index(line[k:], []byte("//"))
	if c < 0 {
		return lex.Fail[Descriptor](lex.At(line, k, "expected inline comment '//'"))
	}
	d := Descriptor{ID: id, Name: name}
	d.Description, d.Scale, d.Unit = parseComment(line[k+c+2:])
	return lex.Ok(d)
}

// parseComment splits the inline comment on '|'. Field 0 is the description,
// field 1 an optional leading scale followed by the unit. Later fields hold
// send/save intervals and limits, which are ignored.
func parseComment(body []byte) (string, *float32, string) {
	parts := bytes.Split(body, []byte("|"))
	desc := strings.TrimSpace(string(parts[0]))
	if len(parts) < 2 {
		return desc, nil, ""
	}
	field := bytes.TrimLeft(parts[1], " \t")
	var scale *float32
	if v, n, ok := lex.FloatPrefix(field); ok {
		scale = &v
		field = field[n:]
	}
	return desc, scale, strings.TrimSpace(string(field))
}

// DeviceShiftDefine names the preprocessor constant that carries the bit
// offset of the device field.
const DeviceShiftDefine = "CAN_DEFAULT_DEVNUMBER_SHIFT"

// MaxDeviceShift keeps the 4-bit device field inside a 32-bit id.
const MaxDeviceShift = 28

// ParseShiftDefine recognizes "#define CAN_DEFAULT_DEVNUMBER_SHIFT <n>".
// Every other line is skipped.
func ParseShiftDefine(line []byte) lex.Outcome[uint] {
	line = lex.TrimEOL(line)
	fields := lex.Fields(line)
	if len(fields) < 2 || string(fields[0].Text) != "#define" || string(fields[1].Text) != DeviceShiftDefine {
		return lex.Skip[uint]()
	}
	if len(fields) < 3 {
		return lex.Fail[uint](lex.At(line, len(line), "missing value for %s", DeviceShiftDefine))
	}
	v, err := lex.ParseDecimal(fields[2].Text)
	if err != nil || v > MaxDeviceShift {
		return lex.Fail[uint](lex.At(line, fields[2].Offset, "%s %q out of range 0..%d", DeviceShiftDefine, fields[2].Text, MaxDeviceShift))
	}
	return lex.Ok(uint(v))
}

// Header is the parsed content of a channel header file.
type Header struct {
	Descriptors []Descriptor
	Diagnostics []lex.Diagnostic

	// DeviceShift is set when the header defines CAN_DEFAULT_DEVNUMBER_SHIFT.
	DeviceShift *uint
}

// ParseHeader reads every line of r. Malformed lines are reported and
// skipped; they never abort the catalogue.
func ParseHeader(r io.Reader, path string) (Header, error) {
	var (
		h Header
		n int
	)
	lines := lex.NewLineReader(r, lex.MaxLineSize)
	diag := func(d lex.Diagnostic) {
		d.File = path
		d.Line = n
		h.Diagnostics = append(h.Diagnostics, d)
	}
	for lines.Scan() {
		n++
		line := lines.Bytes()
		if lines.TooLong() {
			diag(lex.LineTooLong(line, lines.Max()))
			continue
		}
		switch def := ParseShiftDefine(line); def.Kind {
		case lex.Parsed:
			shift := def.Value
			h.DeviceShift = &shift
			continue
		case lex.Malformed:
			diag(def.Diag)
			continue
		}
		res := ParseHeaderLine(line)
		switch res.Kind {
		case lex.Parsed:
			h.Descriptors = append(h.Descriptors, res.Value)
		case lex.Malformed:
			diag(res.Diag)
		}
	}
	if err := lines.Err(); err != nil {
		return h, fmt.Errorf("read header %s: %w", path, err)
	}
	return h, nil
}

// Load parses the header file at path into a catalogue. Only an unreadable
// file is an error.
func Load(path string, policy DuplicatePolicy) (*Catalog, []lex.Diagnostic, []uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	defer f.Close()
	h, err := ParseHeader(f, path)
	if err != nil {
		return nil, h.Diagnostics, nil, err
	}
	cat, dups := FromDescriptors(h.Descriptors, policy)
	if h.DeviceShift != nil {
		cat.SetDeviceShift(*h.DeviceShift)
	}
	return cat, h.Diagnostics, dups, nil
}
