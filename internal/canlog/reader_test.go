package canlog

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/canlog/internal/common"
	"example.com/canlog/internal/lex"
)

const simpleLog = `Logging started
0x10FE0102	0 Prozent	08:52:25.19
0x10FE0102	abc	08:52:25.20
0x10060000	1,5 bar	08:52:25.21
`

func TestReaderSkipsAndDiagnoses(t *testing.T) {
	m := common.NewMetrics()
	r := NewReader(strings.NewReader(simpleLog), "run.txt", ReaderOptions{Metrics: m})
	res, err := ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(res.Samples) != 2 {
		t.Fatalf("samples = %+v", res.Samples)
	}
	if res.Samples[1].ID != 0x10060000 || res.Samples[1].Value != 1.5 {
		t.Fatalf("unexpected second sample %+v", res.Samples[1])
	}
	if len(res.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
	d := res.Diagnostics[0]
	if d.File != "run.txt" || d.Line != 3 || d.Offset != 11 {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	if !strings.HasPrefix(d.Error(), "run.txt:3:11: ") {
		t.Fatalf("unexpected error string %q", d.Error())
	}
	snap := m.Snapshot()
	if snap.Lines != 4 || snap.Samples != 2 || snap.Malformed != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after drain, got %v", err)
	}
}

func TestReaderSkipsOverlongLine(t *testing.T) {
	body := "0x10FE0102 1 08:00:00\n" + strings.Repeat("x", 2<<20) + "\n0x10FE0102 2 08:00:01\n" +
		strings.Repeat("\x00", lex.MaxLineSize+1)
	m := common.NewMetrics()
	res, err := ReadAll(NewReader(strings.NewReader(body), "run.txt", ReaderOptions{Metrics: m}))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(res.Samples) != 2 || res.Samples[1].Value != 2 {
		t.Fatalf("samples = %+v", res.Samples)
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %+v", res.Diagnostics)
	}
	for i, line := range []int{2, 4} {
		d := res.Diagnostics[i]
		if d.Line != line || !strings.Contains(d.Reason, "exceeds") || len(d.Source) > 100 {
			t.Fatalf("diagnostic %d = %s", i, d.Error())
		}
	}
	if snap := m.Snapshot(); snap.Malformed != 2 || snap.Lines != 4 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestReaderSingleGoodLine(t *testing.T) {
	r := NewReader(strings.NewReader("0x10FE0102 0 Prozent 08:52:25.19\n"), "", ReaderOptions{})
	s, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := Sample{ID: 0x10FE0102, Value: 0, Timestamp: 31945190000000}
	if s != want {
		t.Fatalf("got %+v, want %+v", s, want)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
	if len(r.Diagnostics()) != 0 {
		t.Fatalf("unexpected diagnostics %+v", r.Diagnostics())
	}
}

func TestReaderInitialStateCarriesRollover(t *testing.T) {
	opts := ReaderOptions{Initial: RolloverState{Seen: true, LastHour: 23}}
	r := NewReader(strings.NewReader("0x1 1 00:00:01\n"), "b.txt", opts)
	s, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if s.Timestamp != 24*nsPerHour+nsPerSecond {
		t.Fatalf("timestamp = %d", s.Timestamp)
	}
	if !r.State().Rollover {
		t.Fatalf("state = %+v", r.State())
	}
}

func TestParseFileExtended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ext.txt")
	content := "Header line\n" +
		"100C0000h\t8\t2E 00 00 00 01 00 00 00\t0,44921875 L/min\t1\t average Blood Flow\t\t23:59:59.90\n" +
		"100C0000h\t8\t2E 00 00 00 01 00 00 00\t0,5 L/min\t1\t average Blood Flow\t\t00:00:01.00\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	res, err := ParseFile(path, ReaderOptions{Grammar: Extended, Resolution: Millisecond})
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Samples) != 2 {
		t.Fatalf("samples = %+v", res.Samples)
	}
	if diff := res.Samples[1].Timestamp - res.Samples[0].Timestamp; diff != 1100 {
		t.Fatalf("diff = %d ms", diff)
	}
	if !res.Final.Rollover || res.Path != path {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "missing.txt"), ReaderOptions{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
