package common

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"example.com/canlog/internal/lex"
)

func TestDiagnosticLogAppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "diagnostics.jsonl")
	dl := NewDiagnosticLog(path)
	first := lex.Diagnostic{File: "a.txt", Line: 3, Offset: 2, Source: "0xZZ 1 08:00:00", Reason: "bad hex"}
	second := lex.Diagnostic{File: "b.txt", Line: 9, Offset: 0, Source: "x", Reason: "bad value"}
	if err := dl.Append(first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := dl.Append(second); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := dl.Append(); err != nil {
		t.Fatalf("empty Append: %v", err)
	}
	got, err := ReadDiagnosticLog(path)
	if err != nil {
		t.Fatalf("ReadDiagnosticLog: %v", err)
	}
	if len(got) != 2 || got[0] != first || got[1] != second {
		t.Fatalf("unexpected entries: %+v", got)
	}
	var nilLog *DiagnosticLog
	if err := nilLog.Append(first); err == nil {
		t.Fatalf("expected error on nil log")
	}
}

func TestMetricsCountsAndNilSafety(t *testing.T) {
	var nilMetrics *Metrics
	nilMetrics.AddLine(10)
	nilMetrics.AddSample()
	nilMetrics.IncMalformed()
	if snap := nilMetrics.Snapshot(); snap.Lines != 0 {
		t.Fatalf("nil metrics snapshot: %+v", snap)
	}

	m := NewMetrics()
	m.AddTotalBytes(100)
	m.Start()
	m.AddLine(25)
	m.AddLine(25)
	m.AddSample()
	m.IncMalformed()
	m.Stop()
	snap := m.Snapshot()
	if snap.Lines != 2 || snap.Bytes != 50 || snap.Samples != 1 || snap.Malformed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Completion() != 0.5 {
		t.Fatalf("completion = %v", snap.Completion())
	}
	if !strings.Contains(formatProgressLine(snap), "1 samples, 1 malformed") {
		t.Fatalf("unexpected progress line %q", formatProgressLine(snap))
	}
}

func TestProgressPrinterStops(t *testing.T) {
	var buf bytes.Buffer
	m := NewMetrics()
	stop := StartProgressPrinter(&buf, m, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	stop()
	StartProgressPrinter(nil, m, 0)()
}

func TestSha256OfFileAndTotalSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.txt")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sum, n, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	if n != 3 || sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected digest %s (%d bytes)", sum, n)
	}
	if got := TotalSize(path, filepath.Join(dir, "missing"), "", dir); got != 3 {
		t.Fatalf("TotalSize = %d", got)
	}
	if FormatBytes(2048) != "2.00 KiB" {
		t.Fatalf("FormatBytes = %q", FormatBytes(2048))
	}
}

func TestSetupLoggingWithoutDirectory(t *testing.T) {
	c, err := SetupLogging(LogConfig{}, "canlogctl")
	if err != nil {
		t.Fatalf("SetupLogging: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	Debugf("hidden")
	SetVerbose(true)
	Debugf("shown %d", 1)
	SetVerbose(false)
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "debug: shown 1") {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
