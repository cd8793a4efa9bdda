package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/common"
	"example.com/canlog/internal/pipeline"
	"example.com/canlog/internal/report"
	"example.com/canlog/internal/store"
)

const header = `/* generated */
#ifndef IDS_H
typedef enum {
BloodFlow = 0x10060000, // average Blood Flow|0.1 L/min|1000
Pressure = 0x10FE0102, // Pressure|bar
} ids_t;
`

const runLog = `Logging started
0x10FE0102	1,5 bar	23:59:59.9
0x10062000	3 L/min	23:59:59.95
0x10FE0102	garbage	00:00:00.5
0x10FE0102	2 bar	00:00:01.0
0x12345678	7	00:00:02
`

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func writeInputs(t *testing.T, dir string) (string, string, string) {
	t.Helper()
	files := map[string]string{
		"ids.h":        header,
		"run.txt":      runLog,
		"comments.txt": "12 10-23-2014 23:59:58 New offset\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	return filepath.Join(dir, "ids.h"), filepath.Join(dir, "run.txt"), filepath.Join(dir, "comments.txt")
}

func TestConvertCmdWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	common.SetOutput(&bytes.Buffer{})
	defer common.SetOutput(os.Stderr)
	ids, logPath, comments := writeInputs(t, dir)
	out := filepath.Join(dir, "run.db")
	summaryPath := filepath.Join(dir, "summary.json")
	diagPath := filepath.Join(dir, "diag.jsonl")
	pdfPath := filepath.Join(dir, "summary.pdf")
	buf := captureStdout(t)

	err := convertCmd([]string{
		"--catalog", ids,
		"--comments", comments,
		"--out", out,
		"--summary", summaryPath,
		"--diagnostics", diagPath,
		"--pdf", pdfPath,
		"--metrics",
		logPath,
	})
	if err != nil {
		t.Fatalf("convertCmd: %v", err)
	}
	if !strings.Contains(buf.String(), "channels=3, derived=1, samples=4, annotations=1, malformed=1") {
		t.Fatalf("unexpected output %q", buf.String())
	}
	if !strings.Contains(buf.String(), "WARNING: 1 unmappable channel ids: 0x12345678") {
		t.Fatalf("missing unmappable report in %q", buf.String())
	}

	sum, err := report.LoadSummaryJSON(summaryPath)
	if err != nil {
		t.Fatalf("LoadSummaryJSON: %v", err)
	}
	digest, _, err := common.Sha256OfFile(out)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	if sum.OutputSHA256 != digest || sum.Channels[0].Name != "BloodFlow-DEV2" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	diags, err := common.ReadDiagnosticLog(diagPath)
	if err != nil || len(diags) != 1 || diags[0].Line != 4 {
		t.Fatalf("diagnostics = %+v, %v", diags, err)
	}
	if info, err := os.Stat(pdfPath); err != nil || info.Size() == 0 {
		t.Fatalf("pdf missing: %v", err)
	}

	st, err := store.Open(out)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	_, samples, err := st.Series(context.Background(), "Pressure")
	st.Close()
	if err != nil {
		t.Fatalf("Series: %v", err)
	}
	if len(samples) != 2 || samples[1].Timestamp-samples[0].Timestamp != 1_100_000_000 {
		t.Fatalf("pressure samples = %+v", samples)
	}

	if err := convertCmd([]string{"--catalog", ids, "--out", out, logPath}); !errors.Is(err, store.ErrExists) {
		t.Fatalf("expected ErrExists on second run, got %v", err)
	}
	if err := convertCmd([]string{"--catalog", ids, "--out", out, "--overwrite", "--resolution", "ms", logPath}); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}
}

func TestConvertCmdRequiresInputs(t *testing.T) {
	captureStdout(t)
	if err := convertCmd([]string{"--out", "x.db", "a.txt"}); err == nil {
		t.Fatalf("expected error without catalogue")
	}
	if err := convertCmd([]string{"--catalog", "ids.h", "a.txt"}); err == nil {
		t.Fatalf("expected error without output")
	}
	if err := convertCmd([]string{"--catalog", "ids.h", "--out", "x.db"}); err == nil {
		t.Fatalf("expected error without logs")
	}
}

func TestConvertCmdConfigFile(t *testing.T) {
	dir := t.TempDir()
	common.SetOutput(&bytes.Buffer{})
	defer common.SetOutput(os.Stderr)
	_, logPath, _ := writeInputs(t, dir)
	cfgPath := filepath.Join(dir, "canlog.yaml")
	if err := os.WriteFile(cfgPath, []byte("catalog: ids.h\nresolution: ms\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	out := filepath.Join(dir, "run.db")
	captureStdout(t)
	if err := convertCmd([]string{"--config", cfgPath, "--out", out, logPath}); err != nil {
		t.Fatalf("convertCmd: %v", err)
	}
	st, err := store.Open(out)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	if v, err := st.Attr(context.Background(), "resolution"); err != nil || v != "ms" {
		t.Fatalf("resolution = %q, %v", v, err)
	}
}

func TestCatalogCmdJSON(t *testing.T) {
	dir := t.TempDir()
	ids, _, _ := writeInputs(t, dir)
	buf := captureStdout(t)
	if err := catalogCmd([]string{"--catalog", ids, "--json"}); err != nil {
		t.Fatalf("catalogCmd: %v", err)
	}
	var ds []catalog.Descriptor
	if err := json.Unmarshal(buf.Bytes(), &ds); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(ds) != 2 || ds[0].Name != "BloodFlow" || ds[1].Unit != "bar" || ds[1].Scale != nil {
		t.Fatalf("unexpected descriptors %+v", ds)
	}

	buf.Reset()
	if err := catalogCmd([]string{"--catalog", ids}); err != nil {
		t.Fatalf("catalogCmd table: %v", err)
	}
	if !strings.Contains(buf.String(), "0x10060000") || !strings.Contains(buf.String(), "L/min") {
		t.Fatalf("unexpected table %q", buf.String())
	}
}

func TestInspectReportManifest(t *testing.T) {
	dir := t.TempDir()
	common.SetOutput(&bytes.Buffer{})
	defer common.SetOutput(os.Stderr)
	ids, logPath, comments := writeInputs(t, dir)
	out := filepath.Join(dir, "run.db")
	summaryPath := filepath.Join(dir, "summary.json")
	buf := captureStdout(t)
	if err := convertCmd([]string{"--catalog", ids, "--comments", comments, "--out", out, "--summary", summaryPath, logPath}); err != nil {
		t.Fatalf("convertCmd: %v", err)
	}

	buf.Reset()
	if err := inspectCmd([]string{"--db", out}); err != nil {
		t.Fatalf("inspectCmd: %v", err)
	}
	if !strings.Contains(buf.String(), "3 channels, timestamps in ns") || !strings.Contains(buf.String(), "BloodFlow-DEV2") {
		t.Fatalf("unexpected listing %q", buf.String())
	}

	buf.Reset()
	if err := inspectCmd([]string{"--db", out, "--series", "0x10FE0102"}); err != nil {
		t.Fatalf("inspectCmd series: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(lines) != 3 {
		t.Fatalf("unexpected series output %q", buf.String())
	}

	buf.Reset()
	if err := inspectCmd([]string{"--db", out, "--annotations"}); err != nil {
		t.Fatalf("inspectCmd annotations: %v", err)
	}
	if !strings.Contains(buf.String(), "New offset") {
		t.Fatalf("unexpected annotations %q", buf.String())
	}

	pdfPath := filepath.Join(dir, "again.pdf")
	if err := reportCmd([]string{"--summary", summaryPath, "--pdf", pdfPath}); err != nil {
		t.Fatalf("reportCmd: %v", err)
	}

	manifestPath := filepath.Join(dir, "manifest.json")
	if err := manifestCmd([]string{"--inputs", strings.Join([]string{ids, logPath, out, pdfPath}, ","), "--out", manifestPath}); err != nil {
		t.Fatalf("manifestCmd: %v", err)
	}
	if err := manifestCmd([]string{"--verify", manifestPath}); err != nil {
		t.Fatalf("manifest verify: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("changed"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := manifestCmd([]string{"--verify", manifestPath}); err == nil {
		t.Fatalf("expected verify failure after change")
	}
}

func TestWriteOutputRemovesIncompleteStore(t *testing.T) {
	common.SetOutput(&bytes.Buffer{})
	defer common.SetOutput(os.Stderr)
	out := filepath.Join(t.TempDir(), "run.db")
	// Two collections with one id violate the unique channel id.
	res := &pipeline.Result{Collections: []pipeline.ChannelCollection{
		{Descriptor: catalog.Descriptor{ID: 1, Name: "A"}, Samples: []canlog.Sample{{ID: 1}}},
		{Descriptor: catalog.Descriptor{ID: 1, Name: "B"}, Samples: []canlog.Sample{{ID: 1}}},
	}}
	if err := writeOutput(context.Background(), out, false, res, pipeline.Options{}); err == nil {
		t.Fatalf("expected write error")
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("incomplete output left behind: %v", err)
	}
	res.Collections = res.Collections[:1]
	if err := writeOutput(context.Background(), out, false, res, pipeline.Options{}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestConvertCmdDeviceShiftPrecedence(t *testing.T) {
	dir := t.TempDir()
	common.SetOutput(&bytes.Buffer{})
	defer common.SetOutput(os.Stderr)
	ids := filepath.Join(dir, "ids.h")
	logPath := filepath.Join(dir, "run.txt")
	if err := os.WriteFile(ids, []byte("#define CAN_DEFAULT_DEVNUMBER_SHIFT 0\nBloodFlow = 0x10060000, //flow\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("0x1006000D 1 08:00:00\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cases := []struct {
		name      string
		args      []string
		wantShift string
		wantOut   string
	}{
		{name: "header define", wantShift: "0", wantOut: "derived=1"},
		{name: "explicit flag", args: []string{"--device-shift", "12"}, wantShift: "12", wantOut: "derived=0"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(dir, fmt.Sprintf("run%d.db", i))
			buf := captureStdout(t)
			args := append([]string{"--catalog", ids, "--out", out}, tc.args...)
			if err := convertCmd(append(args, logPath)); err != nil {
				t.Fatalf("convertCmd: %v", err)
			}
			if !strings.Contains(buf.String(), tc.wantOut) {
				t.Fatalf("unexpected output %q", buf.String())
			}
			st, err := store.Open(out)
			if err != nil {
				t.Fatalf("store.Open: %v", err)
			}
			defer st.Close()
			if v, err := st.Attr(context.Background(), "deviceShift"); err != nil || v != tc.wantShift {
				t.Fatalf("deviceShift = %q, %v", v, err)
			}
		})
	}
}
