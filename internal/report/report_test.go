package report

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/lex"
	"example.com/canlog/internal/pipeline"
)

func sampleResult() (*pipeline.Result, pipeline.Options) {
	scale := float32(0.1)
	res := &pipeline.Result{
		Collections: []pipeline.ChannelCollection{
			{
				Descriptor: catalog.Descriptor{ID: 0x10060000, Name: "BloodFlow", Unit: "L/min", Scale: &scale},
				Samples:    []canlog.Sample{{ID: 0x10060000, Timestamp: 100}, {ID: 0x10060000, Timestamp: 300}},
			},
			{
				Descriptor: catalog.Descriptor{ID: 0x10062000, Name: "BloodFlow-DEV2", Derived: true},
				Samples:    []canlog.Sample{{ID: 0x10062000, Timestamp: 200}},
			},
		},
		Annotations: []canlog.Annotation{{ID: 1, Timestamp: 5, Text: "start"}},
		Diagnostics: []lex.Diagnostic{{Line: 3, Reason: "bad value"}},
		Unmappable:  []uint32{0x12345678},
		Duplicates:  []uint32{0x20},
		Files:       []pipeline.FileStats{{Path: "a.txt", Samples: 3, Malformed: 1, Rollover: true}},
	}
	opts := pipeline.Options{CatalogPath: "ids.h", Grammar: canlog.Extended, Resolution: canlog.Millisecond}
	return res, opts
}

func TestBuildSummary(t *testing.T) {
	res, opts := sampleResult()
	s := BuildSummary(res, opts)
	if s.Samples != 3 || s.Annotations != 1 || s.Malformed != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.Grammar != "extended" || s.Resolution != "ms" || s.Catalog != "ids.h" {
		t.Fatalf("unexpected run info %+v", s)
	}
	if len(s.Channels) != 2 || s.Channels[0].FirstTs != 100 || s.Channels[0].LastTs != 300 || s.Channels[0].Hex != "0x10060000" {
		t.Fatalf("unexpected channels %+v", s.Channels)
	}
	if s.DerivedCount() != 1 {
		t.Fatalf("derived = %d", s.DerivedCount())
	}
	if !reflect.DeepEqual(s.Unmappable, []string{"0x12345678"}) || !reflect.DeepEqual(s.Duplicates, []string{"0x00000020"}) {
		t.Fatalf("unexpected id lists %v %v", s.Unmappable, s.Duplicates)
	}
}

func TestSummaryJSONRoundTrip(t *testing.T) {
	res, opts := sampleResult()
	s := BuildSummary(res, opts)
	path := filepath.Join(t.TempDir(), "summary.json")
	if err := SaveSummaryJSON(s, path); err != nil {
		t.Fatalf("SaveSummaryJSON: %v", err)
	}
	got, err := LoadSummaryJSON(path)
	if err != nil {
		t.Fatalf("LoadSummaryJSON: %v", err)
	}
	if !got.Created.Equal(s.Created) || len(got.Channels) != 2 || *got.Channels[0].Scale != 0.1 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestSaveSummaryPDF(t *testing.T) {
	res, opts := sampleResult()
	s := BuildSummary(res, opts)
	s.Output = "run.db"
	s.OutputSHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	path := filepath.Join(t.TempDir(), "summary.pdf")
	if err := SaveSummaryPDF(s, path); err != nil {
		t.Fatalf("SaveSummaryPDF: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}

	empty := Summary{}
	if err := SaveSummaryPDF(empty, filepath.Join(t.TempDir(), "empty.pdf")); err != nil {
		t.Fatalf("SaveSummaryPDF empty: %v", err)
	}
}

func TestDigestToQR(t *testing.T) {
	if got := sanitizeDigest(" ab:cd-EF\n"); got != "ABCDEF" {
		t.Fatalf("sanitizeDigest = %q", got)
	}
	png, err := DigestToQR("ba7816bf", 0)
	if err != nil {
		t.Fatalf("DigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a PNG")
	}
	if _, err := DigestToQR("zz", 64); err == nil {
		t.Fatalf("expected error for digest without hex digits")
	}
}
