// Package report renders the outcome of a conversion run as JSON and PDF.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"example.com/canlog/internal/pipeline"
)

// ChannelSummary describes one output channel.
type ChannelSummary struct {
	ID          uint32   `json:"id"`
	Hex         string   `json:"hex"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Scale       *float32 `json:"scale,omitempty"`
	Derived     bool     `json:"derived,omitempty"`
	Samples     int      `json:"samples"`
	FirstTs     uint64   `json:"firstTs"`
	LastTs      uint64   `json:"lastTs"`
}

// Summary is the machine readable record of a conversion run.
type Summary struct {
	Created      time.Time            `json:"created"`
	Catalog      string               `json:"catalog"`
	Comments     string               `json:"comments,omitempty"`
	Grammar      string               `json:"grammar"`
	Resolution   string               `json:"resolution"`
	Output       string               `json:"output,omitempty"`
	OutputSHA256 string               `json:"outputSha256,omitempty"`
	Files        []pipeline.FileStats `json:"files"`
	Channels     []ChannelSummary     `json:"channels"`
	Samples      int                  `json:"samples"`
	Annotations  int                  `json:"annotations"`
	Malformed    int                  `json:"malformed"`
	Unmappable   []string             `json:"unmappable,omitempty"`
	Duplicates   []string             `json:"duplicates,omitempty"`
}

// BuildSummary collects the per-channel and per-file figures of res.
func BuildSummary(res *pipeline.Result, opts pipeline.Options) Summary {
	s := Summary{
		Created:     time.Now().UTC(),
		Catalog:     opts.CatalogPath,
		Comments:    opts.CommentsPath,
		Grammar:     opts.Grammar.String(),
		Resolution:  opts.Resolution.String(),
		Files:       res.Files,
		Samples:     res.SampleCount(),
		Annotations: len(res.Annotations),
		Malformed:   len(res.Diagnostics),
	}
	for _, c := range res.Collections {
		d := c.Descriptor
		cs := ChannelSummary{
			ID:          d.ID,
			Hex:         hexID(d.ID),
			Name:        d.Name,
			Description: d.Description,
			Unit:        d.Unit,
			Scale:       d.Scale,
			Derived:     d.Derived,
			Samples:     len(c.Samples),
		}
		if n := len(c.Samples); n > 0 {
			cs.FirstTs = c.Samples[0].Timestamp
			cs.LastTs = c.Samples[n-1].Timestamp
		}
		s.Channels = append(s.Channels, cs)
	}
	for _, id := range res.Unmappable {
		s.Unmappable = append(s.Unmappable, hexID(id))
	}
	for _, id := range res.Duplicates {
		s.Duplicates = append(s.Duplicates, hexID(id))
	}
	return s
}

// DerivedCount is the number of channels synthesized by device masking.
func (s Summary) DerivedCount() int {
	n := 0
	for _, c := range s.Channels {
		if c.Derived {
			n++
		}
	}
	return n
}

func hexID(id uint32) string {
	return fmt.Sprintf("0x%08X", id)
}

func SaveSummaryJSON(s Summary, out string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (Summary, error) {
	var s Summary
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(b, &s)
	return s, err
}
