// Package manifest records SHA-256 digests of the inputs and outputs of a
// conversion run.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"example.com/canlog/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// Build hashes every path. The item type is guessed from the extension.
func Build(paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: itemType(p)})
	}
	return m, nil
}

func itemType(path string) string {
	switch {
	case hasExt(path, ".h", ".hpp"):
		return "catalog"
	case hasExt(path, ".db", ".sqlite"):
		return "sqlite"
	case hasExt(path, ".jsonl", ".ndjson"):
		return "diagnostics"
	case hasExt(path, ".json"):
		return "json"
	case hasExt(path, ".pdf"):
		return "pdf"
	case hasExt(path, ".txt", ".log", ".asc"):
		return "log"
	}
	return "other"
}

func hasExt(path string, exts ...string) bool {
	lower := strings.ToLower(path)
	for _, e := range exts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return false
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Mismatch is an item whose file no longer matches the recorded digest.
type Mismatch struct {
	Item Item

	// Actual is empty when the file could not be read.
	Actual string
	Err    error
}

func (mm Mismatch) String() string {
	if mm.Err != nil {
		return fmt.Sprintf("%s: %v", mm.Item.Path, mm.Err)
	}
	return fmt.Sprintf("%s: sha256 %s, manifest has %s", mm.Item.Path, mm.Actual, mm.Item.Sha256)
}

// Verify rehashes every item and returns those that changed.
func Verify(m Manifest) []Mismatch {
	var out []Mismatch
	for _, it := range m.Items {
		hex, _, err := common.Sha256OfFile(it.Path)
		if err != nil {
			out = append(out, Mismatch{Item: it, Err: err})
			continue
		}
		if !strings.EqualFold(hex, it.Sha256) {
			out = append(out, Mismatch{Item: it, Actual: hex})
		}
	}
	return out
}
