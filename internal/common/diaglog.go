package common

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"example.com/canlog/internal/lex"
)

// DiagnosticLog provides append-only access to a JSONL file of malformed
// line diagnostics.
type DiagnosticLog struct {
	path string
	mu   sync.Mutex
}

// NewDiagnosticLog returns a DiagnosticLog that writes to the provided path.
func NewDiagnosticLog(path string) *DiagnosticLog {
	return &DiagnosticLog{path: path}
}

func (l *DiagnosticLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes the diagnostics, one JSON object per line.
func (l *DiagnosticLog) Append(diags ...lex.Diagnostic) error {
	if l == nil {
		return errors.New("nil diagnostic log")
	}
	if len(diags) == 0 {
		return nil
	}
	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, d := range diags {
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadDiagnosticLog loads every entry from the supplied JSONL file.
func ReadDiagnosticLog(path string) ([]lex.Diagnostic, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var entries []lex.Diagnostic
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry lex.Diagnostic
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode diagnostic: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
