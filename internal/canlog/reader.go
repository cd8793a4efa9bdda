package canlog

import (
	"errors"
	"fmt"
	"io"
	"os"

	"example.com/canlog/internal/common"
	"example.com/canlog/internal/lex"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Grammar    Grammar
	Resolution Resolution

	// Initial seeds the rollover tracker, for runs that carry rollover
	// detection across file boundaries.
	Initial RolloverState
	Metrics *common.Metrics
}

// Reader streams Samples from a log one line at a time. Lines that are not
// samples are dropped; malformed lines are recorded and skipped.
type Reader struct {
	path    string
	lines   *lex.LineReader
	closer  io.Closer
	grammar Grammar
	recon   Reconstructor
	state   RolloverState
	metrics *common.Metrics
	line    int
	diags   []lex.Diagnostic
	done    bool
}

// NewReader reads from r. path is only used in diagnostics.
func NewReader(r io.Reader, path string, opts ReaderOptions) *Reader {
	return &Reader{
		path:    path,
		lines:   lex.NewLineReader(r, lex.MaxLineSize),
		grammar: opts.Grammar,
		recon:   Reconstructor{Resolution: opts.Resolution},
		state:   opts.Initial,
		metrics: opts.Metrics,
	}
}

// Open opens the log at path. Restarting a file means opening a new Reader.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewReader(f, path, opts)
	r.closer = f
	return r, nil
}

// Next returns the next sample, or io.EOF when the input is exhausted.
func (r *Reader) Next() (Sample, error) {
	if r == nil || r.done {
		return Sample{}, io.EOF
	}
	for r.lines.Scan() {
		r.line++
		raw := r.lines.Bytes()
		r.metrics.AddLine(int64(len(raw)) + 1)
		if r.lines.TooLong() {
			r.record(lex.LineTooLong(raw, r.lines.Max()))
			continue
		}
		res := ParseRecord(raw, r.grammar)
		switch res.Kind {
		case lex.Parsed:
			ts, next := r.recon.Stamp(r.state, res.Value.Clock)
			r.state = next
			r.metrics.AddSample()
			return Sample{ID: res.Value.ID, Value: res.Value.Value, Timestamp: ts}, nil
		case lex.Malformed:
			r.record(res.Diag)
		}
	}
	r.done = true
	if err := r.lines.Err(); err != nil {
		return Sample{}, fmt.Errorf("read %s: %w", r.path, err)
	}
	return Sample{}, io.EOF
}

func (r *Reader) record(d lex.Diagnostic) {
	d.File = r.path
	d.Line = r.line
	r.diags = append(r.diags, d)
	r.metrics.IncMalformed()
}

// Diagnostics returns the malformed lines seen so far.
func (r *Reader) Diagnostics() []lex.Diagnostic {
	return r.diags
}

// State returns the rollover tracker after the last returned sample.
func (r *Reader) State() RolloverState {
	return r.state
}

func (r *Reader) Close() error {
	r.done = true
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// FileResult is everything parsed from one log file.
type FileResult struct {
	Path        string
	Samples     []Sample
	Diagnostics []lex.Diagnostic
	Final       RolloverState
}

// ReadAll drains r.
func ReadAll(r *Reader) (FileResult, error) {
	res := FileResult{Path: r.path}
	for {
		s, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Samples = append(res.Samples, s)
	}
	res.Diagnostics = r.Diagnostics()
	res.Final = r.State()
	return res, nil
}

// ParseFile opens and fully parses the log at path.
func ParseFile(path string, opts ReaderOptions) (FileResult, error) {
	r, err := Open(path, opts)
	if err != nil {
		return FileResult{Path: path}, err
	}
	defer r.Close()
	return ReadAll(r)
}
