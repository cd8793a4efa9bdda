// Package pipeline turns a header catalogue, CAN logs and an optional comment
// file into sorted per-channel collections.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/semaphore"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/common"
	"example.com/canlog/internal/lex"
)

var ErrNoLogs = errors.New("no log files given")

// Options are the typed parameters of a run.
type Options struct {
	CatalogPath  string
	LogPaths     []string
	CommentsPath string
	Grammar      canlog.Grammar
	Resolution   canlog.Resolution
	Duplicates   catalog.DuplicatePolicy
	DeviceShift  uint

	// ShiftFromHeader lets a CAN_DEFAULT_DEVNUMBER_SHIFT define in the
	// header replace DeviceShift.
	ShiftFromHeader bool

	// Jobs bounds the number of log files parsed at once. Zero means one
	// per CPU.
	Jobs          int
	ShareRollover bool
	Metrics       *common.Metrics
}

// Result is everything a run hands to the output stage.
type Result struct {
	Catalog     *catalog.Catalog
	Collections []ChannelCollection
	Annotations []canlog.Annotation

	// Diagnostics holds malformed lines from the header, the logs and the
	// comment file, in that order.
	Diagnostics []lex.Diagnostic
	Derived     []catalog.Descriptor
	Unmappable  []uint32

	// Duplicates are header ids that occurred more than once.
	Duplicates  []uint32
	Files       []FileStats
	DeviceShift uint
}

// FileStats summarizes one parsed log.
type FileStats struct {
	Path      string `json:"path"`
	Samples   int    `json:"samples"`
	Malformed int    `json:"malformed"`
	Rollover  bool   `json:"rollover"`
}

// SampleCount is the number of samples across all collections.
func (r *Result) SampleCount() int {
	n := 0
	for _, c := range r.Collections {
		n += len(c.Samples)
	}
	return n
}

// Run executes the whole pipeline. Only unreadable inputs are errors;
// malformed lines and unmappable ids are reported in the Result.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if len(opts.LogPaths) == 0 {
		return nil, ErrNoLogs
	}
	cat, diags, dups, err := catalog.Load(opts.CatalogPath, opts.Duplicates)
	if err != nil {
		return nil, err
	}
	common.Logf("catalogue %s: %d channels, %d malformed lines", opts.CatalogPath, cat.Len(), len(diags))
	res := &Result{Diagnostics: diags, Duplicates: dups}

	files, err := ParseLogs(ctx, opts)
	if err != nil {
		return nil, err
	}
	var samples []canlog.Sample
	for _, f := range files {
		samples = append(samples, f.Samples...)
		res.Diagnostics = append(res.Diagnostics, f.Diagnostics...)
		res.Files = append(res.Files, FileStats{
			Path:      f.Path,
			Samples:   len(f.Samples),
			Malformed: len(f.Diagnostics),
			Rollover:  f.Final.Rollover,
		})
	}

	if opts.CommentsPath != "" {
		anns, cdiags, err := canlog.LoadComments(opts.CommentsPath, opts.Resolution)
		if err != nil {
			return nil, err
		}
		res.Annotations = anns
		res.Diagnostics = append(res.Diagnostics, cdiags...)
	}

	res.DeviceShift = opts.DeviceShift
	if shift, ok := cat.DeviceShift(); ok && opts.ShiftFromHeader {
		res.DeviceShift = shift
	}
	rec := Reconcile(cat, samples, res.DeviceShift)
	res.Catalog = rec.Catalog
	res.Derived = rec.Derived
	res.Unmappable = rec.Unmappable
	res.Collections = Group(rec.Catalog, samples)
	return res, nil
}

// ParseLogs parses opts.LogPaths and returns one result per path, in
// argument order. Files are parsed concurrently, each with its own rollover
// tracker, unless ShareRollover asks for the tracker to be carried from one
// file into the next.
func ParseLogs(ctx context.Context, opts Options) ([]canlog.FileResult, error) {
	ropts := canlog.ReaderOptions{
		Grammar:    opts.Grammar,
		Resolution: opts.Resolution,
		Metrics:    opts.Metrics,
	}
	if opts.ShareRollover {
		return parseSequential(ctx, opts.LogPaths, ropts)
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	var (
		results = make([]canlog.FileResult, len(opts.LogPaths))
		errs    = make([]error, len(opts.LogPaths))
		sema    = semaphore.NewWeighted(int64(jobs))
		wg      sync.WaitGroup
	)
	for i, path := range opts.LogPaths {
		if err := sema.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer sema.Release(1)
			results[i], errs[i] = canlog.ParseFile(path, ropts)
			if errs[i] == nil {
				common.Debugf("parsed %s: %d samples", path, len(results[i].Samples))
			}
		}(i, path)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("log %s: %w", opts.LogPaths[i], err)
		}
	}
	return results, nil
}

func parseSequential(ctx context.Context, paths []string, ropts canlog.ReaderOptions) ([]canlog.FileResult, error) {
	results := make([]canlog.FileResult, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := canlog.ParseFile(path, ropts)
		if err != nil {
			return nil, fmt.Errorf("log %s: %w", path, err)
		}
		results = append(results, res)
		ropts.Initial = res.Final
	}
	return results, nil
}
