package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"example.com/canlog/internal/canlog"
	"example.com/canlog/internal/catalog"
	"example.com/canlog/internal/common"
	"example.com/canlog/internal/config"
	"example.com/canlog/internal/lex"
	"example.com/canlog/internal/manifest"
	"example.com/canlog/internal/pipeline"
	"example.com/canlog/internal/report"
	"example.com/canlog/internal/store"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// stdout receives command output; tests replace it.
var stdout io.Writer = os.Stdout

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	var err error
	switch os.Args[1] {
	case "convert":
		err = convertCmd(os.Args[2:])
	case "catalog":
		err = catalogCmd(os.Args[2:])
	case "inspect":
		err = inspectCmd(os.Args[2:])
	case "report":
		err = reportCmd(os.Args[2:])
	case "manifest":
		err = manifestCmd(os.Args[2:])
	case "version":
		fmt.Fprintf(stdout, "canlogctl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`canlogctl %s (built %s) <command> [options]

Commands:
  convert   --catalog <ids.h> --out <run.db> [--comments <file>] [--extended] [--summary <summary.json>] [--diagnostics <diag.jsonl>] [--pdf <summary.pdf>] <log>...
  catalog   --catalog <ids.h> [--json]
  inspect   --db <run.db> [--series <name|id>] [--annotations] [--json]
  report    --summary <summary.json> --pdf <summary.pdf>
  manifest  --inputs <comma-separated> --out <manifest.json> | --verify <manifest.json>
  version
`, version, buildDate)
}

func convertCmd(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	catalogPath := fs.String("catalog", "", "channel id header file")
	commentsPath := fs.String("comments", "", "comment file")
	out := fs.String("out", "", "output SQLite file")
	extended := fs.Bool("extended", false, "logs use the extended grammar")
	resolution := fs.String("resolution", "ns", "timestamp resolution (ns|ms)")
	deviceShift := fs.Uint("device-shift", pipeline.DefaultDeviceShift, "bit offset of the 4-bit device field (default: header define, else 12)")
	duplicates := fs.String("duplicates", "last", "duplicate header id policy (last|first)")
	jobs := fs.Int("jobs", 0, "log files parsed concurrently (0 = one per CPU)")
	shareRollover := fs.Bool("share-rollover", false, "carry midnight rollover detection from one log into the next")
	overwrite := fs.Bool("overwrite", false, "replace an existing output file")
	summaryPath := fs.String("summary", "", "write run summary JSON")
	diagPath := fs.String("diagnostics", "", "write malformed line diagnostics as JSONL")
	pdfPath := fs.String("pdf", "", "write run summary PDF")
	progressFlag := fs.Bool("progress", false, "display parsing progress")
	metricsFlag := fs.Bool("metrics", false, "print parsing throughput metrics")
	verbose := fs.Bool("verbose", false, "log debug messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "catalog":
			cfg.Catalog = *catalogPath
		case "extended":
			cfg.Extended = *extended
		case "resolution":
			cfg.Resolution = *resolution
		case "device-shift":
			shift := *deviceShift
			cfg.DeviceShift = &shift
		case "duplicates":
			cfg.Duplicates = *duplicates
		case "jobs":
			cfg.Jobs = *jobs
		case "share-rollover":
			cfg.ShareRollover = *shareRollover
		case "overwrite":
			cfg.Overwrite = *overwrite
		case "progress":
			cfg.Progress = *progressFlag
		}
	})
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	opts.LogPaths = fs.Args()
	opts.CommentsPath = *commentsPath
	if opts.CatalogPath == "" {
		return errors.New("required: --catalog")
	}
	if *out == "" {
		return errors.New("required: --out")
	}
	if len(opts.LogPaths) == 0 {
		return errors.New("no log files given")
	}

	closer, err := common.SetupLogging(cfg.Logs, "canlogctl")
	if err != nil {
		return err
	}
	defer closer.Close()
	common.SetVerbose(*verbose)
	defer common.SetVerbose(false)

	var metrics *common.Metrics
	if *metricsFlag || cfg.Progress {
		metrics = common.NewMetrics()
		metrics.AddTotalBytes(common.TotalSize(opts.LogPaths...))
		metrics.Start()
		opts.Metrics = metrics
	}
	var stopProgress func()
	if cfg.Progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	ctx := context.Background()
	res, err := pipeline.Run(ctx, opts)
	if stopProgress != nil {
		stopProgress()
	}
	metrics.Stop()
	if err != nil {
		return err
	}
	for _, d := range res.Diagnostics {
		common.Logf("%s", d.Render())
	}
	for _, id := range res.Duplicates {
		common.Logf("duplicate header id 0x%08X (%s wins)", id, opts.Duplicates)
	}

	if err := writeOutput(ctx, *out, cfg.Overwrite, res, opts); err != nil {
		return err
	}

	sum := report.BuildSummary(res, opts)
	sum.Output = *out
	if sum.OutputSHA256, _, err = common.Sha256OfFile(*out); err != nil {
		return err
	}
	if *summaryPath != "" {
		if err := report.SaveSummaryJSON(sum, *summaryPath); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if *diagPath != "" {
		if err := writeDiagnostics(*diagPath, res.Diagnostics); err != nil {
			return fmt.Errorf("write diagnostics: %w", err)
		}
	}
	if *pdfPath != "" {
		if err := report.SaveSummaryPDF(sum, *pdfPath); err != nil {
			return fmt.Errorf("write pdf: %w", err)
		}
	}

	fmt.Fprintf(stdout, "channels=%d, derived=%d, samples=%d, annotations=%d, malformed=%d\n",
		len(sum.Channels), sum.DerivedCount(), sum.Samples, sum.Annotations, sum.Malformed)
	if len(sum.Unmappable) > 0 {
		fmt.Fprintf(stdout, "WARNING: %d unmappable channel ids: %s\n", len(sum.Unmappable), strings.Join(sum.Unmappable, ", "))
	}
	if *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Fprintf(stdout, "Metrics: duration=%s lines=%d samples=%d processed=%s throughput=%.2f MB/s\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Lines,
			snap.Samples,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
		)
	}
	return nil
}

// writeOutput creates the store at path and fills it. A store that could
// not be written completely is removed.
func writeOutput(ctx context.Context, path string, overwrite bool, res *pipeline.Result, opts pipeline.Options) error {
	st, err := store.Create(ctx, path, overwrite)
	if err != nil {
		return err
	}
	err = writeStore(ctx, st, res, opts)
	if cerr := st.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := os.Remove(path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			common.Logf("remove incomplete output %s: %v", path, rerr)
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeStore(ctx context.Context, st *store.Store, res *pipeline.Result, opts pipeline.Options) error {
	if err := st.Write(ctx, res.Collections, res.Annotations); err != nil {
		return err
	}
	attrs := [][2]string{
		{"created", time.Now().UTC().Format(time.RFC3339)},
		{"resolution", opts.Resolution.String()},
		{"grammar", opts.Grammar.String()},
		{"catalog", opts.CatalogPath},
		{"deviceShift", strconv.FormatUint(uint64(res.DeviceShift), 10)},
		{"logs", strings.Join(opts.LogPaths, ",")},
	}
	for _, kv := range attrs {
		if err := st.SetAttr(ctx, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeDiagnostics(path string, diags []lex.Diagnostic) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if len(diags) == 0 {
		return os.WriteFile(path, nil, 0o644)
	}
	return common.NewDiagnosticLog(path).Append(diags...)
}

func catalogCmd(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	catalogPath := fs.String("catalog", "", "channel id header file")
	duplicates := fs.String("duplicates", "", "duplicate header id policy (last|first)")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if *catalogPath != "" {
		cfg.Catalog = *catalogPath
	}
	if *duplicates != "" {
		cfg.Duplicates = *duplicates
	}
	if cfg.Catalog == "" {
		return errors.New("required: --catalog")
	}
	policy, err := catalog.ParseDuplicatePolicy(cfg.Duplicates)
	if err != nil {
		return err
	}
	cat, diags, dups, err := catalog.Load(cfg.Catalog, policy)
	if err != nil {
		return err
	}
	for _, d := range diags {
		common.Logf("%s", d.Render())
	}
	for _, id := range dups {
		common.Logf("duplicate header id 0x%08X (%s wins)", id, policy)
	}
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cat.Descriptors())
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCALE\tUNIT\tDESCRIPTION")
	for _, d := range cat.Descriptors() {
		scale := "-"
		if v, ok := d.ScaleValue(); ok {
			scale = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		fmt.Fprintf(w, "0x%08X\t%s\t%s\t%s\t%s\n", d.ID, dash(d.Name), scale, dash(d.Unit), dash(d.Description))
	}
	return w.Flush()
}

func inspectCmd(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	dbPath := fs.String("db", "", "SQLite file written by convert")
	series := fs.String("series", "", "print the samples of one channel (name or id)")
	annotations := fs.Bool("annotations", false, "print the annotations")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("required: --db")
	}
	st, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer st.Close()
	ctx := context.Background()

	switch {
	case *series != "":
		ch, samples, err := st.Series(ctx, *series)
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(stdout).Encode(struct {
				Channel catalog.Descriptor `json:"channel"`
				Samples []canlog.Sample    `json:"samples"`
			}{ch.Descriptor, samples})
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TS\tVALUE")
		for _, s := range samples {
			fmt.Fprintf(w, "%d\t%g\n", s.Timestamp, s.Value)
		}
		return w.Flush()
	case *annotations:
		anns, err := st.Annotations(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return json.NewEncoder(stdout).Encode(anns)
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTS\tTEXT")
		for _, a := range anns {
			fmt.Fprintf(w, "%d\t%d\t%s\n", a.ID, a.Timestamp, a.Text)
		}
		return w.Flush()
	}

	chans, err := st.Channels(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(stdout).Encode(chans)
	}
	res, err := st.Attr(ctx, "resolution")
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d channels, timestamps in %s\n", *dbPath, len(chans), res)
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tID\tUNIT\tSAMPLES\tDERIVED")
	for _, c := range chans {
		fmt.Fprintf(w, "%s\t0x%08X\t%s\t%d\t%s\n", c.Table, c.Descriptor.ID, dash(c.Descriptor.Unit), c.Samples, yesNo(c.Descriptor.Derived))
	}
	return w.Flush()
}

func reportCmd(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	summaryPath := fs.String("summary", "", "summary JSON written by convert")
	pdfPath := fs.String("pdf", "", "output summary PDF")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *summaryPath == "" || *pdfPath == "" {
		return errors.New("required: --summary and --pdf")
	}
	sum, err := report.LoadSummaryJSON(*summaryPath)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	if err := report.SaveSummaryPDF(sum, *pdfPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	fmt.Fprintln(stdout, "Wrote PDF:", *pdfPath)
	return nil
}

func manifestCmd(args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	verify := fs.String("verify", "", "manifest JSON to check against the files on disk")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *verify != "" {
		m, err := manifest.Load(*verify)
		if err != nil {
			return err
		}
		mismatches := manifest.Verify(m)
		for _, mm := range mismatches {
			fmt.Fprintln(stdout, "MISMATCH", mm)
		}
		if len(mismatches) > 0 {
			return fmt.Errorf("%d of %d items changed", len(mismatches), len(m.Items))
		}
		fmt.Fprintf(stdout, "OK: %d items verified\n", len(m.Items))
		return nil
	}

	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return errors.New("required: --inputs")
	}
	m, err := manifest.Build(paths)
	if err != nil {
		return err
	}
	if err := manifest.Save(m, *out); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Wrote manifest:", *out)
	return nil
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
