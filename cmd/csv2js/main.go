// Command csv2js converts delimited tables into the outside_data statement
// read by the visualization front end.
//
// Sources come from the command line (paths or http(s)://, s3://, file://
// URLs) or, with no arguments, from the input document named by the
// INPUT_JSON* settings. The statement goes to stdout or -out; logs and the
// optional -report go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tabular/internal/config"
	"tabular/internal/logging"
	"tabular/internal/merge"
	"tabular/internal/metrics"
	"tabular/internal/metrics/datadog"
	"tabular/internal/pipeline"
	"tabular/internal/report"
	"tabular/internal/source"
	"tabular/internal/storage"

	_ "tabular/internal/storage/all"
)

// backendCloser is a metrics backend the command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are the command's external seams.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string) (backendCloser, error)

	// Fetcher overrides the fetcher built from configuration.
	Fetcher source.Fetcher

	// DotEnv lists .env files to load; nil means ".env".
	DotEnv []string
}

// cliFlags are the parsed command line. Empty strings leave the
// configured value alone.
type cliFlags struct {
	Config         string
	Encoding       string
	Provenance     string
	Report         bool
	ExportKind     string
	ExportDSN      string
	ExportTable    string
	MetricsBackend string
	Out            string
	Verbose        bool
	Args           []string
}

func main() {
	logging.Setup("info", "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: 60 * time.Second,
			})
		},
	})
	stop()
	os.Exit(code)
}

// run executes the command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: configuration, source, conversion, export or output failure.
//   - 2: usage error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	fl, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if err := config.LoadDotEnv(d.DotEnv...); err != nil {
		fmt.Fprintf(d.Stderr, "dotenv: %v\n", err)
		return 1
	}
	cfg, err := config.Load(fl.Config)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 1
	}
	applyFlags(cfg, fl)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	level := cfg.Logging.Level
	if fl.Verbose {
		level = "debug"
	}
	runID := logging.NewRunID()
	log := logging.WithRun(logging.New(d.Stderr, level, cfg.Logging.Format), runID)
	log.Debug("configuration", "config", cfg.String())

	closeMetrics := initMetrics(ctx, cfg.Metrics, d.BackendFactory, log)
	defer closeMetrics()

	start := time.Now()
	if err := convert(ctx, cfg, fl, runID, d, log); err != nil {
		log.Error("conversion failed", "error", err)
		return 1
	}
	log.Info("completed", "duration", time.Since(start).Truncate(time.Millisecond))
	return 0
}

func convert(ctx context.Context, cfg *config.Config, fl cliFlags, runID string, d deps, log *slog.Logger) error {
	fetcher := d.Fetcher
	if fetcher == nil {
		fetcher = newFetcher(cfg, log)
	}
	loader := &source.Loader{
		Fetcher:     fetcher,
		Encoding:    cfg.Input.Encoding,
		Concurrency: cfg.Fetch.Concurrency,
		Logger:      log,
	}

	var (
		sources []merge.Source
		err     error
	)
	if len(fl.Args) > 0 {
		sources, err = loader.FromArgs(ctx, fl.Args)
	} else {
		sources, err = loader.FromEnv(ctx, source.Input{
			JSON:     cfg.Input.JSON,
			JSONURL:  cfg.Input.JSONURL,
			JSONPath: cfg.Input.JSONPath,
		})
	}
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	log.Info("sources loaded", "count", len(sources))

	res, err := pipeline.Run(ctx, sources, pipeline.Options{
		ProvenanceColumn: cfg.Output.ProvenanceColumn,
		Variable:         cfg.Output.Variable,
		Logger:           log,
	})
	if err != nil {
		return err
	}
	log.Info("table built", "columns", len(res.Table.Header), "rows", len(res.Table.Rows), "fallbacks", len(res.Fallbacks))

	if fl.Report {
		if err := report.Write(d.Stderr, report.Build(res.Table, res.Defs)); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	if cfg.Export.Kind != "" {
		if err := export(ctx, cfg.Export, runID, res, log); err != nil {
			return err
		}
	}

	return writeOutput(fl.Out, d.Stdout, res.Output)
}

func newFetcher(cfg *config.Config, log *slog.Logger) source.Fetcher {
	s3, err := source.NewS3Fetcher(source.S3Options{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Region:          cfg.S3.Region,
		UseSSL:          cfg.S3.UseSSL,
	})
	if err != nil {
		log.Warn("s3 sources disabled", "error", err)
		s3 = nil
	}
	return source.NewRouter(source.NewHTTPFetcher(cfg.Fetch.Timeout, cfg.Fetch.Retries), s3)
}

func export(ctx context.Context, cfg config.ExportConfig, runID string, res pipeline.Result, log *slog.Logger) error {
	start := time.Now()
	repo, err := storage.New(ctx, storage.Config{Kind: strings.ToLower(cfg.Kind), DSN: cfg.DSN})
	if err != nil {
		metrics.RecordStep("export", "error", time.Since(start))
		return fmt.Errorf("export: open %s: %w", cfg.Kind, err)
	}
	defer repo.Close()

	st, err := storage.Export(ctx, repo, cfg.Table, runID, res.Table, res.Defs)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep("export", status, time.Since(start))
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	metrics.RecordRecords("exported", int(st.Inserted))
	log.Info("table exported", "kind", cfg.Kind, "table", cfg.Table, "rows", st.Rows, "inserted", st.Inserted)
	return nil
}

func writeOutput(path string, stdout io.Writer, out string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(stdout, out)
		return err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// initMetrics installs the configured backend and returns its shutdown
// func. A backend that fails to start leaves metrics disabled.
func initMetrics(ctx context.Context, cfg config.MetricsConfig, factory func(context.Context, string, []string) (backendCloser, error), log *slog.Logger) func() {
	switch strings.ToLower(cfg.Backend) {
	case "datadog":
		if factory == nil {
			log.Warn("metrics: no datadog factory; metrics disabled")
			return func() {}
		}
		b, err := factory(ctx, cfg.Job, cfg.Tags)
		if err != nil {
			log.Warn("metrics: failed to init datadog backend; using nop", "error", err)
			return func() {}
		}
		log.Debug("metrics enabled", "backend", "datadog", "job", cfg.Job, "tags", cfg.Tags)
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and performs the final flush.
			if err := b.Close(); err != nil {
				log.Warn("metrics: datadog close/flush error", "error", err)
			}
			metrics.SetBackend(nil)
		}
	default:
		log.Debug("metrics disabled", "backend", cfg.Backend)
		return func() {}
	}
}

// parseFlags parses args without exiting the process.
func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("csv2js", flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "usage: %s [flags] [path-or-url ...]\n", fs.Name())
		fs.PrintDefaults()
	}

	var fl cliFlags
	fs.StringVar(&fl.Config, "config", "", "YAML settings overlay (default $"+config.EnvFile+")")
	fs.StringVar(&fl.Encoding, "encoding", "", "source encoding: latin1 or utf-8 (overrides SOURCE_ENCODING)")
	fs.StringVar(&fl.Provenance, "provenance", "", "provenance column name (overrides PROVENANCE_COLUMN)")
	fs.BoolVar(&fl.Report, "report", false, "print a per-column summary to stderr")
	fs.StringVar(&fl.ExportKind, "export-kind", "", "export backend: sqlite, postgres or mssql (overrides EXPORT_KIND)")
	fs.StringVar(&fl.ExportDSN, "export-dsn", "", "export DSN (overrides EXPORT_DSN)")
	fs.StringVar(&fl.ExportTable, "export-table", "", "export table (overrides EXPORT_TABLE)")
	fs.StringVar(&fl.MetricsBackend, "metrics-backend", "", "metrics backend: none or datadog (overrides METRICS_BACKEND)")
	fs.StringVar(&fl.Out, "out", "", "write the statement to this file instead of stdout")
	fs.BoolVar(&fl.Verbose, "v", false, "enable debug logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cliFlags{}, errors.New(usageBuf.String())
		}
		return cliFlags{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	fl.Args = fs.Args()
	return fl, nil
}

func applyFlags(cfg *config.Config, fl cliFlags) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Input.Encoding, fl.Encoding)
	set(&cfg.Output.ProvenanceColumn, fl.Provenance)
	set(&cfg.Export.Kind, fl.ExportKind)
	set(&cfg.Export.DSN, fl.ExportDSN)
	set(&cfg.Export.Table, fl.ExportTable)
	set(&cfg.Metrics.Backend, fl.MetricsBackend)
}
