// Package pipeline runs the conversion from decoded sources to the
// outside_data statement: parse each source, merge, infer column types,
// render. Every step is timed, logged and reported to the metrics backend.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tabular/internal/merge"
	"tabular/internal/metrics"
	"tabular/internal/outside"
	"tabular/internal/parser/delimited"
	"tabular/internal/schema"
	"tabular/pkg/records"
)

// Step names used in logs and metrics.
const (
	StepParse  = "parse"
	StepMerge  = "merge"
	StepInfer  = "infer"
	StepRender = "render"
)

// SourceError ties a failure to the source that caused it.
type SourceError struct {
	ID  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("source %s: %v", e.ID, e.Err) }

func (e *SourceError) Unwrap() error { return e.Err }

// Options configures a run. Zero values take the package defaults of merge
// and outside.
type Options struct {
	ProvenanceColumn string
	PrimaryKey       string
	Variable         string
	Logger           *slog.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Table  *merge.Table
	Defs   []schema.ColumnDef
	Output string

	// Fallbacks lists the IDs of sources read as a single column.
	Fallbacks []string
}

// Run converts sources. It returns no partial output: on any error Result
// is the zero value.
//
// Errors:
//   - *SourceError when a source cannot be parsed.
//   - merge and render errors, wrapped with their step.
//   - ctx.Err() when ctx is done before a step starts.
func Run(ctx context.Context, sources []merge.Source, opt Options) (Result, error) {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	var (
		res    Result
		parsed [][]records.Record
	)

	err := step(ctx, log, StepParse, func() error {
		var err error
		parsed, res.Fallbacks, err = parseAll(sources, log)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	err = step(ctx, log, StepMerge, func() error {
		t, err := merge.Merge(sources, parsed, merge.Options{
			ProvenanceColumn: opt.ProvenanceColumn,
			PrimaryKey:       opt.PrimaryKey,
		})
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		res.Table = t
		metrics.RecordRecords("rows", len(t.Rows))
		metrics.RecordRecords("columns", len(t.Header))
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	err = step(ctx, log, StepInfer, func() error {
		res.Defs = schema.Infer(res.Table.Header, res.Table.Rows)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	err = step(ctx, log, StepRender, func() error {
		out, err := outside.Render(res.Table, res.Defs, outside.Options{Variable: opt.Variable})
		if err != nil {
			return fmt.Errorf("render: %w", err)
		}
		res.Output = out
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

func parseAll(sources []merge.Source, log *slog.Logger) ([][]records.Record, []string, error) {
	parsed := make([][]records.Record, len(sources))
	var fallbacks []string
	for i, s := range sources {
		r, err := delimited.ParseText(s.Text)
		if err != nil {
			return nil, nil, &SourceError{ID: s.ID, Err: err}
		}
		parsed[i] = r.Records
		metrics.RecordRecords("parsed", len(r.Records))

		if r.Fallback {
			fallbacks = append(fallbacks, s.ID)
			log.Warn("no delimiter found; reading as a single column", "source", s.ID, "records", len(r.Records))
		} else {
			log.Debug("parsed source", "source", s.ID, "dialect", r.Dialect.Name(), "records", len(r.Records))
		}
		if len(r.Records) == 0 {
			log.Warn("source has no data rows; its columns are dropped", "source", s.ID, "columns", r.Header)
		}
	}
	metrics.RecordRecords("sources", len(sources))
	return parsed, fallbacks, nil
}

// step runs fn unless ctx is already done, then reports its status and
// duration.
func step(ctx context.Context, log *slog.Logger, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	d := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStep(name, status, d)
	log.Debug("step finished", "step", name, "status", status, "duration", d)
	return err
}
