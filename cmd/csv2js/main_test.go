package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabular/internal/metrics"
)

// These tests read process environment through config.Load and install
// metrics backends, so none of them run in parallel.

var envKeys = []string{
	"TABULAR_CONFIG",
	"INPUT_JSON", "INPUT_JSON_URL", "INPUT_JSON_PATH", "SOURCE_ENCODING",
	"HTTP_TIMEOUT", "HTTP_RETRIES", "FETCH_CONCURRENCY",
	"S3_ENDPOINT", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_REGION", "S3_USE_SSL",
	"LOG_LEVEL", "LOG_FORMAT",
	"METRICS_BACKEND", "METRICS_TAGS", "METRICS_JOB",
	"EXPORT_KIND", "EXPORT_DSN", "EXPORT_TABLE",
	"PROVENANCE_COLUMN", "OUTPUT_VARIABLE",
}

func cleanEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

type fakeBackend struct {
	closed atomic.Int64
	incs   atomic.Int64
}

func (b *fakeBackend) IncCounter(string, float64, metrics.Labels)       { b.incs.Add(1) }
func (b *fakeBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *fakeBackend) Flush() error                                     { return nil }
func (b *fakeBackend) Close() error                                     { b.closed.Add(1); return nil }

type mapFetcher map[string][]byte

func (m mapFetcher) Fetch(_ context.Context, location string) ([]byte, error) {
	b, ok := m[location]
	if !ok {
		return nil, errors.New("not found: " + location)
	}
	return b, nil
}

type harness struct {
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
	deps   deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cleanEnv(t)

	h := &harness{dir: t.TempDir()}
	h.deps = deps{
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		DotEnv: []string{filepath.Join(h.dir, "absent.env")},
	}
	return h
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (h *harness) run(args ...string) int {
	return run(context.Background(), args, h.deps)
}

func golden(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("..", "..", "internal", "outside", "testdata", "expected-outside_data.js"))
	require.NoError(t, err)
	return string(b)
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantInErr string
	}{
		{name: "unknown_flag", args: []string{"-nope"}, wantInErr: "usage: csv2js"},
		{name: "help", args: []string{"-h"}, wantInErr: "usage: csv2js"},
		{name: "bad_encoding", args: []string{"-encoding", "utf-16", "x.csv"}, wantInErr: "SOURCE_ENCODING"},
		{name: "bad_export_kind", args: []string{"-export-kind", "oracle", "x.csv"}, wantInErr: "EXPORT_KIND"},
		{name: "export_without_dsn", args: []string{"-export-kind", "sqlite", "x.csv"}, wantInErr: "EXPORT_DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.Equal(t, 2, h.run(tt.args...), "stderr=%s", h.stderr.String())
			assert.Contains(t, h.stderr.String(), tt.wantInErr)
			assert.Empty(t, h.stdout.String())
		})
	}
}

func TestRun_FilesToStdoutMatchesGolden(t *testing.T) {
	h := newHarness(t)
	csv := h.write(t, "fake.csv", "Refinery file,a,b,c\nx,1,2,3\nx,7,8,9")
	tsv := h.write(t, "fake.tsv", "x\ty\tz\n1\t2\t3")

	require.Equal(t, 0, h.run(csv, tsv), "stderr=%s", h.stderr.String())
	assert.Equal(t, golden(t), h.stdout.String())
	assert.Contains(t, h.stderr.String(), "run_id=", "logs carry the run id")
}

func TestRun_OutFileAndReport(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "a.csv", "n,s\n1,x\n2,y")
	out := filepath.Join(h.dir, "outside_data.js")

	require.Equal(t, 0, h.run("-out", out, "-report", src), "stderr=%s", h.stderr.String())
	assert.Empty(t, h.stdout.String(), "stdout stays empty with -out")

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "var outside_data = ["), "output=%q", b)
	assert.Contains(t, h.stderr.String(), "columns=2 rows=2")
}

func TestRun_ProvenanceFlag(t *testing.T) {
	h := newHarness(t)
	a := h.write(t, "a.csv", "v\n1")
	b := h.write(t, "b.csv", "v\n2")

	require.Equal(t, 0, h.run("-provenance", "origin", a, b), "stderr=%s", h.stderr.String())
	assert.Contains(t, h.stdout.String(), `"column": "origin"`)
}

func TestRun_EnvInputDocument(t *testing.T) {
	h := newHarness(t)
	h.deps.Fetcher = mapFetcher{
		"https://example.test/a.csv": []byte("k;v\n1;2"),
		"https://example.test/b.csv": []byte("k;v\n3;4"),
	}
	t.Setenv("INPUT_JSON", `{"file_relationships":["https://example.test/a.csv","https://example.test/b.csv"]}`)

	require.Equal(t, 0, h.run(), "stderr=%s", h.stderr.String())
	assert.Contains(t, h.stdout.String(), "a.csv")
	assert.Contains(t, h.stdout.String(), "b.csv")
}

func TestRun_MissingInputDocumentUsesPlaceholder(t *testing.T) {
	h := newHarness(t)
	t.Setenv("INPUT_JSON_PATH", filepath.Join(h.dir, "no-such-input.json"))

	require.Equal(t, 0, h.run(), "stderr=%s", h.stderr.String())
	assert.Contains(t, h.stdout.String(), "data%0Amissing")
}

func TestRun_SourceFailureIsFatal(t *testing.T) {
	h := newHarness(t)

	require.Equal(t, 1, h.run(filepath.Join(h.dir, "missing.csv")))
	assert.Empty(t, h.stdout.String(), "no output on failure")
	assert.Contains(t, h.stderr.String(), "conversion failed")
}

func TestRun_ExportToSQLite(t *testing.T) {
	h := newHarness(t)
	src := h.write(t, "a.csv", "n,x,s\n1,1.5,a\n2,2.5,b")
	db := filepath.Join(h.dir, "export.db")

	for i := 0; i < 2; i++ {
		h.stderr.Reset()
		require.Equal(t, 0, h.run("-export-kind", "sqlite", "-export-dsn", db, src),
			"run %d: stderr=%s", i, h.stderr.String())
	}
	// The second run finds every row hash already stored.
	assert.Contains(t, h.stderr.String(), "inserted=0")
}

func TestRun_DatadogBackendLifecycle(t *testing.T) {
	h := newHarness(t)
	fb := &fakeBackend{}
	var gotJob string
	var gotTags []string
	h.deps.BackendFactory = func(_ context.Context, job string, tags []string) (backendCloser, error) {
		gotJob, gotTags = job, tags
		return fb, nil
	}
	t.Setenv("METRICS_TAGS", "team:data,env:test")
	src := h.write(t, "a.csv", "a,b\n1,2")

	require.Equal(t, 0, h.run("-metrics-backend", "datadog", src), "stderr=%s", h.stderr.String())
	assert.Equal(t, "csv2js", gotJob)
	assert.Equal(t, []string{"team:data", "env:test"}, gotTags)
	assert.NotZero(t, fb.incs.Load(), "pipeline metrics reach the backend")
	assert.Equal(t, int64(1), fb.closed.Load())
}

func TestRun_MetricsInitFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.deps.BackendFactory = func(context.Context, string, []string) (backendCloser, error) {
		return nil, errors.New("no api key")
	}
	src := h.write(t, "a.csv", "a,b\n1,2")

	require.Equal(t, 0, h.run("-metrics-backend", "datadog", src), "stderr=%s", h.stderr.String())
	assert.Contains(t, h.stderr.String(), "using nop")
}

func TestParseFlags_Defaults(t *testing.T) {
	fl, err := parseFlags([]string{"a.csv", "b.csv"})
	require.NoError(t, err)
	assert.False(t, fl.Report)
	assert.False(t, fl.Verbose)
	assert.Empty(t, fl.Out)
	assert.Equal(t, []string{"a.csv", "b.csv"}, fl.Args)
}
