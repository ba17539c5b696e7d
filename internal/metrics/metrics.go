// Package metrics is the small facade the conversion pipeline reports to.
// The default backend drops everything; commands install a real one with
// SetBackend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	StepTotal           = "tabular_step_total"
	StepDurationSeconds = "tabular_step_duration_seconds"
	RecordsTotal        = "tabular_records_total"
	FetchTotal          = "tabular_fetch_total"
	FetchDuration       = "tabular_fetch_duration_seconds"
	FetchBytes          = "tabular_fetch_bytes"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and its duration.
func RecordStep(step, status string, d time.Duration) {
	b := current()
	l := Labels{"step": step, "status": status}
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords adds n to the record counter of the given kind
// (parsed, merged, columns, ...).
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordFetch reports one source retrieval attempt. status is the HTTP
// status code, or 0 for a failure with no response. File and S3 reads
// report 200 on success.
func RecordFetch(scheme string, status int, d time.Duration, bytes int) {
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"scheme": scheme, "status": st}
	b := current()
	b.IncCounter(FetchTotal, 1, l)
	b.ObserveHistogram(FetchDuration, d.Seconds(), l)
	if bytes > 0 {
		b.ObserveHistogram(FetchBytes, float64(bytes), l)
	}
}
