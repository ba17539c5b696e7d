// Package merge unifies the records of several sources into one table with
// an ordered header and sequential row ids.
package merge

import (
	"errors"
	"fmt"
	"strconv"

	"tabular/pkg/records"
)

// Reserved column names.
const (
	DefaultProvenanceColumn = "Refinery file"
	DefaultPrimaryKey       = "id"
)

// ErrDuplicateSource is returned when two sources share an ID.
var ErrDuplicateSource = errors.New("merge: duplicate source id")

// Source is one named blob of delimited text.
type Source struct {
	ID   string
	Text string
}

// Options names the reserved columns. Zero values take the defaults.
type Options struct {
	// ProvenanceColumn records the owning source ID when more than one source
	// is merged.
	ProvenanceColumn string

	// PrimaryKey receives each row's 0-based position.
	PrimaryKey string
}

func (o Options) withDefaults() Options {
	if o.ProvenanceColumn == "" {
		o.ProvenanceColumn = DefaultProvenanceColumn
	}
	if o.PrimaryKey == "" {
		o.PrimaryKey = DefaultPrimaryKey
	}
	return o
}

// Row is one merged row. Record carries the primary key field as the decimal
// form of ID.
type Row struct {
	ID     int
	Record records.Record
}

// Table is the unified result. It is not modified after Merge returns.
type Table struct {
	// Header holds distinct column names in first-appearance order.
	Header []string
	Rows   []Row

	// PrimaryKey is the column holding row ids.
	PrimaryKey string
}

// Values returns the values present for column in row order. Rows that do
// not carry the column are skipped.
func (t *Table) Values(column string) []string {
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if v, ok := r.Record.Get(column); ok {
			out = append(out, v)
		}
	}
	return out
}

// Merge combines parsed, the records of each source in sources order.
//
// Behavior:
//   - With more than one source every record is stamped with the provenance
//     column before the header is built. An existing column of that name is
//     overwritten in place.
//   - The header is the union of each source's first record keys, in source
//     order and then key order. Later records never add columns.
//   - Rows are concatenated in source order and numbered from 0. The primary
//     key column is overwritten (or appended) with the row number.
//   - A source without records contributes no columns and no rows.
//
// The input records are not modified.
//
// Errors:
//   - ErrDuplicateSource if two sources share an ID.
//   - An error if len(sources) != len(parsed).
func Merge(sources []Source, parsed [][]records.Record, opt Options) (*Table, error) {
	if len(sources) != len(parsed) {
		return nil, fmt.Errorf("merge: %d sources but %d record sets", len(sources), len(parsed))
	}
	opt = opt.withDefaults()

	seen := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateSource, s.ID)
		}
		seen[s.ID] = struct{}{}
	}

	stamp := len(sources) > 1
	sets := make([][]records.Record, len(parsed))
	n := 0
	for i, recs := range parsed {
		sets[i] = make([]records.Record, len(recs))
		for j, r := range recs {
			c := r.Clone()
			if stamp {
				c.Set(opt.ProvenanceColumn, sources[i].ID)
			}
			sets[i][j] = c
		}
		n += len(recs)
	}

	t := &Table{PrimaryKey: opt.PrimaryKey, Rows: make([]Row, 0, n)}
	inHeader := make(map[string]struct{})
	for _, recs := range sets {
		if len(recs) == 0 {
			continue
		}
		for _, k := range recs[0].Keys() {
			if _, ok := inHeader[k]; ok {
				continue
			}
			inHeader[k] = struct{}{}
			t.Header = append(t.Header, k)
		}
	}

	for _, recs := range sets {
		for _, r := range recs {
			id := len(t.Rows)
			r.Set(opt.PrimaryKey, strconv.Itoa(id))
			t.Rows = append(t.Rows, Row{ID: id, Record: r})
		}
	}
	return t, nil
}
