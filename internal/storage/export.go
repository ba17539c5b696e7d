package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"tabular/internal/merge"
	"tabular/internal/schema"
)

// hashSeparator joins the name=value parts of a row before hashing.
const hashSeparator = "\x1f"

// Stats summarizes one export.
type Stats struct {
	Rows     int
	Inserted int64
}

// BuildSpec derives the export table for t: one data column per header
// column except the primary key, typed from defs. Integer number columns
// become Integer, other number columns Float, the rest Text.
func BuildSpec(name string, t *merge.Table, defs []schema.ColumnDef) (TableSpec, error) {
	if len(defs) != len(t.Header) {
		return TableSpec{}, fmt.Errorf("storage: %d column definitions for %d header columns", len(defs), len(t.Header))
	}
	spec := TableSpec{Name: name}
	for i, col := range t.Header {
		if col == t.PrimaryKey {
			continue
		}
		if defs[i].Column != col {
			return TableSpec{}, fmt.Errorf("storage: column definition %d is %q, header has %q", i, defs[i].Column, col)
		}
		spec.Columns = append(spec.Columns, Column{Name: col, Type: columnType(defs[i])})
	}
	return spec, spec.Validate()
}

func columnType(d schema.ColumnDef) ColumnType {
	if d.Type != schema.TypeNumber {
		return Text
	}
	if d.NumberFormat == schema.FormatInteger {
		return Integer
	}
	return Float
}

// BuildRows converts the merged rows into export rows. A missing value,
// or one that does not coerce to its column's type, becomes NULL;
// non-finite floats are stored as NULL too.
func BuildRows(runID string, t *merge.Table, spec TableSpec) []Row {
	names := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		names[i] = c.Name
	}

	out := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		vals := make([]any, len(spec.Columns))
		for i, c := range spec.Columns {
			raw, ok := r.Record.Get(c.Name)
			if !ok {
				continue
			}
			vals[i] = convert(raw, c.Type)
		}
		out = append(out, Row{
			RowID:  int64(r.ID),
			RunID:  runID,
			Hash:   RowHash(names, r),
			Values: vals,
		})
	}
	return out
}

func convert(raw string, typ ColumnType) any {
	switch typ {
	case Integer:
		v := schema.Coerce(raw)
		if v.Kind != schema.Integer {
			return nil
		}
		return v.Int
	case Float:
		v := schema.Coerce(raw)
		var f float64
		switch v.Kind {
		case schema.Float:
			f = v.Float
		case schema.Integer:
			f = float64(v.Int)
		default:
			return nil
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	default:
		return raw
	}
}

// RowHash is the SHA-256 hex digest of the row's "name=value" parts for
// columns, in order, joined by 0x1f. A missing value is encoded as a NUL
// byte so it differs from an empty one.
func RowHash(columns []string, r merge.Row) string {
	var b strings.Builder
	b.Grow(len(columns) * 16)
	for i, c := range columns {
		if i > 0 {
			b.WriteString(hashSeparator)
		}
		b.WriteString(c)
		b.WriteByte('=')
		v, ok := r.Record.Get(c)
		if !ok {
			b.WriteByte(0)
			continue
		}
		b.WriteString(v)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Export writes t to the table name through repo, creating the table
// first when needed.
func Export(ctx context.Context, repo Repository, name, runID string, t *merge.Table, defs []schema.ColumnDef) (Stats, error) {
	spec, err := BuildSpec(name, t, defs)
	if err != nil {
		return Stats{}, err
	}
	if err := repo.EnsureTable(ctx, spec); err != nil {
		return Stats{}, fmt.Errorf("ensure table %s: %w", name, err)
	}

	rows := BuildRows(runID, t, spec)
	n, err := repo.InsertRows(ctx, spec, rows)
	if err != nil {
		return Stats{Rows: len(rows), Inserted: n}, fmt.Errorf("insert into %s: %w", name, err)
	}
	return Stats{Rows: len(rows), Inserted: n}, nil
}
