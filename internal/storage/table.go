package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Meta columns every export table carries ahead of the data columns.
const (
	RowIDColumn   = "row_id"
	RunIDColumn   = "run_id"
	RowHashColumn = "row_hash"
)

// ErrReservedColumn is returned when a data column is named like a meta
// column.
var ErrReservedColumn = errors.New("storage: column name is reserved")

// ColumnType is the storage type of a data column.
type ColumnType int

const (
	Text ColumnType = iota
	Integer
	Float
)

func (t ColumnType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "text"
	}
}

// Column is one data column.
type Column struct {
	Name string
	Type ColumnType
}

// TableSpec describes an export table. The meta columns are implied.
type TableSpec struct {
	// Name may be schema-qualified ("schema.table") where the backend
	// supports it.
	Name    string
	Columns []Column
}

// Validate checks the table name and that no data column is empty,
// repeated or named like a meta column (compared case-insensitively,
// since not every backend distinguishes case).
func (s TableSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("storage: table name is empty")
	}
	seen := map[string]bool{
		RowIDColumn:   true,
		RunIDColumn:   true,
		RowHashColumn: true,
	}
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("storage: table %s has an empty column name", s.Name)
		}
		k := strings.ToLower(c.Name)
		if seen[k] {
			if k == RowIDColumn || k == RunIDColumn || k == RowHashColumn {
				return fmt.Errorf("%w: %q", ErrReservedColumn, c.Name)
			}
			return fmt.Errorf("storage: table %s repeats column %q", s.Name, c.Name)
		}
		seen[k] = true
	}
	return nil
}

// ColumnNames returns the meta columns followed by the data columns, the
// order of Row.Args.
func (s TableSpec) ColumnNames() []string {
	out := make([]string, 0, 3+len(s.Columns))
	out = append(out, RowIDColumn, RunIDColumn, RowHashColumn)
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Row is one export row. Values align with TableSpec.Columns; nil is
// stored as NULL.
type Row struct {
	RowID  int64
	RunID  string
	Hash   string
	Values []any
}

// Args returns the row's insert arguments in ColumnNames order.
func (r Row) Args() []any {
	out := make([]any, 0, 3+len(r.Values))
	out = append(out, r.RowID, r.RunID, r.Hash)
	return append(out, r.Values...)
}

// Chunks splits rows so that no chunk binds more than maxParams
// parameters for width columns. Every chunk holds at least one row.
func Chunks(rows []Row, width, maxParams int) [][]Row {
	per := 1
	if width > 0 && maxParams > width {
		per = maxParams / width
	}
	var out [][]Row
	for len(rows) > 0 {
		n := per
		if n > len(rows) {
			n = len(rows)
		}
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}
