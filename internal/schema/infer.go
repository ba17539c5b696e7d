package schema

import (
	"math"

	"tabular/internal/merge"
)

// Type is the display type of a column.
type Type string

const (
	TypeNumber      Type = "number"
	TypeCategorical Type = "categorical"
	TypeString      Type = "string"
)

// Number formats.
const (
	FormatInteger = "d"
	FormatFloat   = ".1f"
)

// categoricalSample caps how many leading values the categorical check inspects.
const categoricalSample = 100

// ColumnDef describes one column. Domain and NumberFormat are set only for
// TypeNumber; Domain holds [min, max] of the coerced values.
type ColumnDef struct {
	Column       string
	Type         Type
	Domain       [2]Value
	NumberFormat string
}

// Infer returns one ColumnDef per header column, in header order.
//
// Per column the present values are coerced (integer, else float, else
// text) and classified in this order:
//  1. no values at all: string
//  2. every value an integer: number, format "d"
//  3. every value a float: number, format ".1f"
//  4. categorical heuristic on the raw values
//  5. string
func Infer(header []string, rows []merge.Row) []ColumnDef {
	defs := make([]ColumnDef, 0, len(header))
	for _, col := range header {
		defs = append(defs, inferColumn(col, rawValues(col, rows)))
	}
	return defs
}

func rawValues(column string, rows []merge.Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Record.Get(column); ok {
			out = append(out, v)
		}
	}
	return out
}

func inferColumn(column string, raw []string) ColumnDef {
	def := ColumnDef{Column: column, Type: TypeString}
	if len(raw) == 0 {
		return def
	}

	values := make([]Value, len(raw))
	for i, s := range raw {
		values[i] = Coerce(s)
	}

	switch {
	case allKind(values, Integer):
		def.Type = TypeNumber
		def.NumberFormat = FormatInteger
		def.Domain = domain(values)
	case allKind(values, Float):
		def.Type = TypeNumber
		def.NumberFormat = FormatFloat
		def.Domain = domain(values)
	case IsCategorical(raw):
		def.Type = TypeCategorical
	}
	return def
}

func allKind(values []Value, k Kind) bool {
	for _, v := range values {
		if v.Kind != k {
			return false
		}
	}
	return true
}

// domain returns [min, max]. A value replaces the current bound only when it
// compares strictly beyond it, so a leading NaN sticks.
func domain(values []Value) [2]Value {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if less(v, lo) {
			lo = v
		}
		if less(hi, v) {
			hi = v
		}
	}
	return [2]Value{lo, hi}
}

// IsCategorical reports whether the distinct count among the first 100
// values is strictly below log2 of the total count. Smaller sets may carry
// proportionally more variety. A leading run of uniform values can fool it.
func IsCategorical(values []string) bool {
	if len(values) == 0 {
		return false
	}
	sample := values[:min(categoricalSample, len(values))]
	distinct := make(map[string]struct{}, len(sample))
	for _, v := range sample {
		distinct[v] = struct{}{}
	}
	return float64(len(distinct)) < math.Log2(float64(len(values)))
}
