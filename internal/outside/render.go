// Package outside serializes a merged table and its column definitions into
// the outside_data statement consumed by the visualization front end.
//
// The statement embeds a one-element dataset descriptor whose url is a data
// URI carrying the whole table as percent-encoded TSV.
package outside

import (
	"fmt"

	"tabular/internal/merge"
	"tabular/internal/schema"
)

const (
	// DefaultVariable is the name of the emitted JavaScript variable.
	DefaultVariable = "outside_data"

	datasetID   = "data"
	datasetName = "Data"
	dataURIHead = "data:text/plain;charset=utf-8,"
)

// Options controls rendering. Zero values take the defaults.
type Options struct {
	Variable string
}

// Render returns `var outside_data = <descriptor JSON>;` followed by a
// newline. The output depends only on its inputs, so rendering the same
// table twice yields identical bytes.
//
// Errors:
//   - defs does not line up with t.Header.
func Render(t *merge.Table, defs []schema.ColumnDef, opt Options) (string, error) {
	if len(defs) != len(t.Header) {
		return "", fmt.Errorf("outside: %d column definitions for %d header columns", len(defs), len(t.Header))
	}
	for i, d := range defs {
		if d.Column != t.Header[i] {
			return "", fmt.Errorf("outside: column definition %d is %q, header has %q", i, d.Column, t.Header[i])
		}
	}

	variable := opt.Variable
	if variable == "" {
		variable = DefaultVariable
	}

	var p printer
	p.b.WriteString("var ")
	p.b.WriteString(variable)
	p.b.WriteString(" = ")
	p.value(Descriptor(t, defs), 0)
	p.b.WriteString(";\n")
	return p.b.String(), nil
}

// Descriptor builds the dataset descriptor tree for t.
func Descriptor(t *merge.Table, defs []schema.ColumnDef) []any {
	pk := t.PrimaryKey
	if pk == "" {
		pk = merge.DefaultPrimaryKey
	}

	columns := make([]any, 0, len(defs))
	for _, d := range defs {
		columns = append(columns, columnNode(d))
	}

	return []any{object{
		"id":   datasetID,
		"name": datasetName,
		"desc": object{
			"separator":  "\t",
			"primaryKey": pk,
			"columns":    columns,
		},
		"url": dataURIHead + Quote(TSV(t)),
	}}
}

func columnNode(d schema.ColumnDef) object {
	o := object{
		"column": d.Column,
		"type":   string(d.Type),
	}
	if d.Type == schema.TypeNumber {
		o["domain"] = []any{scalar(d.Domain[0]), scalar(d.Domain[1])}
		o["numberFormat"] = d.NumberFormat
	}
	return o
}

func scalar(v schema.Value) any {
	switch v.Kind {
	case schema.Integer:
		return v.Int
	case schema.Float:
		return v.Float
	default:
		return v.Str
	}
}
