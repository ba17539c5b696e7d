// Package report builds a per-column summary of a merged table: type,
// how many rows carry a value, bounded distinct counts and the numeric
// domain. The CLI prints it to stderr with -report.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"tabular/internal/merge"
	"tabular/internal/schema"
)

// DistinctCap bounds distinct counting per column.
const DistinctCap = 10000

// Column is the summary of one header column.
type Column struct {
	Name   string
	Type   schema.Type
	Format string

	// Present counts rows where the column has a non-blank value.
	Present int

	// Distinct counts distinct trimmed values, up to DistinctCap.
	Distinct int
	Capped   bool

	// Domain is set for number columns only.
	Domain *[2]schema.Value
}

// Ratio is Distinct over Present, 0 when the column is empty.
func (c Column) Ratio() float64 {
	if c.Present == 0 {
		return 0
	}
	return float64(c.Distinct) / float64(c.Present)
}

// Summary covers the whole table, columns in header order.
type Summary struct {
	Rows    int
	Columns []Column
}

// Build summarizes t. defs must align with t.Header; a missing def leaves
// the column typed as string.
func Build(t *merge.Table, defs []schema.ColumnDef) Summary {
	byName := make(map[string]schema.ColumnDef, len(defs))
	for _, d := range defs {
		byName[d.Column] = d
	}

	s := Summary{Rows: len(t.Rows), Columns: make([]Column, 0, len(t.Header))}
	for _, name := range t.Header {
		c := Column{Name: name, Type: schema.TypeString}
		if d, ok := byName[name]; ok {
			c.Type = d.Type
			c.Format = d.NumberFormat
			if d.Type == schema.TypeNumber {
				dom := d.Domain
				c.Domain = &dom
			}
		}
		countValues(&c, t)
		s.Columns = append(s.Columns, c)
	}
	return s
}

func countValues(c *Column, t *merge.Table) {
	set := make(map[string]struct{})
	for _, r := range t.Rows {
		v, ok := r.Record.Get(c.Name)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		c.Present++

		if c.Capped {
			continue
		}
		set[v] = struct{}{}
		if len(set) >= DistinctCap {
			c.Capped = true
			set = nil
		}
	}
	if c.Capped {
		c.Distinct = DistinctCap
		return
	}
	c.Distinct = len(set)
}

// Write prints s as an aligned table.
func Write(w io.Writer, s Summary) error {
	if _, err := fmt.Fprintf(w, "columns=%d rows=%d\n", len(s.Columns), s.Rows); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "column\ttype\tpresent\tdistinct\tratio\tdomain")
	for _, c := range s.Columns {
		distinct := strconv.Itoa(c.Distinct)
		if c.Capped {
			distinct = ">=" + distinct
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%.1f%%\t%s\n",
			c.Name, typeLabel(c), c.Present, distinct, c.Ratio()*100, domainLabel(c.Domain))
	}
	return tw.Flush()
}

func typeLabel(c Column) string {
	if c.Format == "" {
		return string(c.Type)
	}
	return string(c.Type) + "(" + c.Format + ")"
}

func domainLabel(d *[2]schema.Value) string {
	if d == nil {
		return "-"
	}
	return "[" + valueLabel(d[0]) + ", " + valueLabel(d[1]) + "]"
}

func valueLabel(v schema.Value) string {
	switch v.Kind {
	case schema.Integer:
		return strconv.FormatInt(v.Int, 10)
	case schema.Float:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return v.Str
	}
}
