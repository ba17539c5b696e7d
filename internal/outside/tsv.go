package outside

import (
	"strings"

	"tabular/internal/merge"
)

// TSV renders t as tab-separated text: the header line, then one line per
// row in header order. Missing and empty values become empty fields. Lines
// are joined by "\n" with no trailing newline. Values are written as is; a
// tab or newline inside a value is not escaped.
func TSV(t *merge.Table) string {
	var b strings.Builder
	b.WriteString(strings.Join(t.Header, "\t"))

	fields := make([]string, len(t.Header))
	for _, r := range t.Rows {
		for i, h := range t.Header {
			v, _ := r.Record.Get(h)
			fields[i] = v
		}
		b.WriteByte('\n')
		b.WriteString(strings.Join(fields, "\t"))
	}
	return b.String()
}
