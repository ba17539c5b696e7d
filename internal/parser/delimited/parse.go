// Package delimited turns one blob of delimited text (CSV, TSV and friends)
// into an ordered sequence of records, detecting the delimiter per blob.
package delimited

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"tabular/pkg/records"
)

// ErrEmptySource is returned when the text has no lines at all.
var ErrEmptySource = errors.New("delimited: source has no lines")

const (
	// gctMarker opens a GCT matrix file; it and the dimensions line after it
	// are not part of the table.
	gctMarker = "#1.2"

	// sampleLines is how many leading lines the sniffer looks at.
	sampleLines = 10
)

// Result is the outcome of parsing one source.
type Result struct {
	Records []records.Record

	// Header is the column names read from the first row, kept even when no
	// data rows follow.
	Header []string

	// Dialect is the detected dialect. It is the zero Dialect when Fallback is set.
	Dialect Dialect

	// Fallback reports that no delimiter was found and the text was read as a
	// single column.
	Fallback bool
}

// Parse returns the records of text. See ParseText.
func Parse(text string) ([]records.Record, error) {
	res, err := ParseText(text)
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// ParseText splits text into records.
//
// Behavior:
//   - A leading GCT marker line drops the first two lines.
//   - The delimiter is sniffed over the first ten remaining lines.
//   - The first row is the header; each later row is zipped against it by
//     position. Short rows lack the trailing columns, extra fields are
//     dropped, blank lines are skipped. Quoted fields follow CSV rules.
//   - When no delimiter can be determined the first line is the only column
//     name and every later line, blank ones included, is one value of it.
//
// Errors:
//   - ErrEmptySource if text has no lines.
//   - A wrapped csv error if the rows cannot be read.
func ParseText(text string) (Result, error) {
	all := SplitLines(text)
	if len(all) == 0 {
		return Result{}, ErrEmptySource
	}

	lines := all
	if lines[0] == gctMarker {
		lines = lines[min(2, len(lines)):]
	}

	d, err := Sniff(lines[:min(sampleLines, len(lines))])
	if errors.Is(err, ErrNoDelimiter) {
		return Result{Records: singleColumn(all), Header: all[:1], Fallback: true}, nil
	}
	if err != nil {
		return Result{}, err
	}

	header, recs, err := readRecords(lines, d)
	if err != nil {
		return Result{}, err
	}
	return Result{Records: recs, Header: header, Dialect: d}, nil
}

func readRecords(lines []string, d Dialect) ([]string, []records.Record, error) {
	cr := csv.NewReader(strings.NewReader(strings.Join(lines, "\n")))
	cr.Comma = d.Delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	// encoding/csv trims every kind of leading white space, tabs included.
	cr.TrimLeadingSpace = d.SkipInitialSpace && d.Delimiter != '\t'

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var out []records.Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", len(out)+1, err)
		}

		n := min(len(row), len(header))
		rec := records.New(n)
		for i := 0; i < n; i++ {
			rec.Set(header[i], row[i])
		}
		out = append(out, rec)
	}
	return header, out, nil
}

func singleColumn(lines []string) []records.Record {
	key := lines[0]
	out := make([]records.Record, 0, len(lines)-1)
	for _, l := range lines[1:] {
		rec := records.New(1)
		rec.Set(key, l)
		out = append(out, rec)
	}
	return out
}
