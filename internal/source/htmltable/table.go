// Package htmltable converts the first <table> of an HTML page into
// tab-separated text so exported report pages can be fed to the parser
// like any other delimited source.
package htmltable

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTable is returned when the document has no <table> with rows.
var ErrNoTable = errors.New("htmltable: no table found")

// maxColspan bounds how many empty fields one cell may expand into.
const maxColspan = 64

// LooksLikeHTML reports whether text starts like an HTML document.
func LooksLikeHTML(text string) bool {
	head := strings.TrimLeft(text, " \t\r\n\ufeff")
	if len(head) > 512 {
		head = head[:512]
	}
	head = strings.ToLower(head)
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.HasPrefix(head, "<html") ||
		strings.HasPrefix(head, "<table")
}

// ToTSV renders the first table in html as TSV: one line per row, header
// row first when present. Cell text has its white space collapsed to
// single spaces so it never contains tabs or newlines. A cell with
// colspan=n is followed by n-1 empty fields.
func ToTSV(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return "", ErrNoTable
	}

	var lines []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// Skip rows that belong to a nested table.
		if !tr.Closest("table").IsSelection(table) {
			return
		}
		var fields []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			fields = append(fields, cellText(cell))
			for i := 1; i < colspan(cell); i++ {
				fields = append(fields, "")
			}
		})
		if len(fields) > 0 {
			lines = append(lines, strings.Join(fields, "\t"))
		}
	})

	if len(lines) == 0 {
		return "", ErrNoTable
	}
	return strings.Join(lines, "\n"), nil
}

// blockElements start a new word when they open or close inside a cell.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true,
	"figure": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tbody": true, "td": true, "tfoot": true, "th": true,
	"thead": true, "tr": true, "ul": true,
}

func cellText(cell *goquery.Selection) string {
	var b strings.Builder
	writeText(&b, cell)
	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch name := goquery.NodeName(c); {
		case name == "#text":
			b.WriteString(c.Text())
		case name == "br":
			b.WriteByte(' ')
		case strings.HasPrefix(name, "#"):
			// comments and doctypes carry no cell text
		case blockElements[name]:
			b.WriteByte(' ')
			writeText(b, c)
			b.WriteByte(' ')
		default:
			writeText(b, c)
		}
	})
}

func colspan(cell *goquery.Selection) int {
	v, ok := cell.Attr("colspan")
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	if n > maxColspan {
		return maxColspan
	}
	return n
}
