package outside

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// object is a JSON object node. Keys are emitted in sorted order.
type object map[string]any

// printer writes a JSON tree in the compact descriptor layout.
//
// The layout is what a 2-space indented, key-sorted, ASCII-only encoding
// looks like after every white space run that precedes anything other than
// a string or an object is collapsed to one space:
//   - object members and array elements that are strings or objects start
//     on their own indented line
//   - scalars stay on the line before them: [ 1, 7 ]
//   - closing brackets follow the last element after one space: "x" } ]
//
// Supported nodes are object, []any, string, int64, int and float64.
type printer struct {
	b strings.Builder
}

func (p *printer) value(v any, level int) {
	switch x := v.(type) {
	case object:
		p.object(x, level)
	case []any:
		p.array(x, level)
	case string:
		p.string(x)
	case int64:
		p.b.WriteString(strconv.FormatInt(x, 10))
	case int:
		p.b.WriteString(strconv.Itoa(x))
	case float64:
		p.b.WriteString(formatFloat(x))
	case nil:
		p.b.WriteString("null")
	default:
		panic("outside: unsupported JSON node type")
	}
}

func (p *printer) object(o object, level int) {
	if len(o) == 0 {
		p.b.WriteString("{}")
		return
	}
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p.b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			p.b.WriteByte(',')
		}
		p.gap(level+1, '"')
		p.string(k)
		p.b.WriteString(": ")
		p.value(o[k], level+1)
	}
	p.gap(level, '}')
	p.b.WriteByte('}')
}

func (p *printer) array(a []any, level int) {
	if len(a) == 0 {
		p.b.WriteString("[]")
		return
	}
	p.b.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			p.b.WriteByte(',')
		}
		p.gap(level+1, leadByte(v))
		p.value(v, level+1)
	}
	p.gap(level, ']')
	p.b.WriteByte(']')
}

// gap writes the white space that comes before a token starting with next.
func (p *printer) gap(level int, next byte) {
	if next != '"' && next != '{' {
		p.b.WriteByte(' ')
		return
	}
	p.b.WriteByte('\n')
	for i := 0; i < level; i++ {
		p.b.WriteString("  ")
	}
}

// leadByte returns the first byte v encodes to, as far as gap cares.
func leadByte(v any) byte {
	switch v.(type) {
	case string:
		return '"'
	case object:
		return '{'
	case []any:
		return '['
	}
	return '0'
}

// string writes s as a quoted ASCII-only JSON string. Runs of spaces inside
// it collapse to one space unless they end the string or precede a '{'.
func (p *printer) string(s string) {
	enc := escapeASCII(s)

	p.b.WriteByte('"')
	for i := 0; i < len(enc); {
		if enc[i] != ' ' {
			p.b.WriteByte(enc[i])
			i++
			continue
		}
		j := i
		for j < len(enc) && enc[j] == ' ' {
			j++
		}
		if j == len(enc) || enc[j] == '{' {
			p.b.WriteString(enc[i:j])
		} else {
			p.b.WriteByte(' ')
		}
		i = j
	}
	p.b.WriteByte('"')
}

// escapeASCII escapes s for a JSON string body using only printable ASCII.
// Other code points become \uXXXX with lowercase hex, astral ones as a
// surrogate pair; invalid UTF-8 becomes \ufffd.
func escapeASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r >= 0x20 && r < 0x7f {
				b.WriteRune(r)
				continue
			}
			if r > 0xffff {
				hi, lo := utf16.EncodeRune(r)
				writeU(&b, hi)
				writeU(&b, lo)
				continue
			}
			writeU(&b, r)
		}
	}
	return b.String()
}

const lowerHex = "0123456789abcdef"

func writeU(b *strings.Builder, r rune) {
	b.WriteString(`\u`)
	b.WriteByte(lowerHex[(r>>12)&0xf])
	b.WriteByte(lowerHex[(r>>8)&0xf])
	b.WriteByte(lowerHex[(r>>4)&0xf])
	b.WriteByte(lowerHex[r&0xf])
}

// formatFloat renders f the way the front end has always received floats:
// shortest round-trip digits, scientific notation when the decimal exponent
// is below -4 or at least 16, a ".0" suffix on integral values, and the
// literals NaN, Infinity and -Infinity.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}

	sci := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if err == nil && (exp < -4 || exp >= 16) {
		return sci
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
