package delimited

import "unicode/utf8"

// SplitLines splits s at every line boundary and drops the terminators.
//
// Boundaries are \n, \r\n, \r, \v, \f, the file/group/record separators
// (\x1c, \x1d, \x1e), NEL (U+0085) and the Unicode line and paragraph
// separators (U+2028, U+2029). A trailing terminator does not produce an
// empty final element; an empty string yields no lines.
func SplitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isLineBreak(r) {
			i += size
			continue
		}
		out = append(out, s[start:i])
		i += size
		if r == '\r' && i < len(s) && s[i] == '\n' {
			i++
		}
		start = i
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
