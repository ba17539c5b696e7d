package outside

import "strings"

const upperHex = "0123456789ABCDEF"

// Quote percent-encodes s for the data URI. ASCII letters, digits, "_.-~"
// and "/" pass through; every other UTF-8 byte becomes %XX with uppercase
// hex, so a space is %20.
//
// url.PathEscape and url.QueryEscape each keep a different set of reserved
// characters, so neither produces this form.
func Quote(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '_', '.', '-', '~', '/':
		return true
	}
	return false
}
