package source

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"tabular/internal/source/htmltable"
)

// Supported source encodings.
const (
	EncodingLatin1 = "latin1"
	EncodingUTF8   = "utf-8"
)

// ErrUnknownEncoding is returned for an encoding name Decode does not know.
var ErrUnknownEncoding = errors.New("source: unknown encoding")

// NormalizeEncoding maps accepted spellings onto EncodingLatin1 or
// EncodingUTF8. The empty name means latin1.
func NormalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin1", "latin-1", "latin_1", "iso-8859-1", "iso8859-1":
		return EncodingLatin1, nil
	case "utf-8", "utf8", "utf_8":
		return EncodingUTF8, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// Decode turns raw source bytes into text for the parser:
//  1. gzip payloads are decompressed; anything that fails to decompress
//     is used as is
//  2. bytes are decoded with encoding (latin1 never fails; utf-8 strips a
//     byte order mark and replaces invalid sequences with U+FFFD)
//  3. an HTML page with a table is replaced by that table as TSV
func Decode(raw []byte, encoding string) (string, error) {
	enc, err := NormalizeEncoding(encoding)
	if err != nil {
		return "", err
	}

	text, err := decodeText(gunzip(raw), enc)
	if err != nil {
		return "", err
	}

	if htmltable.LooksLikeHTML(text) {
		tsv, err := htmltable.ToTSV(text)
		switch {
		case err == nil:
			return tsv, nil
		case !errors.Is(err, htmltable.ErrNoTable):
			return "", err
		}
	}
	return text, nil
}

var gzipMagic = []byte{0x1f, 0x8b}

// gunzip returns the decompressed payload, or raw when it is not valid
// gzip.
func gunzip(raw []byte) []byte {
	if !bytes.HasPrefix(raw, gzipMagic) {
		return raw
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return raw
	}
	return out
}

func decodeText(b []byte, enc string) (string, error) {
	var t transform.Transformer
	switch enc {
	case EncodingUTF8:
		t = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	default:
		t = charmap.ISO8859_1.NewDecoder()
	}
	out, _, err := transform.Bytes(t, b)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", enc, err)
	}
	return string(out), nil
}
