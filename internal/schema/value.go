// Package schema infers a display type for each column of a merged table.
package schema

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Kind tags a coerced Value.
type Kind int

const (
	Text Kind = iota
	Integer
	Float
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Float:
		return "float"
	default:
		return "text"
	}
}

// Value is a cell after numeric coercion. Exactly one of Int, Float or Str is
// meaningful, selected by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// IntValue returns an Integer value.
func IntValue(i int64) Value { return Value{Kind: Integer, Int: i} }

// FloatValue returns a Float value.
func FloatValue(f float64) Value { return Value{Kind: Float, Float: f} }

// TextValue returns a Text value.
func TextValue(s string) Value { return Value{Kind: Text, Str: s} }

var (
	intRe     = regexp.MustCompile(`^[+-]?[0-9]+(?:_[0-9]+)*$`)
	floatRe   = regexp.MustCompile(`^[+-]?(?:(?:[0-9](?:_?[0-9])*)?\.[0-9](?:_?[0-9])*|[0-9](?:_?[0-9])*\.?)(?:[eE][+-]?[0-9](?:_?[0-9])*)?$`)
	specialRe = regexp.MustCompile(`(?i)^[+-]?(?:inf|infinity|nan)$`)
)

// Coerce converts a raw cell. It tries an integer first, then a float, and
// otherwise keeps the text unchanged; it never fails.
//
// Accepted forms:
//   - integers: optional sign, ASCII digits, single underscores between
//     digits, surrounding white space ignored
//   - floats: decimal and exponent forms with the same underscore rule, plus
//     inf, infinity and nan in any case with an optional sign
//
// Integers outside the int64 range are coerced as floats.
func Coerce(raw string) Value {
	s := strings.TrimFunc(raw, isSpace)

	if intRe.MatchString(s) {
		if i, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64); err == nil {
			return IntValue(i)
		}
	}

	if specialRe.MatchString(s) {
		lower := strings.ToLower(s)
		neg := strings.HasPrefix(lower, "-")
		if strings.TrimLeft(lower, "+-") == "nan" {
			return FloatValue(math.NaN())
		}
		if neg {
			return FloatValue(math.Inf(-1))
		}
		return FloatValue(math.Inf(1))
	}

	if floatRe.MatchString(s) {
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
		if err == nil || errors.Is(err, strconv.ErrRange) {
			return FloatValue(f)
		}
	}

	return TextValue(raw)
}

// isSpace matches white space the way number parsing strips it, which
// includes the ASCII information separators.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

// less orders two values of the same numeric kind.
func less(a, b Value) bool {
	if a.Kind == Integer {
		return a.Int < b.Int
	}
	return a.Float < b.Float
}
