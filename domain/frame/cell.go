package frame

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies what a Cell holds
type Kind uint8

const (
	KindEmpty Kind = iota
	KindString
	KindNumber
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "empty"
	}
}

// Cell is a single typed spreadsheet value. The zero value is an empty cell.
// Numeric cells parsed from text that is not the canonical form of their
// value keep that text in s.
type Cell struct {
	kind Kind
	s    string
	f    float64
}

// Str creates a text cell
func Str(s string) Cell {
	return Cell{kind: KindString, s: s}
}

// Num creates a numeric cell
func Num(f float64) Cell {
	return Cell{kind: KindNumber, f: f}
}

// Empty returns a missing value
func Empty() Cell {
	return Cell{}
}

// Parse turns raw spreadsheet text into a cell: blank text and NaN are empty,
// text that parses as a finite float is numeric, anything else is kept as text.
// Numbers keep their raw text, so 18-digit client ids and zero-padded zip
// codes print back exactly as read.
func Parse(raw string) Cell {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "NaN" {
		return Empty()
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return Str(trimmed)
	}
	c := Num(f)
	if formatNumber(f) != trimmed {
		c.s = trimmed
	}
	return c
}

func integerLiteral(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatNumber renders integral values without an exponent, so ids and years
// survive a text round trip, and everything else in shortest form.
func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (c Cell) Kind() Kind {
	return c.kind
}

func (c Cell) IsEmpty() bool {
	return c.kind == KindEmpty
}

// String renders the cell as text. Numbers use the shortest representation
// that round-trips, so Num(3).String() == "3" and Num(1681042018).String()
// == "1681042018".
func (c Cell) String() string {
	switch c.kind {
	case KindString:
		return c.s
	case KindNumber:
		if c.s != "" {
			return c.s
		}
		return formatNumber(c.f)
	default:
		return ""
	}
}

// Exact reports whether a numeric cell is fully described by its float value.
// Integer text that the value does not reproduce, such as "00123" or an id
// beyond float64 precision, is not.
func (c Cell) Exact() bool {
	return c.kind == KindNumber && (c.s == "" || !integerLiteral(c.s))
}

// Float returns the numeric value of the cell. Text cells are parsed.
func (c Cell) Float() (float64, bool) {
	switch c.kind {
	case KindNumber:
		return c.f, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(c.s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Equal compares cells by their textual form, which makes Num(3) equal Str("3")
func (c Cell) Equal(other Cell) bool {
	if c.kind == KindEmpty || other.kind == KindEmpty {
		return c.kind == other.kind
	}
	return c.String() == other.String()
}
