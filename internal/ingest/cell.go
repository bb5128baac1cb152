package ingest

import (
	"math"
	"strconv"
	"strings"
)

// CellKind tags the value held by a Cell.
type CellKind int

const (
	CellAbsent CellKind = iota
	CellText
	CellNumber
)

// Cell is one spreadsheet value. Exactly one of the text or number payloads
// is meaningful, selected by Kind.
type Cell struct {
	Kind CellKind
	text string
	num  float64
}

// Absent returns a cell for a missing value.
func Absent() Cell { return Cell{Kind: CellAbsent} }

// Text returns a cell holding a string value.
func Text(s string) Cell { return Cell{Kind: CellText, text: s} }

// Number returns a cell holding a numeric value.
func Number(f float64) Cell { return Cell{Kind: CellNumber, num: f} }

// String renders the cell the way it is stored in text columns. Absent cells
// render as the empty string and numbers in their shortest decimal form.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.text
	case CellNumber:
		if math.IsNaN(c.num) || math.IsInf(c.num, 0) {
			return ""
		}
		return strconv.FormatFloat(c.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float reports the numeric value of the cell. Text cells are parsed after
// trimming; ok is false for absent, unparseable or non-finite values.
func (c Cell) Float() (float64, bool) {
	var f float64
	switch c.Kind {
	case CellNumber:
		f = c.num
	case CellText:
		v, err := strconv.ParseFloat(strings.TrimSpace(c.text), 64)
		if err != nil {
			return 0, false
		}
		f = v
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// cellFromString converts raw spreadsheet text into a Cell. Blank strings
// are absent; everything else is kept as text so that leading zeros survive
// until the normalizer decides how to read the column.
func cellFromString(raw string) Cell {
	if strings.TrimSpace(raw) == "" {
		return Absent()
	}
	return Text(raw)
}
