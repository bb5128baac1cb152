package ingest

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

// RawRow is one spreadsheet data row keyed by its header text.
type RawRow map[string]Cell

// RejectReason explains why a row was excluded before loading.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectEmptyProductName RejectReason = "empty_product_name"
	RejectInvalidYear      RejectReason = "invalid_year"
	RejectYearOutOfRange   RejectReason = "year_out_of_range"
)

// Normalize converts a raw row into a canonical record. When the row cannot
// be persisted ok is false and reason says why. Normalize never fails in any
// other way: malformed numerics become 0 and malformed text is cleaned.
func Normalize(row RawRow) (rec model.TradeRecord, reason RejectReason, ok bool) {
	fields := make(map[string]Cell, len(columnFields))
	from := make(map[string]string, len(columnFields))
	for header, cell := range row {
		field, known := FieldForHeader(header)
		if !known {
			continue
		}
		if prev, seen := fields[field]; seen && !preferCell(cell, header, prev, from[field]) {
			continue
		}
		fields[field] = cell
		from[field] = header
	}

	rec = model.TradeRecord{
		HS2Code:        codeField(fields[FieldHS2Code], model.HS2CodeMaxLen),
		HS4Code:        codeField(fields[FieldHS4Code], model.HS4CodeMaxLen),
		HS6Code:        codeField(fields[FieldHS6Code], model.HS6CodeMaxLen),
		HS10Code:       codeField(fields[FieldHS10Code], model.HS10CodeMaxLen),
		ProductName:    textField(fields[FieldProductName], model.ProductNameMaxLen),
		Measure:        textField(fields[FieldMeasure], model.MeasureMaxLen),
		ExportVolume:   amountField(fields[FieldExportVolume]),
		ExportPrice:    amountField(fields[FieldExportPrice]),
		ImportVolume:   amountField(fields[FieldImportVolume]),
		ImportPrice:    amountField(fields[FieldImportPrice]),
		TradingPartner: textField(fields[FieldTradingPartner], model.TradingPartnerMaxLen),
		HSGroup:        textField(fields[FieldHSGroup], model.HSGroupMaxLen),
	}

	if rec.ProductName == "" {
		return model.TradeRecord{}, RejectEmptyProductName, false
	}

	year, valid := yearField(fields[FieldYear])
	if !valid {
		return model.TradeRecord{}, RejectInvalidYear, false
	}
	if year < model.MinYear || year > model.MaxYear {
		return model.TradeRecord{}, RejectYearOutOfRange, false
	}
	rec.Year = int(year)

	return rec, RejectNone, true
}

// RowFromRecord renders a record back into a raw row using the canonical
// headers. Normalizing the result yields the same record.
func RowFromRecord(rec model.TradeRecord) RawRow {
	text := func(s string) Cell {
		if s == "" {
			return Absent()
		}
		return Text(s)
	}
	return RawRow{
		Headers[0]:  text(rec.HS2Code),
		Headers[1]:  text(rec.HS4Code),
		Headers[2]:  text(rec.HS6Code),
		Headers[3]:  text(rec.HS10Code),
		Headers[4]:  text(rec.ProductName),
		Headers[5]:  text(rec.Measure),
		Headers[6]:  Number(rec.ExportVolume),
		Headers[7]:  Number(rec.ExportPrice),
		Headers[8]:  Number(rec.ImportVolume),
		Headers[9]:  Number(rec.ImportPrice),
		Headers[10]: text(rec.TradingPartner),
		Headers[11]: Number(float64(rec.Year)),
		Headers[12]: text(rec.HSGroup),
	}
}

func textField(c Cell, maxLen int) string {
	s := strings.TrimSpace(c.String())
	if strings.EqualFold(s, "nan") {
		return ""
	}
	if utf8.RuneCountInString(s) > maxLen {
		s = strings.TrimSpace(string([]rune(s)[:maxLen]))
	}
	return s
}

// codeField is textField plus left zero padding for digit-only codes, which
// lose their leading zeros when the spreadsheet stores them as numbers.
func codeField(c Cell, maxLen int) string {
	s := textField(c, maxLen)
	if s == "" || len(s) >= maxLen || !isDigits(s) {
		return s
	}
	return strings.Repeat("0", maxLen-len(s)) + s
}

// preferCell reports whether cell, read under header, should replace prev when
// two headers map to the same field. A present cell beats an absent one; ties
// go to the lexically smaller header.
func preferCell(cell Cell, header string, prev Cell, prevHeader string) bool {
	if (cell.Kind == CellAbsent) != (prev.Kind == CellAbsent) {
		return prev.Kind == CellAbsent
	}
	return header < prevHeader
}

func amountField(c Cell) float64 {
	f, ok := c.Float()
	if !ok || f <= 0 {
		return 0
	}
	return f
}

func yearField(c Cell) (float64, bool) {
	f, ok := c.Float()
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return f, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
