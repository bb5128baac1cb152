package ingest

import "strings"

// Canonical record fields a spreadsheet column can map to.
const (
	FieldHS2Code        = "hs_2_code"
	FieldHS4Code        = "hs_4_code"
	FieldHS6Code        = "hs_6_code"
	FieldHS10Code       = "hs_10_code"
	FieldProductName    = "product_name"
	FieldMeasure        = "measure"
	FieldExportVolume   = "export_volume"
	FieldExportPrice    = "export_price"
	FieldImportVolume   = "import_volume"
	FieldImportPrice    = "import_price"
	FieldTradingPartner = "trading_partner"
	FieldYear           = "year"
	FieldHSGroup        = "hs_group"
)

// Headers are the spreadsheet column titles in their canonical spelling, in
// the order they are written when a record is rendered back to a row.
var Headers = []string{
	"2 HS code",
	"4 HS code",
	"6 HS code",
	"10 HS code",
	"Product name",
	"Measure",
	"Export volume",
	"Export price (1000 USD)",
	"Import volume",
	"Import price (1000 USD)",
	"Trading partner",
	"Year",
	"HS Group",
}

var columnFields = map[string]string{
	"2 hs code":               FieldHS2Code,
	"4 hs code":               FieldHS4Code,
	"6 hs code":               FieldHS6Code,
	"10 hs code":              FieldHS10Code,
	"product name":            FieldProductName,
	"measure":                 FieldMeasure,
	"export volume":           FieldExportVolume,
	"export price (1000 usd)": FieldExportPrice,
	"import volume":           FieldImportVolume,
	"import price (1000 usd)": FieldImportPrice,
	"trading partner":         FieldTradingPartner,
	"year":                    FieldYear,
	"hs group":                FieldHSGroup,
}

// FieldForHeader maps a spreadsheet header to its record field. Headers are
// trimmed and compared case-insensitively; unknown headers report false.
func FieldForHeader(header string) (string, bool) {
	field, ok := columnFields[strings.ToLower(strings.TrimSpace(header))]
	return field, ok
}
