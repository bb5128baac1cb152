package model

import "time"

// Field limits of the trade_records columns, in characters.
const (
	HS2CodeMaxLen        = 2
	HS4CodeMaxLen        = 4
	HS6CodeMaxLen        = 6
	HS10CodeMaxLen       = 10
	ProductNameMaxLen    = 500
	MeasureMaxLen        = 50
	HSGroupMaxLen        = 200
	TradingPartnerMaxLen = 100
)

// Valid reporting years, inclusive.
const (
	MinYear = 1990
	MaxYear = 2030
)

// TradeRecord is one row of bilateral trade statistics for a commodity.
type TradeRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	HS2Code        string    `gorm:"type:varchar(2);column:hs_2_code;index;not null" json:"hs_2_code"`
	HS4Code        string    `gorm:"type:varchar(4);column:hs_4_code;index;not null" json:"hs_4_code"`
	HS6Code        string    `gorm:"type:varchar(6);column:hs_6_code;index;not null" json:"hs_6_code"`
	HS10Code       string    `gorm:"type:varchar(10);column:hs_10_code;index;not null" json:"hs_10_code"`
	ProductName    string    `gorm:"type:varchar(500);column:product_name;not null" json:"product_name"`
	Measure        string    `gorm:"type:varchar(50);column:measure" json:"measure"`
	ExportVolume   float64   `gorm:"column:export_volume;not null" json:"export_volume"`
	ExportPrice    float64   `gorm:"column:export_price;not null" json:"export_price"`
	ImportVolume   float64   `gorm:"column:import_volume;not null" json:"import_volume"`
	ImportPrice    float64   `gorm:"column:import_price;not null" json:"import_price"`
	TradingPartner string    `gorm:"type:varchar(100);column:trading_partner" json:"trading_partner"`
	Year           int       `gorm:"column:year;index" json:"year"`
	HSGroup        string    `gorm:"type:varchar(200);column:hs_group" json:"hs_group"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

// RecordView is the projection returned by the filtered query endpoint.
type RecordView struct {
	ID           uint    `json:"id"`
	Country      string  `json:"country"`
	ProductName  string  `json:"product_name"`
	HSCode       string  `gorm:"column:hs_code" json:"hs_code"`
	Year         int     `json:"year"`
	ImportVolume float64 `json:"import_volume"`
	ImportPrice  float64 `json:"import_price"`
	ExportVolume float64 `json:"export_volume"`
	ExportPrice  float64 `json:"export_price"`
	Measure      string  `json:"measure"`
	HSGroup      string  `json:"hs_group"`
}

// SelectionView is the projection returned by the multi-select endpoint.
type SelectionView struct {
	Country      string  `json:"country"`
	Name         string  `json:"name"`
	Code         string  `json:"code"`
	Year         int     `json:"year"`
	ImportVolume float64 `json:"import_volume"`
	ImportPrice  float64 `json:"import_price"`
	ExportVolume float64 `json:"export_volume"`
	ExportPrice  float64 `json:"export_price"`
	Measure      string  `json:"measure"`
	HSGroup      string  `json:"hs_group"`
}

// Filter narrows the filtered query and the CSV export. Country and Product
// are case-insensitive substring matches; Year is exact.
type Filter struct {
	Country *string `json:"country,omitempty"`
	Product *string `json:"product,omitempty"`
	Year    *int    `json:"year,omitempty"`
	Limit   *int    `json:"limit,omitempty"`
}

// Selection is an exact-match multi-value filter. Empty slices do not filter.
type Selection struct {
	Countries []string `json:"countries"`
	Products  []string `json:"products"`
	Years     []int    `json:"years"`
}

// ProductOption is one entry of the product list in FilterOptions.
type ProductOption struct {
	Name        string `json:"name"`
	ProductName string `json:"product_name"`
	HS10Code    string `json:"hs_10_code"`
	HS6Code     string `json:"hs_6_code"`
}

type Pagination struct {
	Total   int64 `json:"total"`
	Loaded  int   `json:"loaded"`
	HasMore bool  `json:"has_more"`
}

// FilterOptions lists the values available for the dashboard filters.
type FilterOptions struct {
	Countries  []string        `json:"countries"`
	Products   []ProductOption `json:"products"`
	Years      []int           `json:"years"`
	Pagination Pagination      `json:"pagination"`
}

type YearCount struct {
	Year  int   `json:"year"`
	Count int64 `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

// Summary aggregates the whole table for the statistics page.
type Summary struct {
	TotalRecords     int64          `json:"total_records"`
	TotalImportValue float64        `json:"total_import_value"`
	TotalExportValue float64        `json:"total_export_value"`
	YearStats        []YearCount    `json:"year_stats"`
	CountryStats     []CountryCount `json:"country_stats"`
}
