// Package query serves read and maintenance operations over persisted trade
// records: filtered search, CSV export, dashboard filter options and summary
// statistics.
package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
	"github.com/mahadalirequestan-ship-it/worldbank/utils"
)

// ProductOptionsLimit caps the product list returned by FilterOptions.
const ProductOptionsLimit = 1000

const filterOptionsKey = "filter-options"

// ExportHeader is the header row of the CSV export.
var ExportHeader = []string{
	"Davlat", "Mahsulot", "HS Kod", "Yil", "Import Hajmi", "Import Qiymati ($)",
	"Export Hajmi", "Export Qiymati ($)", "O'lchov", "HS Guruh",
}

const recordViewColumns = `id, COALESCE(trading_partner, '') AS country, COALESCE(product_name, '') AS product_name,
COALESCE(hs_10_code, '') AS hs_code, COALESCE(year, 0) AS year,
COALESCE(import_volume, 0) AS import_volume, COALESCE(import_price, 0) AS import_price,
COALESCE(export_volume, 0) AS export_volume, COALESCE(export_price, 0) AS export_price,
COALESCE(measure, '') AS measure, COALESCE(hs_group, '') AS hs_group`

const selectionViewColumns = `COALESCE(trading_partner, '') AS country, COALESCE(product_name, '') AS name,
COALESCE(hs_10_code, '') AS code, COALESCE(year, 0) AS year,
COALESCE(import_volume, 0) AS import_volume, COALESCE(import_price, 0) AS import_price,
COALESCE(export_volume, 0) AS export_volume, COALESCE(export_price, 0) AS export_price,
COALESCE(measure, '') AS measure, COALESCE(hs_group, '') AS hs_group`

// Service runs queries against the trade_records table.
type Service struct {
	db    *gorm.DB
	cache *gocache.Cache
}

// NewService returns a query service. Filter options are cached for ttl;
// a non-positive ttl disables caching.
func NewService(db *gorm.DB, ttl time.Duration) *Service {
	s := &Service{db: db}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

// Search returns records matching f, newest first.
func (s *Service) Search(ctx context.Context, f model.Filter) ([]model.RecordView, error) {
	views := []model.RecordView{}
	err := s.filtered(ctx, f).
		Select(recordViewColumns).
		Order("created_at DESC, id DESC").
		Limit(utils.GetLimit(f.Limit)).
		Scan(&views).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search trade records: %w", err)
	}
	return views, nil
}

// Select returns records whose partner, product and year are each in the
// corresponding list. Empty lists do not constrain.
func (s *Service) Select(ctx context.Context, sel model.Selection) ([]model.SelectionView, error) {
	q := s.db.WithContext(ctx).Model(&model.TradeRecord{})
	if len(sel.Countries) > 0 {
		q = q.Where("trading_partner IN ?", sel.Countries)
	}
	if len(sel.Products) > 0 {
		q = q.Where("product_name IN ?", sel.Products)
	}
	if len(sel.Years) > 0 {
		q = q.Where("year IN ?", sel.Years)
	}

	views := []model.SelectionView{}
	if err := q.Select(selectionViewColumns).Order("id").Scan(&views).Error; err != nil {
		return nil, fmt.Errorf("failed to select trade records: %w", err)
	}
	return views, nil
}

// ExportCSV streams every record matching f to w as CSV, header first. The
// limit of f is ignored. It returns the number of data rows written.
func (s *Service) ExportCSV(ctx context.Context, f model.Filter, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	q := s.filtered(ctx, f).Select(recordViewColumns).Order("created_at DESC, id DESC")
	rows, err := q.Rows()
	if err != nil {
		return 0, fmt.Errorf("failed to query trade records: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var v model.RecordView
		if err := q.ScanRows(rows, &v); err != nil {
			return n, fmt.Errorf("failed to scan trade record: %w", err)
		}
		if err := cw.Write(exportRow(v)); err != nil {
			return n, fmt.Errorf("failed to write csv row: %w", err)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("failed to read trade records: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("failed to flush csv: %w", err)
	}
	return n, nil
}

func exportRow(v model.RecordView) []string {
	return []string{
		v.Country,
		v.ProductName,
		v.HSCode,
		strconv.Itoa(v.Year),
		formatFloat(v.ImportVolume),
		formatFloat(v.ImportPrice),
		formatFloat(v.ExportVolume),
		formatFloat(v.ExportPrice),
		v.Measure,
		v.HSGroup,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// filtered applies the partial-match and year filters shared by Search and
// ExportCSV.
func (s *Service) filtered(ctx context.Context, f model.Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.TradeRecord{})
	if f.Country != nil && strings.TrimSpace(*f.Country) != "" {
		q = q.Where(`LOWER(trading_partner) LIKE ? ESCAPE '\'`, containsPattern(*f.Country))
	}
	if f.Product != nil && strings.TrimSpace(*f.Product) != "" {
		q = q.Where(`LOWER(product_name) LIKE ? ESCAPE '\'`, containsPattern(*f.Product))
	}
	if f.Year != nil {
		q = q.Where("year = ?", *f.Year)
	}
	return q
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}

// FilterOptions returns the partners, products and years available for
// filtering. Results are cached until the TTL expires or Invalidate is called.
func (s *Service) FilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(filterOptionsKey); ok {
			return cached.(*model.FilterOptions), nil
		}
	}

	opts, err := s.loadFilterOptions(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(filterOptionsKey, opts)
	}
	return opts, nil
}

func (s *Service) loadFilterOptions(ctx context.Context) (*model.FilterOptions, error) {
	db := s.db.WithContext(ctx)
	opts := &model.FilterOptions{
		Countries: []string{},
		Products:  []model.ProductOption{},
		Years:     []int{},
	}

	err := db.Model(&model.TradeRecord{}).
		Distinct("trading_partner").
		Where("trading_partner IS NOT NULL AND TRIM(trading_partner) <> ''").
		Order("trading_partner").
		Pluck("trading_partner", &opts.Countries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}

	var total int64
	err = db.Model(&model.TradeRecord{}).
		Distinct("product_name").
		Where("product_name IS NOT NULL AND TRIM(product_name) <> ''").
		Count(&total).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	var products []struct {
		ProductName string `gorm:"column:product_name"`
		HS10Code    string `gorm:"column:hs_10_code"`
		HS6Code     string `gorm:"column:hs_6_code"`
	}
	err = db.Model(&model.TradeRecord{}).
		Distinct("product_name", "hs_10_code", "hs_6_code").
		Where("product_name IS NOT NULL AND TRIM(product_name) <> ''").
		Order("product_name, hs_10_code, hs_6_code").
		Limit(ProductOptionsLimit).
		Scan(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	for _, p := range products {
		opts.Products = append(opts.Products, model.ProductOption{
			Name:        p.ProductName,
			ProductName: p.ProductName,
			HS10Code:    p.HS10Code,
			HS6Code:     p.HS6Code,
		})
	}

	err = db.Model(&model.TradeRecord{}).
		Distinct("year").
		Where("year BETWEEN ? AND ?", model.MinYear, model.MaxYear).
		Order("year DESC").
		Pluck("year", &opts.Years).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list years: %w", err)
	}

	opts.Pagination = model.Pagination{
		Total:   total,
		Loaded:  len(opts.Products),
		HasMore: int64(len(opts.Products)) < total,
	}
	return opts, nil
}

// Invalidate drops cached filter options.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(filterOptionsKey)
	}
}

// Summary aggregates record counts and price totals.
func (s *Service) Summary(ctx context.Context) (*model.Summary, error) {
	db := s.db.WithContext(ctx)
	summary := &model.Summary{
		YearStats:    []model.YearCount{},
		CountryStats: []model.CountryCount{},
	}

	if err := db.Model(&model.TradeRecord{}).Count(&summary.TotalRecords).Error; err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	var totals struct {
		ImportTotal float64
		ExportTotal float64
	}
	err := db.Model(&model.TradeRecord{}).
		Select("COALESCE(SUM(import_price), 0) AS import_total, COALESCE(SUM(export_price), 0) AS export_total").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum prices: %w", err)
	}
	summary.TotalImportValue = totals.ImportTotal
	summary.TotalExportValue = totals.ExportTotal

	err = db.Model(&model.TradeRecord{}).
		Select("COALESCE(year, 0) AS year, COUNT(*) AS count").
		Group("year").
		Order("year").
		Scan(&summary.YearStats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group by year: %w", err)
	}

	err = db.Model(&model.TradeRecord{}).
		Select("COALESCE(trading_partner, '') AS country, COUNT(*) AS count").
		Group("trading_partner").
		Order("COUNT(*) DESC, trading_partner").
		Limit(10).
		Scan(&summary.CountryStats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group by partner: %w", err)
	}

	return summary, nil
}

// ClearAll deletes every trade record and returns how many were removed.
func (s *Service) ClearAll(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.TradeRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear trade records: %w", res.Error)
	}
	s.Invalidate()
	slog.InfoContext(ctx, "trade records cleared", "deleted_count", res.RowsAffected)
	return res.RowsAffected, nil
}
