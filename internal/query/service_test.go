package query

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/database"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB) {
	t.Helper()
	records := []model.TradeRecord{
		{HS10Code: "0101210000", HS6Code: "010121", ProductName: "Live horses", TradingPartner: "Germany", Year: 2020, ImportPrice: 10, ExportPrice: 1, ImportVolume: 3, Measure: "head", HSGroup: "Animals", CreatedAt: base},
		{HS10Code: "0102210000", HS6Code: "010221", ProductName: "Live cattle", TradingPartner: "germany", Year: 2021, ImportPrice: 5, ExportPrice: 2, CreatedAt: base.Add(time.Minute)},
		{HS10Code: "1001110000", HS6Code: "100111", ProductName: "Durum wheat", TradingPartner: "Kazakhstan", Year: 2021, ImportPrice: 7.5, CreatedAt: base.Add(2 * time.Minute)},
		{HS10Code: "1001110000", HS6Code: "100111", ProductName: "Durum wheat", TradingPartner: "Russia", Year: 2022, ExportPrice: 4, CreatedAt: base.Add(3 * time.Minute)},
		{HS10Code: "2710000000", HS6Code: "271000", ProductName: "Oil 100%_pure", TradingPartner: "", Year: 2022, CreatedAt: base.Add(4 * time.Minute)},
	}
	require.NoError(t, db.Create(&records).Error)
}

func ptr[T any](v T) *T { return &v }

func TestSearch_Filters(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, 0)
	ctx := context.Background()

	all, err := svc.Search(ctx, model.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "Oil 100%_pure", all[0].ProductName)
	assert.Equal(t, "Live horses", all[4].ProductName)

	germany, err := svc.Search(ctx, model.Filter{Country: ptr("GERM")})
	require.NoError(t, err)
	require.Len(t, germany, 2)
	assert.Equal(t, "Live cattle", germany[0].ProductName)
	assert.Equal(t, "0102210000", germany[0].HSCode)

	wheat, err := svc.Search(ctx, model.Filter{Product: ptr("wheat"), Year: ptr(2022)})
	require.NoError(t, err)
	require.Len(t, wheat, 1)
	assert.Equal(t, "Russia", wheat[0].Country)
	assert.Equal(t, 4.0, wheat[0].ExportPrice)
	assert.Equal(t, 0.0, wheat[0].ImportPrice)

	literal, err := svc.Search(ctx, model.Filter{Product: ptr("100%_")})
	require.NoError(t, err)
	require.Len(t, literal, 1)

	wildcard, err := svc.Search(ctx, model.Filter{Product: ptr("%")})
	require.NoError(t, err)
	assert.Len(t, wildcard, 1)

	limited, err := svc.Search(ctx, model.Filter{Limit: ptr(2)})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := svc.Search(ctx, model.Filter{Country: ptr("Atlantis")})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSelect(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, 0)

	got, err := svc.Select(context.Background(), model.Selection{
		Countries: []string{"Kazakhstan", "Russia"},
		Products:  []string{"Durum wheat"},
		Years:     []int{2021},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Kazakhstan", got[0].Country)
	assert.Equal(t, "Durum wheat", got[0].Name)
	assert.Equal(t, "1001110000", got[0].Code)

	everything, err := svc.Select(context.Background(), model.Selection{})
	require.NoError(t, err)
	assert.Len(t, everything, 5)
}

func TestExportCSV_HeaderOnly(t *testing.T) {
	db := setupSQLite(t)
	svc := NewService(db, 0)

	var buf bytes.Buffer
	n, err := svc.ExportCSV(context.Background(), model.Filter{}, &buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ExportHeader, rows[0])
}

func TestExportCSV_Rows(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, 0)

	var buf bytes.Buffer
	n, err := svc.ExportCSV(context.Background(), model.Filter{Country: ptr("germany"), Limit: ptr(1)}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Germany", "Live horses", "0101210000", "2020", "3", "10", "0", "1", "head", "Animals"}, rows[2])
}

func TestFilterOptions_CachedUntilInvalidated(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, time.Minute)
	ctx := context.Background()

	opts, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Germany", "Kazakhstan", "Russia", "germany"}, opts.Countries)
	assert.Equal(t, []int{2022, 2021, 2020}, opts.Years)
	require.Len(t, opts.Products, 4)
	assert.Equal(t, "Durum wheat", opts.Products[0].Name)
	assert.Equal(t, "100111", opts.Products[0].HS6Code)
	assert.Equal(t, model.Pagination{Total: 4, Loaded: 4, HasMore: false}, opts.Pagination)

	require.NoError(t, db.Create(&model.TradeRecord{ProductName: "Barley", TradingPartner: "Iran", Year: 1995}).Error)

	cached, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cached.Countries, "Iran")

	svc.Invalidate()
	fresh, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Contains(t, fresh.Countries, "Iran")
	assert.Contains(t, fresh.Years, 1995)
}

func TestSummary(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, 0)

	s, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.TotalRecords)
	assert.InDelta(t, 22.5, s.TotalImportValue, 1e-9)
	assert.InDelta(t, 7.0, s.TotalExportValue, 1e-9)
	assert.Equal(t, []model.YearCount{{Year: 2020, Count: 1}, {Year: 2021, Count: 2}, {Year: 2022, Count: 2}}, s.YearStats)
	require.Len(t, s.CountryStats, 5)
}

func TestClearAll(t *testing.T) {
	db := setupSQLite(t)
	seed(t, db)
	svc := NewService(db, time.Minute)
	ctx := context.Background()

	_, err := svc.FilterOptions(ctx)
	require.NoError(t, err)

	deleted, err := svc.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)

	opts, err := svc.FilterOptions(ctx)
	require.NoError(t, err)
	assert.Empty(t, opts.Countries)
	assert.Empty(t, opts.Products)
}
