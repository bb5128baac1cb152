package dedupe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/database"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/metrics"
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

func record(partner, product string, year int, created time.Time) model.TradeRecord {
	return model.TradeRecord{
		HS2Code:        "01",
		HS4Code:        "0101",
		HS6Code:        "010121",
		HS10Code:       "0101210000",
		ProductName:    product,
		Measure:        "head",
		ExportVolume:   10,
		ExportPrice:    2.5,
		ImportVolume:   1,
		ImportPrice:    0.5,
		TradingPartner: partner,
		Year:           year,
		HSGroup:        "Live animals",
		CreatedAt:      created,
	}
}

func TestResolver_EarliestCopySurvives(t *testing.T) {
	db := setupSQLite(t)
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	// insert the later copy first so ids do not line up with timestamps
	later := record("Germany", "Horses", 2020, t2)
	earlier := record("Germany", "Horses", 2020, t1)
	require.NoError(t, db.Create(&later).Error)
	require.NoError(t, db.Create(&earlier).Error)

	r := NewResolver(db, nil, nil)
	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &DuplicateStats{TotalRecords: 2, DuplicateGroups: 1, TotalDuplicates: 1, UniqueRecords: 1}, stats)

	removed, err := r.Remove(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var left []model.TradeRecord
	require.NoError(t, db.Find(&left).Error)
	require.Len(t, left, 1)
	assert.Equal(t, earlier.ID, left[0].ID)
}

func TestResolver_RemoveThenStatsIsClean(t *testing.T) {
	db := setupSQLite(t)
	base := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	var records []model.TradeRecord
	for i := 0; i < 3; i++ {
		records = append(records, record("Germany", "Horses", 2020, base.Add(time.Duration(i)*time.Minute)))
	}
	for i := 0; i < 2; i++ {
		records = append(records, record("France", "Horses", 2020, base.Add(time.Duration(i)*time.Minute)))
	}
	records = append(records,
		record("Germany", "Horses", 2021, base),
		record("Germany", "Cattle", 2020, base),
	)
	differentPrice := record("Germany", "Horses", 2020, base)
	differentPrice.ExportPrice = 9
	records = append(records, differentPrice)
	require.NoError(t, db.Create(&records).Error)

	r := NewResolver(db, nil, nil)
	before, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(8), before.TotalRecords)
	assert.Equal(t, int64(2), before.DuplicateGroups)
	assert.Equal(t, int64(3), before.TotalDuplicates)
	assert.Equal(t, int64(5), before.UniqueRecords)

	removed, err := r.Remove(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before.TotalDuplicates, removed)

	after, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.DuplicateGroups)
	assert.Equal(t, int64(0), after.TotalDuplicates)
	assert.Equal(t, before.TotalRecords-before.TotalDuplicates, after.UniqueRecords)
	assert.Equal(t, after.TotalRecords, after.UniqueRecords)
}

func TestResolver_NullsMatchDefaults(t *testing.T) {
	db := setupSQLite(t)
	created := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Exec(`INSERT INTO trade_records
		(hs_2_code, hs_4_code, hs_6_code, hs_10_code, product_name, measure, export_volume, export_price,
		 import_volume, import_price, trading_partner, year, hs_group, created_at)
		VALUES ('', '', '', '', 'Horses', NULL, 0, 0, 0, 0, NULL, 2020, NULL, ?)`, created).Error)
	normalized := model.TradeRecord{ProductName: "Horses", Year: 2020, CreatedAt: created.Add(time.Second)}
	require.NoError(t, db.Create(&normalized).Error)

	stats, err := NewResolver(db, nil, nil).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DuplicateGroups)
	assert.Equal(t, int64(1), stats.TotalDuplicates)
}

func TestResolver_EmptyStore(t *testing.T) {
	db := setupSQLite(t)
	calls := 0
	r := NewResolver(db, nil, func() { calls++ })

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &DuplicateStats{}, stats)

	removed, err := r.Remove(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Zero(t, calls)
}

func TestResolver_RemoveRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM trade_records WHERE id IN`).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	m := metrics.New()
	removed, err := NewResolver(db, m, nil).Remove(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Zero(t, removed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupeErrors.WithLabelValues("remove")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolver_StatsFailureIsZeroed(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "trade_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT COUNT\(\*\) AS duplicate_groups`).
		WillReturnError(errors.New("connection reset"))

	stats, err := NewResolver(db, nil, nil).Stats(context.Background())
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	assert.Equal(t, &DuplicateStats{}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
