package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

func sampleRecords(n int) []model.TradeRecord {
	out := make([]model.TradeRecord, n)
	for i := range out {
		out[i] = model.TradeRecord{
			HS2Code:     "01",
			ProductName: "Live horses",
			Year:        2020 + i%5,
		}
	}
	return out
}

func TestGormSink_InsertBatch_CommitsInChunks(t *testing.T) {
	db, mock := setupMockDB(t)
	sink := NewGormSink(db, 2)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "trade_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery(`INSERT INTO "trade_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectCommit()

	n, err := sink.InsertBatch(context.Background(), sampleRecords(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSink_InsertBatch_RollsBackOnError(t *testing.T) {
	db, mock := setupMockDB(t)
	sink := NewGormSink(db, 2)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "trade_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery(`INSERT INTO "trade_records"`).
		WillReturnError(errors.New("value too long for type character varying(2)"))
	mock.ExpectRollback()

	n, err := sink.InsertBatch(context.Background(), sampleRecords(3))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "value too long")
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSink_InsertBatch_Empty(t *testing.T) {
	db, mock := setupMockDB(t)
	sink := NewGormSink(db, 0)

	n, err := sink.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBatch_ReportsFailure(t *testing.T) {
	sink := &stubSink{fail: map[int]bool{1: true}}
	batch := sampleRecords(4)

	n, failure := loadBatch(context.Background(), sink, 0, batch)
	assert.Equal(t, 4, n)
	assert.Nil(t, failure)

	n, failure = loadBatch(context.Background(), sink, 1, batch)
	assert.Equal(t, 0, n)
	require.NotNil(t, failure)
	assert.Equal(t, 2, failure.Batch)
	assert.Equal(t, 4, failure.Size)
	assert.NotEmpty(t, failure.Error)
}
