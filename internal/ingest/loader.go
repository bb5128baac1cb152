package ingest

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

// DefaultInsertChunkSize bounds the rows per INSERT statement so that a
// statement stays below the driver's bind parameter limit.
const DefaultInsertChunkSize = 1000

// RecordSink persists one batch of records atomically. On success it returns
// the number of rows written; on failure nothing of the batch is kept.
type RecordSink interface {
	InsertBatch(ctx context.Context, records []model.TradeRecord) (int, error)
}

// BatchFailure describes a batch that was rolled back.
type BatchFailure struct {
	Batch int    `json:"batch"`
	Size  int    `json:"size"`
	Error string `json:"error"`
}

// GormSink writes batches to the trade_records table, one transaction per
// batch.
type GormSink struct {
	db        *gorm.DB
	chunkSize int
}

// NewGormSink returns a sink writing through db. A non-positive chunkSize
// selects DefaultInsertChunkSize.
func NewGormSink(db *gorm.DB, chunkSize int) *GormSink {
	if chunkSize <= 0 {
		chunkSize = DefaultInsertChunkSize
	}
	return &GormSink{db: db, chunkSize: chunkSize}
}

// InsertBatch implements RecordSink.
func (s *GormSink) InsertBatch(ctx context.Context, records []model.TradeRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The enclosing transaction already makes the batch atomic; skip the
		// nested savepoint CreateInBatches would otherwise open.
		tx = tx.Session(&gorm.Session{SkipDefaultTransaction: true})
		if err := tx.CreateInBatches(records, s.chunkSize).Error; err != nil {
			return fmt.Errorf("failed to insert trade records: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// loadBatch runs one batch against sink and converts an error into a
// BatchFailure. index is zero-based; failures report it one-based.
func loadBatch(ctx context.Context, sink RecordSink, index int, batch []model.TradeRecord) (int, *BatchFailure) {
	n, err := sink.InsertBatch(ctx, batch)
	if err != nil {
		return 0, &BatchFailure{Batch: index + 1, Size: len(batch), Error: err.Error()}
	}
	return n, nil
}
