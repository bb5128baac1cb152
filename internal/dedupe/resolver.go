// Package dedupe finds and removes trade records that repeat the business
// fields of an earlier record.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/metrics"
)

// ErrDuplicateOperation wraps any failure of the stats or removal queries.
var ErrDuplicateOperation = errors.New("duplicate operation failed")

// keyColumns are the business fields two records must share to count as
// duplicates. NULL strings compare as '' and NULL numbers as 0, matching how
// the normalizer fills missing cells.
var keyColumns = []string{
	"COALESCE(trading_partner, '')",
	"COALESCE(product_name, '')",
	"COALESCE(hs_10_code, '')",
	"COALESCE(year, 0)",
	"COALESCE(import_volume, 0)",
	"COALESCE(import_price, 0)",
	"COALESCE(export_volume, 0)",
	"COALESCE(export_price, 0)",
	"COALESCE(measure, '')",
	"COALESCE(hs_group, '')",
}

var duplicateKey = strings.Join(keyColumns, ", ")

var statsQuery = `SELECT COUNT(*) AS duplicate_groups, CAST(COALESCE(SUM(cnt - 1), 0) AS BIGINT) AS total_duplicates
FROM (SELECT COUNT(*) AS cnt FROM trade_records GROUP BY ` + duplicateKey + ` HAVING COUNT(*) > 1) AS dup`

// The earliest created_at of each group survives; id breaks timestamp ties.
var removeQuery = `DELETE FROM trade_records WHERE id IN (
SELECT id FROM (
SELECT id, ROW_NUMBER() OVER (PARTITION BY ` + duplicateKey + ` ORDER BY created_at ASC, id ASC) AS rn
FROM trade_records) AS ranked WHERE rn > 1)`

// DuplicateStats summarizes duplicate groups in the store.
type DuplicateStats struct {
	TotalRecords    int64 `json:"total_records"`
	DuplicateGroups int64 `json:"duplicate_groups"`
	TotalDuplicates int64 `json:"total_duplicates"`
	UniqueRecords   int64 `json:"unique_records"`
}

// Resolver computes duplicate statistics and removes duplicates.
type Resolver struct {
	db        *gorm.DB
	metrics   *metrics.Metrics
	onRemoved func()
}

// NewResolver returns a resolver over db. onRemoved, when set, runs after a
// removal that deleted at least one row.
func NewResolver(db *gorm.DB, m *metrics.Metrics, onRemoved func()) *Resolver {
	return &Resolver{db: db, metrics: m, onRemoved: onRemoved}
}

// Stats counts records and duplicate groups without modifying anything. On
// failure it returns zeroed stats together with an ErrDuplicateOperation.
func (r *Resolver) Stats(ctx context.Context) (*DuplicateStats, error) {
	db := r.db.WithContext(ctx)
	stats := &DuplicateStats{}

	if err := db.Table("trade_records").Count(&stats.TotalRecords).Error; err != nil {
		return r.statsFailed(ctx, fmt.Errorf("%w: counting records: %w", ErrDuplicateOperation, err))
	}

	var row struct {
		DuplicateGroups int64
		TotalDuplicates int64
	}
	if err := db.Raw(statsQuery).Scan(&row).Error; err != nil {
		return r.statsFailed(ctx, fmt.Errorf("%w: counting duplicates: %w", ErrDuplicateOperation, err))
	}

	stats.DuplicateGroups = row.DuplicateGroups
	stats.TotalDuplicates = row.TotalDuplicates
	stats.UniqueRecords = stats.TotalRecords - stats.TotalDuplicates
	return stats, nil
}

func (r *Resolver) statsFailed(ctx context.Context, err error) (*DuplicateStats, error) {
	logging.Component(ctx, "dedupe").ErrorContext(ctx, "duplicate stats failed", "error", err)
	r.metrics.ObserveDedupeError("stats")
	return &DuplicateStats{}, err
}

// Remove deletes every member of each duplicate group except the earliest
// created one, in a single transaction. It returns the number of rows
// deleted, or 0 and an ErrDuplicateOperation when the transaction is rolled
// back.
func (r *Resolver) Remove(ctx context.Context) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Exec(removeQuery)
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%w: removing duplicates: %w", ErrDuplicateOperation, err)
		logging.Component(ctx, "dedupe").ErrorContext(ctx, "duplicate removal failed", "error", err)
		r.metrics.ObserveDedupeError("remove")
		return 0, err
	}

	logging.Component(ctx, "dedupe").InfoContext(ctx, "duplicates removed", "removed_count", removed)
	r.metrics.ObserveDuplicatesRemoved(removed)
	if removed > 0 && r.onRemoved != nil {
		r.onRemoved()
	}
	return removed, nil
}
