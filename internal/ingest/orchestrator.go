package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/metrics"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

// Stage names the step an ingestion is in; it is logged on every transition.
type Stage string

const (
	StageReading     Stage = "reading"
	StageNormalizing Stage = "normalizing"
	StageLoading     Stage = "loading"
	StageAggregating Stage = "aggregating"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Report is the outcome of one ingestion call.
type Report struct {
	Success            bool           `json:"success"`
	TotalRecords       int            `json:"total_records"`
	EligibleRecords    int            `json:"eligible_records"`
	RejectedRecords    int            `json:"rejected_records"`
	InsertedRecords    int            `json:"inserted_records"`
	Batches            int            `json:"batches"`
	FailedBatches      []BatchFailure `json:"failed_batches"`
	ProcessTimeSeconds float64        `json:"process_time_seconds"`
	Message            string         `json:"message"`
	Error              string         `json:"error,omitempty"`
}

// Options tunes an Ingestor. Zero values select the defaults.
type Options struct {
	BatchSize       int
	BatchPause      time.Duration
	LoadConcurrency int
	// OnLoaded runs after an ingestion that committed at least one record.
	OnLoaded func()
}

// Ingestor runs the read, normalize, partition and load pipeline.
type Ingestor struct {
	sink    RecordSink
	pool    *Pool
	metrics *metrics.Metrics
	opts    Options
}

// NewIngestor wires an ingestor. pool is shared by every ingestion in the
// process; m may be nil.
func NewIngestor(sink RecordSink, pool *Pool, m *metrics.Metrics, opts Options) *Ingestor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.LoadConcurrency <= 0 {
		opts.LoadConcurrency = 1
	}
	if pool == nil {
		pool = NewPool(1)
	}
	return &Ingestor{sink: sink, pool: pool, metrics: m, opts: opts}
}

// parsed is the output of the read and normalize steps.
type parsed struct {
	total    int
	records  []model.TradeRecord
	rejected map[RejectReason]int
}

// IngestFile ingests the spreadsheet at path.
func (i *Ingestor) IngestFile(ctx context.Context, path string) *Report {
	start := time.Now()
	f, err := os.Open(path)
	if err != nil {
		return i.fail(ctx, filepath.Base(path), start, fmt.Errorf("%w: %v", ErrSourceUnreadable, err))
	}
	defer f.Close()
	return i.ingest(ctx, filepath.Base(path), f, start)
}

// Ingest reads the spreadsheet named name from r and loads its records. The
// format is chosen from the extension of name. Ingest never returns nil.
func (i *Ingestor) Ingest(ctx context.Context, name string, r io.Reader) *Report {
	return i.ingest(ctx, name, r, time.Now())
}

func (i *Ingestor) ingest(ctx context.Context, name string, r io.Reader, start time.Time) *Report {
	finish := i.metrics.IngestStarted()
	log := logging.Component(ctx, "ingest").With("file", name)

	log.InfoContext(ctx, "ingestion stage", "stage", StageReading)
	p, err := Submit(ctx, i.pool, func(ctx context.Context) (*parsed, error) {
		return readAndNormalize(ctx, name, r)
	})
	if err != nil {
		finish(false)
		return i.fail(ctx, name, start, err)
	}

	eligible := len(p.records)
	rejected := p.total - eligible
	log.InfoContext(ctx, "ingestion stage",
		"stage", StageNormalizing,
		"total_records", p.total,
		"eligible_records", eligible,
		"rejected_records", rejected,
	)
	for reason, n := range p.rejected {
		i.metrics.AddRows(string(reason), n)
	}

	batches := Partition(p.records, i.opts.BatchSize)
	log.InfoContext(ctx, "ingestion stage", "stage", StageLoading, "batches", len(batches))
	inserted, failures := i.loadAll(ctx, batches)

	log.InfoContext(ctx, "ingestion stage", "stage", StageAggregating)
	i.metrics.AddRows("inserted", inserted)
	i.metrics.AddRows("failed", eligible-inserted)

	report := &Report{
		Success:         true,
		TotalRecords:    p.total,
		EligibleRecords: eligible,
		RejectedRecords: rejected,
		InsertedRecords: inserted,
		Batches:         len(batches),
		FailedBatches:   failures,
	}
	if err := ctx.Err(); err != nil && len(failures) > 0 {
		report.Success = false
		report.Error = err.Error()
	}
	report.Message = summarize(report)
	report.ProcessTimeSeconds = roundCentis(time.Since(start))

	if inserted > 0 && i.opts.OnLoaded != nil {
		i.opts.OnLoaded()
	}

	stage := StageDone
	if !report.Success {
		stage = StageFailed
	}
	log.InfoContext(ctx, "ingestion stage",
		"stage", stage,
		"inserted_records", inserted,
		"failed_batches", len(failures),
		"process_time_seconds", report.ProcessTimeSeconds,
	)
	finish(report.Success)
	return report
}

func readAndNormalize(ctx context.Context, name string, r io.Reader) (*parsed, error) {
	p := &parsed{rejected: make(map[RejectReason]int)}
	total, err := ReadRows(ctx, name, r, func(row RawRow) error {
		rec, reason, ok := Normalize(row)
		if !ok {
			p.rejected[reason]++
			return nil
		}
		p.records = append(p.records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.total = total
	return p, nil
}

// loadAll loads batches in order, or with bounded parallelism when
// LoadConcurrency is above one. Failures are returned ordered by batch.
func (i *Ingestor) loadAll(ctx context.Context, batches [][]model.TradeRecord) (int, []BatchFailure) {
	failures := make([]*BatchFailure, len(batches))
	counts := make([]int, len(batches))

	if i.opts.LoadConcurrency <= 1 {
		for idx, batch := range batches {
			wait := i.opts.BatchPause
			if idx == 0 {
				wait = 0
			}
			if !pause(ctx, wait) {
				markCancelled(ctx, batches, failures, idx)
				break
			}
			counts[idx], failures[idx] = i.loadOne(ctx, idx, batch)
		}
	} else {
		var g errgroup.Group
		scheduled := len(batches)
		g.SetLimit(i.opts.LoadConcurrency)
		for idx, batch := range batches {
			if ctx.Err() != nil {
				scheduled = idx
				break
			}
			g.Go(func() error {
				counts[idx], failures[idx] = i.loadOne(ctx, idx, batch)
				return nil
			})
		}
		_ = g.Wait()
		if scheduled < len(batches) {
			markCancelled(ctx, batches, failures, scheduled)
		}
	}

	inserted := 0
	out := []BatchFailure{}
	for idx := range batches {
		inserted += counts[idx]
		if failures[idx] != nil {
			out = append(out, *failures[idx])
		}
	}
	return inserted, out
}

func (i *Ingestor) loadOne(ctx context.Context, idx int, batch []model.TradeRecord) (int, *BatchFailure) {
	n, failure := loadBatch(ctx, i.sink, idx, batch)
	i.metrics.ObserveBatch(failure == nil)
	if failure != nil {
		logging.Component(ctx, "ingest").ErrorContext(ctx, "batch load failed",
			"batch", failure.Batch,
			"size", failure.Size,
			"error", failure.Error,
		)
		return 0, failure
	}
	logging.Component(ctx, "ingest").DebugContext(ctx, "batch committed", "batch", idx+1, "records", n)
	return n, nil
}

// markCancelled records every batch from idx on as failed with the context
// error.
func markCancelled(ctx context.Context, batches [][]model.TradeRecord, failures []*BatchFailure, idx int) {
	err := context.Cause(ctx)
	if err == nil {
		err = context.Canceled
	}
	for j := idx; j < len(batches); j++ {
		failures[j] = &BatchFailure{Batch: j + 1, Size: len(batches[j]), Error: err.Error()}
	}
}

// pause waits d between batches; it reports false if ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (i *Ingestor) fail(ctx context.Context, name string, start time.Time, err error) *Report {
	logging.Component(ctx, "ingest").ErrorContext(ctx, "ingestion stage", "stage", StageFailed, "file", name, "error", err)

	msg := "Failed to read spreadsheet"
	if !errors.Is(err, ErrSourceUnreadable) {
		msg = "Ingestion aborted"
	}
	return &Report{
		Success:            false,
		FailedBatches:      []BatchFailure{},
		ProcessTimeSeconds: roundCentis(time.Since(start)),
		Message:            msg,
		Error:              err.Error(),
	}
}

func summarize(r *Report) string {
	if len(r.FailedBatches) == 0 {
		return fmt.Sprintf("Successfully inserted %d of %d records", r.InsertedRecords, r.TotalRecords)
	}
	return fmt.Sprintf("Inserted %d of %d records; %d of %d batches failed",
		r.InsertedRecords, r.TotalRecords, len(r.FailedBatches), r.Batches)
}

func roundCentis(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
