// Package server exposes ingestion, queries and duplicate cleanup over HTTP.
package server

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/config"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/dedupe"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/metrics"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/middleware"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/uploads"
)

// Ingester loads one spreadsheet.
type Ingester interface {
	Ingest(ctx context.Context, name string, r io.Reader) *ingest.Report
}

// Querier serves reads over stored records.
type Querier interface {
	Search(ctx context.Context, f model.Filter) ([]model.RecordView, error)
	Select(ctx context.Context, sel model.Selection) ([]model.SelectionView, error)
	ExportCSV(ctx context.Context, f model.Filter, w io.Writer) (int, error)
	FilterOptions(ctx context.Context) (*model.FilterOptions, error)
	Summary(ctx context.Context) (*model.Summary, error)
	ClearAll(ctx context.Context) (int64, error)
}

// DuplicateResolver reports and removes duplicate records.
type DuplicateResolver interface {
	Stats(ctx context.Context) (*dedupe.DuplicateStats, error)
	Remove(ctx context.Context) (int64, error)
}

// Deps are the components the handlers delegate to.
type Deps struct {
	Ingester   Ingester
	Stager     *uploads.Stager
	Query      Querier
	Duplicates DuplicateResolver
	Metrics    *metrics.Metrics
	// Health reports whether the record store is reachable.
	Health func(ctx context.Context) error
}

// Handler holds the HTTP handlers.
type Handler struct {
	deps          Deps
	maxUploadSize int64
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	h := &Handler{deps: deps, maxUploadSize: cfg.Server.MaxUploadSizeBytes()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Metrics))
	r.Use(middleware.CORS(&cfg.CORS))
	r.MaxMultipartMemory = 32 << 20

	r.POST("/upload-excel", middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst), h.UploadSpreadsheet)

	api := r.Group("/api")
	{
		api.GET("/filter-options", h.FilterOptions)
		api.GET("/trade-data", h.TradeData)
		api.POST("/get-data", h.SelectData)
		api.GET("/export-data", h.ExportData)
		api.GET("/duplicate-stats", h.DuplicateStats)
		api.DELETE("/remove-duplicates", h.RemoveDuplicates)
	}

	r.GET("/stats", h.Stats)
	r.DELETE("/clear-data", h.ClearData)
	r.GET("/health", h.Health)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return r
}
