package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mahadalirequestan-ship-it/worldbank/internal/ingest"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/logging"
	"github.com/mahadalirequestan-ship-it/worldbank/internal/trade/model"
)

// multipartOverhead is allowed on top of the file size limit for the
// multipart envelope.
const multipartOverhead = 1 << 20

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// UploadSpreadsheet handles POST /upload-excel.
func (h *Handler) UploadSpreadsheet(c *gin.Context) {
	ctx := c.Request.Context()
	log := logging.FromContext(ctx)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorJSON(c, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds the %d MB limit", h.maxUploadSize>>20))
			return
		}
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("failed to read uploaded file: %w", err))
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		errorJSON(c, http.StatusRequestEntityTooLarge, fmt.Errorf("file exceeds the %d MB limit", h.maxUploadSize>>20))
		return
	}
	if !ingest.SupportedExtension(header.Filename) {
		errorJSON(c, http.StatusBadRequest, errors.New("only .xlsx, .xlsm and .csv files are supported"))
		return
	}

	staged, err := h.deps.Stager.Stage(ctx, header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		log.Error("failed to stage upload", "file", header.Filename, "error", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to store uploaded file"))
		return
	}
	defer h.deps.Stager.Discard(ctx, staged)

	rc, err := h.deps.Stager.Open(ctx, staged)
	if err != nil {
		log.Error("failed to open staged upload", "key", staged.Key, "error", err)
		errorJSON(c, http.StatusInternalServerError, errors.New("failed to read uploaded file"))
		return
	}
	defer rc.Close()

	// A dropped connection must not leave the file half loaded.
	report := h.deps.Ingester.Ingest(context.WithoutCancel(ctx), staged.Name, rc)
	c.JSON(uploadStatus(report), report)
}

// uploadStatus is 422 when the file could not be ingested at all, 500 when
// any batch failed to load and 200 otherwise.
func uploadStatus(report *ingest.Report) int {
	switch {
	case !report.Success && report.InsertedRecords == 0 && len(report.FailedBatches) == 0:
		return http.StatusUnprocessableEntity
	case !report.Success || len(report.FailedBatches) > 0:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// FilterOptions handles GET /api/filter-options.
func (h *Handler) FilterOptions(c *gin.Context) {
	opts, err := h.deps.Query.FilterOptions(c.Request.Context())
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("failed to load filter options", "error", err)
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"countries":  opts.Countries,
		"products":   opts.Products,
		"years":      opts.Years,
		"pagination": opts.Pagination,
	})
}

// TradeData handles GET /api/trade-data.
func (h *Handler) TradeData(c *gin.Context) {
	f, err := filterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "records": []any{}, "total": 0})
		return
	}

	records, err := h.deps.Query.Search(c.Request.Context(), f)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("trade data query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "records": []any{}, "total": 0})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records, "total": len(records)})
}

// SelectData handles POST /api/get-data with form lists countries, products
// and years.
func (h *Handler) SelectData(c *gin.Context) {
	sel := model.Selection{
		Countries: nonEmpty(c.PostFormArray("countries")),
		Products:  nonEmpty(c.PostFormArray("products")),
	}
	for _, raw := range nonEmpty(c.PostFormArray("years")) {
		y, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": fmt.Sprintf("invalid year %q", raw), "data": []any{}})
			return
		}
		sel.Years = append(sel.Years, y)
	}

	data, err := h.deps.Query.Select(c.Request.Context(), sel)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("selection query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error(), "data": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
		"message": fmt.Sprintf("%d records found", len(data)),
	})
}

// ExportData handles GET /api/export-data.
func (h *Handler) ExportData(c *gin.Context) {
	if format := c.DefaultQuery("format", "csv"); format != "csv" {
		errorJSON(c, http.StatusBadRequest, errors.New("only csv export is supported"))
		return
	}
	f, err := filterFromQuery(c)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=trade_data.csv")
	n, err := h.deps.Query.ExportCSV(c.Request.Context(), f, c.Writer)
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("csv export failed", "rows_written", n, "error", err)
		if !c.Writer.Written() {
			c.Header("Content-Disposition", "")
			errorJSON(c, http.StatusInternalServerError, err)
		}
		return
	}
}

// DuplicateStats handles GET /api/duplicate-stats.
func (h *Handler) DuplicateStats(c *gin.Context) {
	stats, err := h.deps.Duplicates.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":          false,
			"error":            err.Error(),
			"total_records":    0,
			"duplicate_groups": 0,
			"total_duplicates": 0,
			"unique_records":   0,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"total_records":    stats.TotalRecords,
		"duplicate_groups": stats.DuplicateGroups,
		"total_duplicates": stats.TotalDuplicates,
		"unique_records":   stats.UniqueRecords,
	})
}

// RemoveDuplicates handles DELETE /api/remove-duplicates.
func (h *Handler) RemoveDuplicates(c *gin.Context) {
	removed, err := h.deps.Duplicates.Remove(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":       false,
			"error":         err.Error(),
			"removed_count": 0,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("%d duplicate records removed", removed),
		"removed_count": removed,
	})
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	summary, err := h.deps.Query.Summary(c.Request.Context())
	if err != nil {
		logging.FromContext(c.Request.Context()).Error("summary query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ClearData handles DELETE /clear-data.
func (h *Handler) ClearData(c *gin.Context) {
	deleted, err := h.deps.Query.ClearAll(c.Request.Context())
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       fmt.Sprintf("%d records deleted", deleted),
		"deleted_count": deleted,
	})
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	if h.deps.Health != nil {
		if err := h.deps.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "connected"})
}

// filterFromQuery reads country, product, year and limit query parameters.
func filterFromQuery(c *gin.Context) (model.Filter, error) {
	var f model.Filter
	if v := strings.TrimSpace(c.Query("country")); v != "" {
		f.Country = &v
	}
	if v := strings.TrimSpace(c.Query("product")); v != "" {
		f.Product = &v
	}
	if v := c.Query("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid year %q", v)
		}
		f.Year = &year
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = &limit
	}
	return f, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
