package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSourceUnreadable reports that the uploaded spreadsheet could not be
// read at all: unsupported format, corrupt content, no header or no data.
var ErrSourceUnreadable = errors.New("source unreadable")

var supportedExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
}

// SupportedExtension reports whether files named like name can be ingested.
func SupportedExtension(name string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(name))]
}

// RowFunc receives each non-blank data row in file order.
type RowFunc func(row RawRow) error

// ReadRows streams the data rows of the spreadsheet in r to fn and returns
// the number of rows delivered. The format is chosen from the extension of
// name. The first non-blank row is the header; blank rows are skipped.
func ReadRows(ctx context.Context, name string, r io.Reader, fn RowFunc) (int, error) {
	var (
		n   int
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		n, err = readWorkbook(ctx, r, fn)
	case ".csv":
		n, err = readCSV(ctx, r, fn)
	default:
		return 0, fmt.Errorf("%w: unsupported file type %q", ErrSourceUnreadable, filepath.Ext(name))
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no data rows", ErrSourceUnreadable)
	}
	return n, nil
}

// rowSource yields raw cell strings one row at a time; ok is false at the end.
type rowSource func() (cols []string, ok bool, err error)

func readWorkbook(ctx context.Context, r io.Reader, fn RowFunc) (int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("%w: workbook has no sheets", ErrSourceUnreadable)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}
	defer rows.Close()

	next := func() ([]string, bool, error) {
		if !rows.Next() {
			return nil, false, rows.Error()
		}
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		return cols, true, err
	}
	return streamRows(ctx, next, fn)
}

func readCSV(ctx context.Context, r io.Reader, fn RowFunc) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	next := func() ([]string, bool, error) {
		cols, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return cols, true, nil
	}
	return streamRows(ctx, next, fn)
}

func streamRows(ctx context.Context, next rowSource, fn RowFunc) (int, error) {
	var (
		header []string
		count  int
	)
	for line := 0; ; line++ {
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return count, err
			}
		}

		cols, ok, err := next()
		if err != nil {
			return count, fmt.Errorf("%w: row %d: %v", ErrSourceUnreadable, line+1, err)
		}
		if !ok {
			break
		}
		if isBlank(cols) {
			continue
		}

		if header == nil {
			header, err = parseHeader(cols)
			if err != nil {
				return 0, err
			}
			continue
		}

		row := make(RawRow, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(cols) {
				row[h] = cellFromString(cols[i])
			} else {
				row[h] = Absent()
			}
		}
		count++
		if err := fn(row); err != nil {
			return count, err
		}
	}

	if header == nil {
		return 0, fmt.Errorf("%w: missing header row", ErrSourceUnreadable)
	}
	return count, nil
}

// parseHeader copies the header row, keeping only recognized column titles.
// Unknown columns, and later columns naming a field already seen, are blanked
// so their cells are never collected.
func parseHeader(cols []string) ([]string, error) {
	header := make([]string, len(cols))
	seen := make(map[string]bool, len(columnFields))
	known := 0
	for i, c := range cols {
		c = strings.TrimPrefix(c, "\ufeff")
		field, ok := FieldForHeader(c)
		if !ok || seen[field] {
			continue
		}
		seen[field] = true
		header[i] = c
		known++
	}
	if known == 0 {
		return nil, fmt.Errorf("%w: header row has no recognized columns", ErrSourceUnreadable)
	}
	return header, nil
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
