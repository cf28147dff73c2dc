package source

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-cli/internal/normalize"
)

// DecodeCSV reads a header row followed by data rows into raw records keyed
// by header. Blank cells are omitted so field fallbacks still apply.
func DecodeCSV(ctx context.Context, r io.Reader, delimiter rune) ([]normalize.RawRecord, error) {
	rowCh, errCh := streamCSV(ctx, r, delimiter)

	var (
		header []string
		recs   []normalize.RawRecord
	)
	for row := range rowCh {
		if header == nil {
			header = cleanHeader(row)
			continue
		}
		if rec := zipRow(header, row); len(rec) > 0 {
			recs = append(recs, rec)
		}
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return recs, nil
}

// streamCSV sends rows on the returned channel until EOF, a parse error or
// cancellation. Both channels are closed when reading stops.
func streamCSV(ctx context.Context, r io.Reader, delimiter rune) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if delimiter != 0 {
			reader.Comma = delimiter
		}
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1 // scraper exports drop trailing empty columns

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "source: csv cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "source: csv read row")
				return
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "source: csv cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// DecodeXLSX reads the named sheet (or the first one) of an xlsx workbook
// the same way DecodeCSV reads a CSV file.
func DecodeXLSX(path, sheetName string) ([]normalize.RawRecord, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "source: xlsx open file")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("source: xlsx sheet %q not found", sheetName)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, nil
		}
		sheet = f.Sheets[0]
	}

	var (
		header []string
		recs   []normalize.RawRecord
	)
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if header == nil {
			header = cleanHeader(cells)
			continue
		}
		if rec := zipRow(header, cells); len(rec) > 0 {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func cleanHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func zipRow(header, row []string) normalize.RawRecord {
	rec := normalize.RawRecord{}
	for i, v := range row {
		if i >= len(header) || header[i] == "" {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			rec[header[i]] = v
		}
	}
	return rec
}
