package export

import (
	"context"
	"os"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXSheet appends rows to a sheet in a local workbook, creating the file
// and header row on first use.
type XLSXSheet struct {
	mu    sync.Mutex
	path  string
	sheet string
}

// NewXLSXSheet creates an XLSXSheet. sheet defaults to "Leads".
func NewXLSXSheet(path, sheet string) *XLSXSheet {
	if sheet == "" {
		sheet = "Leads"
	}
	return &XLSXSheet{path: path, sheet: sheet}
}

// Name implements Target.
func (x *XLSXSheet) Name() string { return "xlsx" }

// Append implements Target. A URL already present in the sheet is skipped.
func (x *XLSXSheet) Append(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	f, sh, err := x.open()
	if err != nil {
		return err
	}

	for i, r := range sh.Rows {
		if i == 0 || len(r.Cells) < 3 {
			continue
		}
		if r.Cells[2].Value == row.URL {
			return nil
		}
	}

	r := sh.AddRow()
	r.AddCell().SetString(row.Name)
	r.AddCell().SetString(row.Platform)
	r.AddCell().SetString(row.URL)
	r.AddCell().SetFloat(row.Score)
	r.AddCell().SetString(row.Rationale)

	if err := f.Save(x.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", x.path)
	}
	return nil
}

// Rows reads back every data row as strings.
func (x *XLSXSheet) Rows() ([][]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	_, sh, err := x.open()
	if err != nil {
		return nil, err
	}
	var out [][]string
	for i, r := range sh.Rows {
		if i == 0 {
			continue
		}
		cells := make([]string, 0, len(r.Cells))
		for _, c := range r.Cells {
			cells = append(cells, c.Value)
		}
		out = append(out, cells)
	}
	return out, nil
}

func (x *XLSXSheet) open() (*xlsx.File, *xlsx.Sheet, error) {
	var f *xlsx.File
	if _, err := os.Stat(x.path); err == nil {
		f, err = xlsx.OpenFile(x.path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "xlsx: open %s", x.path)
		}
	} else if os.IsNotExist(err) {
		f = xlsx.NewFile()
	} else {
		return nil, nil, eris.Wrapf(err, "xlsx: stat %s", x.path)
	}

	if sh, ok := f.Sheet[x.sheet]; ok {
		return f, sh, nil
	}
	sh, err := f.AddSheet(x.sheet)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "xlsx: add sheet %s", x.sheet)
	}
	header := sh.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}
	return f, sh, nil
}
