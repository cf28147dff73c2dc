// Package source adapts external lead feeds into raw records for the
// ingestion pipeline.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/normalize"
)

// Adapter produces raw records for one platform. An adapter error halts only
// that adapter's contribution to a run.
type Adapter interface {
	Name() string
	Platform() model.Platform
	Fetch(ctx context.Context) ([]normalize.RawRecord, error)
}

// FileAdapter reads a scraper dump of raw records. The format follows the
// file extension: .csv, .tsv, .xlsx, and JSON array or JSON lines otherwise.
type FileAdapter struct {
	path     string
	platform model.Platform
}

// NewFileAdapter creates a FileAdapter for path.
func NewFileAdapter(path string, platform model.Platform) *FileAdapter {
	return &FileAdapter{path: path, platform: platform}
}

// Name implements Adapter.
func (a *FileAdapter) Name() string { return "file:" + filepath.Base(a.path) }

// Platform implements Adapter.
func (a *FileAdapter) Platform() model.Platform { return a.platform }

// Fetch implements Adapter.
func (a *FileAdapter) Fetch(ctx context.Context) ([]normalize.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(a.path))
	switch ext {
	case ".xlsx":
		recs, err := DecodeXLSX(a.path, "")
		if err != nil {
			return nil, eris.Wrapf(err, "source: decode %s", a.path)
		}
		return recs, nil
	case ".csv", ".tsv":
		f, err := os.Open(a.path)
		if err != nil {
			return nil, eris.Wrapf(err, "source: read %s", a.path)
		}
		defer f.Close() //nolint:errcheck
		delim := ','
		if ext == ".tsv" {
			delim = '\t'
		}
		recs, err := DecodeCSV(ctx, f, delim)
		if err != nil {
			return nil, eris.Wrapf(err, "source: decode %s", a.path)
		}
		return recs, nil
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", a.path)
	}
	recs, err := DecodeRecords(data)
	if err != nil {
		return nil, eris.Wrapf(err, "source: decode %s", a.path)
	}
	return recs, nil
}

// DecodeRecords parses either a JSON array of objects or one object per line.
// Blank lines are skipped.
func DecodeRecords(data []byte) ([]normalize.RawRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var recs []normalize.RawRecord
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, eris.Wrap(err, "source: decode json array")
		}
		return recs, nil
	}

	var recs []normalize.RawRecord
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec normalize.RawRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, eris.Wrapf(err, "source: decode line %d", line)
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "source: scan lines")
	}
	return recs, nil
}

// Static serves a fixed set of records. The HTTP ingest endpoint uses it to
// push a request body through the same pipeline path as other adapters.
type Static struct {
	name     string
	platform model.Platform
	records  []normalize.RawRecord
}

// NewStatic creates a Static adapter.
func NewStatic(name string, platform model.Platform, records []normalize.RawRecord) *Static {
	return &Static{name: name, platform: platform, records: records}
}

// Name implements Adapter.
func (s *Static) Name() string { return s.name }

// Platform implements Adapter.
func (s *Static) Platform() model.Platform { return s.platform }

// Fetch implements Adapter.
func (s *Static) Fetch(context.Context) ([]normalize.RawRecord, error) { return s.records, nil }
