// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/planeboard/engine/internal/storage"
	"github.com/planeboard/engine/pkg/core"
)

// ExportVersion is the format version written to every export.
const ExportVersion = 1

// BoardExport is the root JSON structure of a board file.
type BoardExport struct {
	Version   int                `json:"version"`
	BoardID   string             `json:"boardId"`
	BoardName string             `json:"boardName,omitempty"`
	OpenedAt  time.Time          `json:"openedAt"`
	ClosedAt  time.Time          `json:"closedAt"`
	Objects   []core.BoardObject `json:"objects"`
	History   []Revision         `json:"history"`
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportFileName is <board id>_<closed at>.json, with .gz when compressed.
func exportFileName(boardID string, closedAt time.Time, compress bool) string {
	name := unsafeFileChars.ReplaceAllString(boardID, "_") + "_" + closedAt.Format("20060102_150405") + ".json"
	if compress {
		name += ".gz"
	}
	return name
}

func (b *Backend) exportJSON(rec *boardRecord, closedAt time.Time) error {
	export := BoardExport{
		Version:   ExportVersion,
		BoardID:   rec.board.ID,
		BoardName: rec.board.Name,
		OpenedAt:  rec.board.OpenedAt,
		ClosedAt:  closedAt,
		Objects:   rec.list(),
		History:   append([]Revision{}, rec.history...),
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(b.cfg.OutputDir, exportFileName(rec.board.ID, closedAt, b.cfg.CompressOutput))
	if err := writeExport(path, &export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = path
	b.lastExportMeta = storage.ExportMetadata{
		BoardID:     export.BoardID,
		BoardName:   export.BoardName,
		ObjectCount: len(export.Objects),
		Revisions:   len(export.History),
	}
	return nil
}

// writeExport encodes into a temp file in the target directory and renames
// it into place, so readers never see a partial export.
func writeExport(path string, export *BoardExport, compress bool) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var w io.Writer = tmp
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(tmp)
		w = gz
	}
	if err = json.NewEncoder(w).Encode(export); err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return fmt.Errorf("failed to finish gzip stream: %w", err)
		}
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadExport loads a board file written by the memory backend. Files ending
// in .gz are decompressed.
func ReadExport(path string) (*BoardExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open board file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var export BoardExport
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode board file: %w", err)
	}
	if export.Version > ExportVersion {
		return nil, fmt.Errorf("unsupported board file version %d", export.Version)
	}
	return &export, nil
}
