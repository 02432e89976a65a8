package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/csharp-course-api/internal/service"
)

const (
	formatCSV  = "csv"
	formatXLSX = "xlsx"
)

func parseFormats(raw string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case formatCSV:
		return []string{formatCSV}, nil
	case formatXLSX:
		return []string{formatXLSX}, nil
	case "both":
		return []string{formatCSV, formatXLSX}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", raw)
	}
}

type fileExporter struct {
	exports service.ExportService
	dir     string
	formats []string
	logger  zerolog.Logger
}

func newFileExporter(exports service.ExportService, dir string, formats []string, logger zerolog.Logger) *fileExporter {
	if dir == "" {
		dir = "."
	}
	return &fileExporter{
		exports: exports,
		dir:     dir,
		formats: formats,
		logger:  logger.With().Str("component", "file_exporter").Logger(),
	}
}

// Export writes one file per format and returns the written paths. Files are written to a
// temporary name first so readers never see a partial sheet.
func (e *fileExporter) Export(ctx context.Context, now time.Time) ([]string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	stamp := now.UTC().Format("20060102-150405")
	paths := make([]string, 0, len(e.formats))
	for _, format := range e.formats {
		path := filepath.Join(e.dir, fmt.Sprintf("grades-%s.%s", stamp, format))
		write := e.exports.WriteCSV
		if format == formatXLSX {
			write = e.exports.WriteXLSX
		}
		if err := writeAtomically(path, func(w io.Writer) error { return write(ctx, w) }); err != nil {
			return paths, fmt.Errorf("write %s export: %w", format, err)
		}
		e.logger.Info().Str("path", path).Msg("grade export written")
		paths = append(paths, path)
	}
	return paths, nil
}

func writeAtomically(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
