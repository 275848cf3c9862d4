package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lenderpulse/internal/records"
)

// Union reads every delimited export in inDir, concatenates their rows, and
// writes one combined file at outPath in the same format. Every input file
// must carry the same header as the first file read; files that do not are
// logged and skipped, matching the per-file failure isolation of the rest of
// the pipeline. A missing input directory or an empty one is an error.
func (w *Writer) Union(ctx context.Context, inDir, outPath string) ([]string, error) {
	entries, err := os.ReadDir(inDir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		files = append(files, e.Name())
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no export files found in %s", inDir)
	}
	sort.Strings(files)

	w.logger.InfoContext(ctx, "combining exports", "dir", inDir, "files", len(files))

	var combined *records.Set
	loaded := 0
	for _, name := range files {
		path := filepath.Join(inDir, name)
		set, err := ReadFile(path)
		if err != nil {
			w.logger.ErrorContext(ctx, "skipping unreadable export", "file", name, "error", err)
			continue
		}
		if combined == nil {
			combined = set
			loaded++
			continue
		}
		if !equalColumns(set.Columns, combined.Columns) {
			w.logger.ErrorContext(ctx, "skipping export with mismatched header",
				"file", name, "expected", combined.Columns, "got", set.Columns)
			continue
		}
		combined.Rows = append(combined.Rows, set.Rows...)
		loaded++
	}
	if combined == nil {
		return nil, fmt.Errorf("no export files could be read from %s", inDir)
	}

	w.logger.InfoContext(ctx, "writing combined export",
		"path", outPath, "files", loaded, "rows", combined.NumRows())

	warnings, err := w.Write(outPath, combined)
	if err != nil {
		return warnings, fmt.Errorf("write combined export: %w", err)
	}
	return warnings, nil
}
