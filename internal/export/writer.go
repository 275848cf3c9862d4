// Package export serializes record sets to the strict delimited report
// format and validates written files.
//
// Format contract: tab field delimiter, linefeed record separator, UTF-8 with
// a byte-order-mark prefix, every field quote-wrapped (empty fields included),
// backslash as the escape character with embedded quotes doubled, null values
// rendered as an empty quoted field, and a header row first. The same
// contract governs per-lender exports, the combined all-lenders file, and the
// reader used for validation and the union step.
package export

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"lenderpulse/internal/records"
	"lenderpulse/internal/sanitize"
)

const (
	delimiter       = '\t'
	recordSeparator = '\n'
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Writer writes record sets as strict delimited files.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer. A nil logger falls back to slog.Default().
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write serializes the set to path and then re-reads the file to check its
// structure. Structural mismatches come back as warnings, not errors: the
// file stays as written either way. Only I/O failures are errors.
func (w *Writer) Write(path string, set *records.Set) ([]string, error) {
	w.logger.Info("writing export",
		"path", path,
		"columns", len(set.Columns),
		"rows", set.NumRows(),
	)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(utf8BOM); err != nil {
		return nil, fmt.Errorf("write BOM: %w", err)
	}

	buf := bufio.NewWriter(f)
	if err := writeLine(buf, headerFields(set.Columns)); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for i, row := range set.Rows {
		fields := make([]string, len(row))
		for j, v := range row {
			fields[j] = v.Render(sanitize.TimeLayout)
		}
		if err := writeLine(buf, fields); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("flush export file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close export file: %w", err)
	}

	warnings := w.validateWritten(path, set.Columns)
	return warnings, nil
}

func headerFields(columns []string) []string {
	return append([]string(nil), columns...)
}

func writeLine(buf *bufio.Writer, fields []string) error {
	for i, field := range fields {
		if i > 0 {
			if err := buf.WriteByte(delimiter); err != nil {
				return err
			}
		}
		if _, err := buf.WriteString(quote(field)); err != nil {
			return err
		}
	}
	return buf.WriteByte(recordSeparator)
}

// quote wraps a field value in quotes, doubling embedded quotes and escaping
// backslashes. Empty and null values both become "".
func quote(field string) string {
	var b strings.Builder
	b.Grow(len(field) + 2)
	b.WriteByte('"')
	for _, r := range field {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`""`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// validateWritten re-opens a just-written file and checks its header against
// the expected column list and its first data row's field count against the
// expected width. Silent column shift from an unescaped delimiter is the
// highest-risk failure mode of a delimited export; this is best-effort
// detection, not prevention, so findings are warnings only.
func (w *Writer) validateWritten(path string, expected []string) []string {
	var warnings []string

	written, err := ReadFile(path)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("validate %s: %v", path, err))
		w.logger.Warn("export validation failed to re-read file", "path", path, "error", err)
		return warnings
	}

	if !equalColumns(written.Columns, expected) {
		warnings = append(warnings, fmt.Sprintf(
			"header mismatch in %s: expected %v, got %v", path, expected, written.Columns))
		w.logger.Warn("export header mismatch",
			"path", path, "expected", expected, "got", written.Columns)
	}
	if written.NumRows() > 0 && len(written.Rows[0]) != len(expected) {
		warnings = append(warnings, fmt.Sprintf(
			"row width mismatch in %s: expected %d fields, got %d", path, len(expected), len(written.Rows[0])))
		w.logger.Warn("export row width mismatch",
			"path", path, "expected", len(expected), "got", len(written.Rows[0]))
	}
	return warnings
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadFile parses a strict delimited file back into a record set. All values
// come back as strings; an empty field is null. The BOM is tolerated but not
// required.
func ReadFile(path string) (*records.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export file: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	rows, err := parseRecords(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse export file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("export file %s has no header", path)
	}

	columns := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		columns[i] = v.Str()
	}

	set := records.NewSet(columns...)
	// Width mismatches surface via the caller's structural checks.
	set.Rows = append(set.Rows, rows[1:]...)
	return set, nil
}

// parseRecords splits file content into records, honoring quoting, doubled
// quotes, and backslash escapes. A linefeed inside a quoted field belongs to
// the field, not the record structure, so records are delimited only by
// linefeeds outside quotes.
func parseRecords(content string) ([]records.Row, error) {
	runes := []rune(content)
	var rows []records.Row
	i := 0
	for i < len(runes) {
		row, next, err := parseRecord(runes, i)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
		i = next
	}
	return rows, nil
}

func parseRecord(runes []rune, i int) (records.Row, int, error) {
	var row records.Row
	for {
		field, next, err := parseField(runes, i)
		if err != nil {
			return nil, 0, err
		}
		if field == "" {
			row = append(row, records.Null())
		} else {
			row = append(row, records.String(field))
		}
		if next >= len(runes) {
			return row, next, nil
		}
		switch runes[next] {
		case delimiter:
			i = next + 1
		case recordSeparator:
			return row, next + 1, nil
		default:
			return nil, 0, fmt.Errorf("unexpected character %q at offset %d", runes[next], next)
		}
	}
}

func parseField(runes []rune, i int) (string, int, error) {
	if i >= len(runes) {
		return "", i, nil
	}
	if runes[i] != '"' {
		// Unquoted: read to the next delimiter or record separator.
		j := i
		for j < len(runes) && runes[j] != delimiter && runes[j] != recordSeparator {
			j++
		}
		return string(runes[i:j]), j, nil
	}

	var b strings.Builder
	j := i + 1
	for j < len(runes) {
		switch runes[j] {
		case '\\':
			if j+1 < len(runes) {
				b.WriteRune(runes[j+1])
				j += 2
				continue
			}
			b.WriteRune('\\')
			j++
		case '"':
			if j+1 < len(runes) && runes[j+1] == '"' {
				b.WriteRune('"')
				j += 2
				continue
			}
			return b.String(), j + 1, nil
		default:
			b.WriteRune(runes[j])
			j++
		}
	}
	return "", i, fmt.Errorf("unterminated quoted field at offset %d", i)
}
