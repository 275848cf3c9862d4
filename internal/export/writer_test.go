package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lenderpulse/internal/records"
)

func sampleSet(t *testing.T) *records.Set {
	t.Helper()
	set := records.NewSet("exportedLender", "time", "lvr", "Tier")
	require.NoError(t, set.Append(records.Row{
		records.String("alpha"),
		records.Time(time.Date(2025, time.June, 1, 10, 30, 5, 0, time.UTC)),
		records.Number(0.8),
		records.String("1"),
	}))
	require.NoError(t, set.Append(records.Row{
		records.String("beta"),
		records.Null(),
		records.Null(),
		records.Null(),
	}))
	return set
}

func TestWriter_WriteFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results_alpha.csv")

	warnings, err := NewWriter(nil).Write(path, sampleSet(t))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// UTF-8 BOM prefix.
	require.True(t, len(raw) > 3)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, raw[:3])

	lines := strings.Split(strings.TrimSuffix(string(raw[3:]), "\n"), "\n")
	require.Len(t, lines, 3)

	// Every field quote-wrapped, tab-delimited, nulls as empty quoted fields.
	assert.Equal(t, "\"exportedLender\"\t\"time\"\t\"lvr\"\t\"Tier\"", lines[0])
	assert.Equal(t, "\"alpha\"\t\"2025-06-01 10:30:05+0000\"\t\"0.8\"\t\"1\"", lines[1])
	assert.Equal(t, "\"beta\"\t\"\"\t\"\"\t\"\"", lines[2])
}

func TestWriter_EscapesQuotesAndBackslashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escapes.csv")

	set := records.NewSet("notes")
	require.NoError(t, set.Append(records.Row{records.String(`say "hi" c:\tmp`)}))

	_, err := NewWriter(nil).Write(path, set)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw[3:])
	assert.Contains(t, content, `"say ""hi"" c:\\tmp"`)

	// And the reader undoes both escapes.
	back, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, back.NumRows())
	assert.Equal(t, `say "hi" c:\tmp`, back.Rows[0][0].Str())
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.csv")
	set := sampleSet(t)

	_, err := NewWriter(nil).Write(path, set)
	require.NoError(t, err)

	back, err := ReadFile(path)
	require.NoError(t, err)

	// Header identical, every row the same width.
	assert.Equal(t, set.Columns, back.Columns)
	require.Equal(t, set.NumRows(), back.NumRows())
	for i, row := range back.Rows {
		assert.Len(t, row, len(set.Columns), "row %d", i)
	}

	// Empty fields read back as null.
	assert.True(t, back.Rows[1][1].IsNull())
	assert.True(t, back.Rows[1][3].IsNull())
}

func TestWriter_ValueWithTabStaysOneField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tabs.csv")
	set := records.NewSet("a", "b")
	require.NoError(t, set.Append(records.Row{records.String("left\tright"), records.String("x")}))

	warnings, err := NewWriter(nil).Write(path, set)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	back, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, back.NumRows())
	require.Len(t, back.Rows[0], 2)
	assert.Equal(t, "left\tright", back.Rows[0][0].Str())
}

func TestWriter_ValueWithNewlineRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newlines.csv")
	set := records.NewSet("notes", "Tier")
	require.NoError(t, set.Append(records.Row{records.String("line1\nline2"), records.String("1")}))
	require.NoError(t, set.Append(records.Row{records.String("plain"), records.String("2")}))

	// A linefeed inside a quoted field must not split the record, so the
	// post-write validation sees a clean file.
	warnings, err := NewWriter(nil).Write(path, set)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	back, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, back.NumRows())
	require.Len(t, back.Rows[0], 2)
	assert.Equal(t, "line1\nline2", back.Rows[0][0].Str())
	assert.Equal(t, "plain", back.Rows[1][0].Str())
}

func TestReadFile_MissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestUnion_CombinesFiles(t *testing.T) {
	dir := t.TempDir()
	outDir := t.TempDir()
	writer := NewWriter(nil)

	a := records.NewSet("exportedLender", "Tier")
	require.NoError(t, a.Append(records.Row{records.String("alpha"), records.String("1")}))
	_, err := writer.Write(filepath.Join(dir, "results_alpha.csv"), a)
	require.NoError(t, err)

	b := records.NewSet("exportedLender", "Tier")
	require.NoError(t, b.Append(records.Row{records.String("beta"), records.String("2")}))
	require.NoError(t, b.Append(records.Row{records.String("beta"), records.Null()}))
	_, err = writer.Write(filepath.Join(dir, "results_beta.csv"), b)
	require.NoError(t, err)

	outPath := filepath.Join(outDir, "all-lenders-exports.csv")
	warnings, err := writer.Union(context.Background(), dir, outPath)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	combined, err := ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"exportedLender", "Tier"}, combined.Columns)
	assert.Equal(t, 3, combined.NumRows())
}

func TestUnion_SkipsMismatchedHeader(t *testing.T) {
	dir := t.TempDir()
	writer := NewWriter(nil)

	a := records.NewSet("exportedLender", "Tier")
	require.NoError(t, a.Append(records.Row{records.String("alpha"), records.String("1")}))
	_, err := writer.Write(filepath.Join(dir, "results_alpha.csv"), a)
	require.NoError(t, err)

	odd := records.NewSet("something", "else", "entirely")
	require.NoError(t, odd.Append(records.Row{records.String("x"), records.String("y"), records.String("z")}))
	_, err = writer.Write(filepath.Join(dir, "results_odd.csv"), odd)
	require.NoError(t, err)

	outPath := filepath.Join(t.TempDir(), "combined.csv")
	_, err = writer.Union(context.Background(), dir, outPath)
	require.NoError(t, err)

	combined, err := ReadFile(outPath)
	require.NoError(t, err)
	// Only the first file's row survives; the mismatched file is skipped.
	assert.Equal(t, 1, combined.NumRows())
}

func TestUnion_MissingDirectory(t *testing.T) {
	writer := NewWriter(nil)
	_, err := writer.Union(context.Background(), filepath.Join(t.TempDir(), "absent"), filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
}

func TestUnion_EmptyDirectory(t *testing.T) {
	writer := NewWriter(nil)
	_, err := writer.Union(context.Background(), t.TempDir(), filepath.Join(t.TempDir(), "out.csv"))
	require.Error(t, err)
}
