// Package tier loads the static competitor classification table and performs
// the left join that annotates lender records with their competitive tier.
package tier

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"lenderpulse/internal/records"
)

// Column names in the lookup source and the joined output.
const (
	ColumnLender = "Lender"
	ColumnTier   = "Tier"
)

// Table is the immutable lender-to-tier mapping, loaded once per run and
// shared read-only across all per-lender computations.
type Table struct {
	tiers map[string]string
}

// Load reads a lookup table from a .csv or .xlsx file. The file must carry a
// header row containing Lender and Tier columns. Any read or shape problem is
// an error: without tier data no ranking is possible.
func Load(path string) (*Table, error) {
	var rows [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = loadExcelRows(path)
	default:
		rows, err = loadCSVRows(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("tier table %s is empty", path)
	}

	lenderIdx, tierIdx := -1, -1
	for i, name := range rows[0] {
		switch strings.TrimSpace(name) {
		case ColumnLender:
			lenderIdx = i
		case ColumnTier:
			tierIdx = i
		}
	}
	if lenderIdx < 0 || tierIdx < 0 {
		return nil, fmt.Errorf("tier table %s missing %s or %s column", path, ColumnLender, ColumnTier)
	}

	tiers := make(map[string]string, len(rows)-1)
	for _, row := range rows[1:] {
		if lenderIdx >= len(row) || tierIdx >= len(row) {
			continue
		}
		lender := strings.TrimSpace(row[lenderIdx])
		if lender == "" {
			continue
		}
		tiers[lender] = strings.TrimSpace(row[tierIdx])
	}

	return &Table{tiers: tiers}, nil
}

func loadCSVRows(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tier table: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse tier table %s: %w", path, err)
	}
	return rows, nil
}

func loadExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open tier workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("tier workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read tier sheet %s: %w", sheets[0], err)
	}
	return rows, nil
}

// Len returns the number of mapped lenders.
func (t *Table) Len() int { return len(t.tiers) }

// Lookup returns the tier for a lender. Keys are case-sensitive.
func (t *Table) Lookup(lender string) (string, bool) {
	tier, ok := t.tiers[lender]
	return tier, ok
}

// Join appends a Tier column to the set, populated from the lookup keyed on
// the exportedLender column. Left-join semantics: every input row survives,
// unmatched lenders get a null tier, and the row count never changes.
func (t *Table) Join(set *records.Set) error {
	lenderIdx := set.ColumnIndex("exportedLender")
	if lenderIdx < 0 {
		return fmt.Errorf("record set missing exportedLender column")
	}

	set.AddColumn(ColumnTier, func(row records.Row) records.Value {
		if row[lenderIdx].IsNull() {
			return records.Null()
		}
		if tier, ok := t.tiers[row[lenderIdx].Str()]; ok {
			return records.String(tier)
		}
		return records.Null()
	})
	return nil
}
