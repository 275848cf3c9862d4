// Package sanitize cleans record values ahead of the strict delimited export.
//
// Cleaning is deliberately lossy: characters that could corrupt the target
// format are deleted rather than escaped, so a downstream consumer with an
// imperfect parser still reads the file correctly. The stage is advisory, not
// validating. It never rejects a row; anomalies surface as structured
// diagnostics attached to the pipeline result.
package sanitize

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"lenderpulse/internal/records"
)

// TimeLayout is the textual form timestamps take in exports. It is the only
// rendering that carries an explicit zone offset.
const TimeLayout = "2006-01-02 15:04:05-0700"

// TextColumns are the free-text columns subject to character stripping.
var TextColumns = []string{
	"associated_lender",
	"exportedLender",
	"primaryIncome",
	"rateType",
	"loanPurpose",
	"lvrBucket",
	"transactionType",
	"performance",
	"scenarioId",
}

// NumericColumns are coerced to numbers; values that fail coercion become
// null, never an error.
var NumericColumns = []string{
	"totalProposedLoanAmount",
	"lvr",
	"paygIncome",
	"weeklyRentalIncome",
	"selfEmployedIncome",
	"count_all_loan_purpose",
	"count_all_unique_scenario_id",
	"sum_all_total_proposed_loan_amount",
}

// stripped is the character set deleted from free-text values: delimiter-like
// and structure-like characters the export format cannot tolerate unescaped.
const stripped = `[]{}"\,`

// timeColumn is rendered to TimeLayout text before export.
const timeColumn = "time"

// Diagnostic records one sanitization anomaly for manual review.
type Diagnostic struct {
	Column string
	Row    int
	Value  string
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s row %d: %s (%q)", d.Column, d.Row, d.Reason, d.Value)
}

// Diagnostics is the ordered list of anomalies found while cleaning one set.
type Diagnostics []Diagnostic

// Cleaner sanitizes record sets in place.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a Cleaner. A nil logger falls back to slog.Default().
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{logger: logger}
}

// Clean sanitizes the set in place and returns the anomalies found. Cleaning
// is idempotent: a second pass over already-clean data finds nothing and
// changes nothing.
func (c *Cleaner) Clean(set *records.Set) Diagnostics {
	var diags Diagnostics

	if timeIdx := set.ColumnIndex(timeColumn); timeIdx >= 0 {
		for i, row := range set.Rows {
			if row[timeIdx].Kind() == records.KindTime {
				set.Rows[i][timeIdx] = records.String(row[timeIdx].Timestamp().Format(TimeLayout))
			}
		}
	}

	for _, col := range TextColumns {
		idx := set.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		for i, row := range set.Rows {
			if row[idx].Kind() != records.KindString {
				continue
			}
			cleaned := stripUnsafe(row[idx].Str())
			set.Rows[i][idx] = records.String(cleaned)
			diags = c.flag(diags, col, i, cleaned)
		}
	}

	for _, col := range NumericColumns {
		idx := set.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		for i, row := range set.Rows {
			if row[idx].Kind() != records.KindString {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(row[idx].Str()), 64)
			if err != nil {
				diags = append(diags, Diagnostic{
					Column: col, Row: i, Value: row[idx].Str(),
					Reason: "value is not numeric, coerced to null",
				})
				c.logger.Warn("numeric coercion failed",
					"column", col, "row", i, "value", row[idx].Str())
				set.Rows[i][idx] = records.Null()
				continue
			}
			set.Rows[i][idx] = records.Number(f)
		}
	}

	return diags
}

// flag records values that still look delimiter-bearing or list/object-shaped
// after stripping. The stripping above removes these characters, so findings
// here indicate the strip list and the check have diverged.
func (c *Cleaner) flag(diags Diagnostics, col string, row int, v string) Diagnostics {
	if strings.Contains(v, ",") {
		diags = append(diags, Diagnostic{Column: col, Row: row, Value: v, Reason: "comma remains after stripping"})
		c.logger.Warn("comma found in cleaned value", "column", col, "row", row, "value", v)
	}
	if looksStructured(v) {
		diags = append(diags, Diagnostic{Column: col, Row: row, Value: v, Reason: "value looks list- or object-shaped"})
		c.logger.Warn("structured content found in cleaned value", "column", col, "row", row, "value", v)
	}
	return diags
}

func stripUnsafe(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(stripped, r) {
			return -1
		}
		return r
	}, s)
}

func looksStructured(s string) bool {
	open := strings.IndexAny(s, "[{")
	if open < 0 {
		return false
	}
	last := strings.LastIndexAny(s, "]}")
	return last > open
}
