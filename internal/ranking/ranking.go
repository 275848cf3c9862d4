// Package ranking computes trailing-window competitive ranks for lenders.
//
// For a reference month R, the engine counts per-lender scenario occurrences
// in R and the two preceding calendar months, ranks lenders within their
// competitive tier for each month (count descending, minimum-rank
// tie-breaking), and annotates every input record with the lender's rank for
// R-1 and R-2. Records are never dropped or reordered; lenders outside the
// window simply carry null ranks.
package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"lenderpulse/internal/records"
)

// Column names the engine reads and writes.
const (
	ColumnLender   = "exportedLender"
	ColumnTime     = "time"
	ColumnScenario = "scenarioId"
	ColumnTier     = "Tier"

	ColumnRankOneMonth  = "rank_in_tier_one_month"
	ColumnRankTwoMonths = "rank_in_tier_two_months"
)

// Ranker annotates record sets with within-tier monthly ranks.
type Ranker struct {
	logger *slog.Logger
}

// NewRanker creates a Ranker. A nil logger falls back to slog.Default().
func NewRanker(logger *slog.Logger) *Ranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{logger: logger}
}

type groupKey struct {
	tier   string
	lender string
	month  Month
}

type lenderKey struct {
	tier   string
	lender string
}

type lagRanks struct {
	oneMonth  records.Value
	twoMonths records.Value
}

// Annotate appends the two lagging-month rank columns to set, computed
// against the given reference month. Timestamps are normalized to UTC before
// month bucketing. Rows with a null tier, a null timestamp, or a null
// scenario id are excluded from aggregation but remain in the set, carrying
// null ranks where no aggregate exists for their (tier, lender).
func (r *Ranker) Annotate(ctx context.Context, set *records.Set, reference Month) error {
	if set == nil {
		return fmt.Errorf("no record set provided")
	}

	lenderIdx := set.ColumnIndex(ColumnLender)
	if lenderIdx < 0 {
		return fmt.Errorf("record set missing %s column", ColumnLender)
	}
	tierIdx := set.ColumnIndex(ColumnTier)
	if tierIdx < 0 {
		return fmt.Errorf("record set missing %s column", ColumnTier)
	}
	timeIdx := set.ColumnIndex(ColumnTime)
	scenarioIdx := set.ColumnIndex(ColumnScenario)

	oneBefore := reference.Add(-1)
	twoBefore := reference.Add(-2)

	r.logger.InfoContext(ctx, "annotating ranks",
		"rows", set.NumRows(),
		"current_month", reference.String(),
		"one_month_before", oneBefore.String(),
		"two_months_before", twoBefore.String(),
	)

	window := map[Month]bool{reference: true, oneBefore: true, twoBefore: true}

	// Drop zone information so month comparisons use one calendar.
	if timeIdx >= 0 {
		for _, row := range set.Rows {
			if v := row[timeIdx]; v.Kind() == records.KindTime {
				row[timeIdx] = records.Time(v.Timestamp().UTC())
			}
		}
	}

	// Count scenario occurrences per (tier, lender, month) inside the window.
	counts := make(map[groupKey]int)
	for _, row := range set.Rows {
		if timeIdx < 0 || row[timeIdx].Kind() != records.KindTime {
			continue
		}
		if row[tierIdx].IsNull() {
			continue
		}
		if scenarioIdx >= 0 && row[scenarioIdx].IsNull() {
			continue
		}
		month := MonthOf(row[timeIdx].Timestamp())
		if !window[month] {
			continue
		}
		key := groupKey{
			tier:   row[tierIdx].Str(),
			lender: row[lenderIdx].Str(),
			month:  month,
		}
		counts[key]++
	}

	ranks := rankWithinTiers(counts)

	// Pivot the two lagging months into per-lender rank columns.
	merged := make(map[lenderKey]lagRanks)
	for key, rank := range ranks {
		lk := lenderKey{tier: key.tier, lender: key.lender}
		lr, ok := merged[lk]
		if !ok {
			lr = lagRanks{oneMonth: records.Null(), twoMonths: records.Null()}
		}
		switch key.month {
		case oneBefore:
			lr.oneMonth = records.Int(int64(rank))
		case twoBefore:
			lr.twoMonths = records.Int(int64(rank))
		}
		merged[lk] = lr
	}

	// Left-join the rank columns back onto every original row.
	set.AddColumn(ColumnRankOneMonth, func(row records.Row) records.Value {
		return lookupRank(merged, row, tierIdx, lenderIdx, true)
	})
	set.AddColumn(ColumnRankTwoMonths, func(row records.Row) records.Value {
		return lookupRank(merged, row, tierIdx, lenderIdx, false)
	})

	r.logger.InfoContext(ctx, "rank annotation complete",
		"rows", set.NumRows(),
		"aggregates", len(counts),
		"ranked_lenders", len(merged),
	)
	return nil
}

func lookupRank(merged map[lenderKey]lagRanks, row records.Row, tierIdx, lenderIdx int, oneMonth bool) records.Value {
	if row[tierIdx].IsNull() {
		return records.Null()
	}
	lr, ok := merged[lenderKey{tier: row[tierIdx].Str(), lender: row[lenderIdx].Str()}]
	if !ok {
		return records.Null()
	}
	if oneMonth {
		return lr.oneMonth
	}
	return lr.twoMonths
}

// rankWithinTiers assigns each (tier, lender, month) aggregate its rank among
// lenders sharing the same tier and month: count descending, with tied counts
// sharing the minimum rank and the next distinct count skipping ahead by the
// tie-group size.
func rankWithinTiers(counts map[groupKey]int) map[groupKey]int {
	type entry struct {
		key   groupKey
		count int
	}
	type tierMonth struct {
		tier  string
		month Month
	}

	groups := make(map[tierMonth][]entry)
	for key, count := range counts {
		tm := tierMonth{tier: key.tier, month: key.month}
		groups[tm] = append(groups[tm], entry{key: key, count: count})
	}

	ranks := make(map[groupKey]int, len(counts))
	for _, entries := range groups {
		sort.Slice(entries, func(i, j int) bool {
			if entries[i].count != entries[j].count {
				return entries[i].count > entries[j].count
			}
			return entries[i].key.lender < entries[j].key.lender
		})
		for i, e := range entries {
			if i > 0 && e.count == entries[i-1].count {
				ranks[e.key] = ranks[entries[i-1].key]
				continue
			}
			ranks[e.key] = i + 1
		}
	}
	return ranks
}
