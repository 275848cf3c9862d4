package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lenderpulse/internal/export"
	"lenderpulse/internal/query"
	"lenderpulse/internal/ranking"
	"lenderpulse/internal/records"
	"lenderpulse/internal/tier"
)

// fakeSource is an in-memory query.Source for driver tests.
type fakeSource struct {
	lenders    []string
	sets       map[string]*records.Set
	listErr    error
	failFetch  map[string]error
	fetchCalls []query.Params
}

func (f *fakeSource) DistinctLenders(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lenders, nil
}

func (f *fakeSource) Fetch(ctx context.Context, p query.Params) (*records.Set, error) {
	f.fetchCalls = append(f.fetchCalls, p)
	if err, ok := f.failFetch[p.Lender]; ok {
		return nil, err
	}
	set, ok := f.sets[p.Lender]
	if !ok {
		return nil, fmt.Errorf("unknown lender %s", p.Lender)
	}
	return set.Clone(), nil
}

func lenderSet(t *testing.T, lender string, n int) *records.Set {
	t.Helper()
	set := records.NewSet("exportedLender", "time", "scenarioId", "lvr")
	for i := 0; i < n; i++ {
		require.NoError(t, set.Append(records.Row{
			records.String(lender),
			records.Time(time.Date(2025, time.July, 1+i, 9, 0, 0, 0, time.UTC)),
			records.String(fmt.Sprintf("%s-%d", lender, i)),
			records.String("0.7"),
		}))
	}
	return set
}

func testTiers(t *testing.T) *tier.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "competitor-list.csv")
	require.NoError(t, os.WriteFile(path, []byte("Lender,Tier\nalpha,1\nbeta,1\n"), 0644))
	table, err := tier.Load(path)
	require.NoError(t, err)
	return table
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		OutputDir:  t.TempDir(),
		StartDate:  "2025-01-01T00:00:00Z",
		EndDate:    "2025-08-01T00:00:00Z",
		ReportDate: time.Date(2025, time.August, 28, 0, 0, 0, 0, time.UTC),
	}
}

func TestPipeline_ExportsEveryLender(t *testing.T) {
	source := &fakeSource{
		lenders: []string{"alpha", "beta"},
		sets: map[string]*records.Set{
			"alpha": lenderSet(t, "alpha", 3),
			"beta":  lenderSet(t, "beta", 2),
		},
	}
	opts := testOptions(t)

	result, err := New(source, testTiers(t), nil).Run(context.Background(), opts)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	require.Len(t, result.Lenders, 2)
	assert.Empty(t, result.Failures)

	for _, lr := range result.Lenders {
		assert.FileExists(t, lr.OutputPath)
		assert.Empty(t, lr.Warnings)
	}

	// The query window parameters reach the source verbatim.
	require.Len(t, source.fetchCalls, 2)
	assert.Equal(t, "2025-01-01T00:00:00Z", source.fetchCalls[0].StartDate)
	assert.Equal(t, "alpha", source.fetchCalls[0].Lender)
}

func TestPipeline_ExportCarriesRankColumns(t *testing.T) {
	source := &fakeSource{
		lenders: []string{"alpha"},
		sets:    map[string]*records.Set{"alpha": lenderSet(t, "alpha", 3)},
	}
	opts := testOptions(t)

	result, err := New(source, testTiers(t), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, result.Lenders, 1)

	written, err := export.ReadFile(result.Lenders[0].OutputPath)
	require.NoError(t, err)

	oneIdx := written.ColumnIndex(ranking.ColumnRankOneMonth)
	require.GreaterOrEqual(t, oneIdx, 0)
	require.GreaterOrEqual(t, written.ColumnIndex(ranking.ColumnRankTwoMonths), 0)

	// alpha is the only tier-1 lender with July observations: rank 1,
	// and the July rows survive sanitization and export intact.
	require.Equal(t, 3, written.NumRows())
	assert.Equal(t, "1", written.Rows[0][oneIdx].Str())
}

func TestPipeline_LenderFailureIsIsolated(t *testing.T) {
	source := &fakeSource{
		lenders: []string{"alpha", "broken", "beta"},
		sets: map[string]*records.Set{
			"alpha": lenderSet(t, "alpha", 2),
			"beta":  lenderSet(t, "beta", 2),
		},
		failFetch: map[string]error{"broken": fmt.Errorf("query engine went away")},
	}
	opts := testOptions(t)

	result, err := New(source, testTiers(t), nil).Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "broken", result.Failures[0].Lender)
	require.Len(t, result.Lenders, 2)
}

func TestPipeline_LenderListingFailureIsFatal(t *testing.T) {
	source := &fakeSource{listErr: fmt.Errorf("connection refused")}
	opts := testOptions(t)

	_, err := New(source, testTiers(t), nil).Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list lenders")
}

func TestPipeline_NilTierTableIsFatal(t *testing.T) {
	source := &fakeSource{lenders: []string{"alpha"}}
	opts := testOptions(t)

	_, err := New(source, nil, nil).Run(context.Background(), opts)
	require.Error(t, err)
}

func TestPipeline_DiagnosticsSurfaceOnResult(t *testing.T) {
	set := records.NewSet("exportedLender", "time", "scenarioId", "lvr")
	require.NoError(t, set.Append(records.Row{
		records.String("alpha"),
		records.Time(time.Date(2025, time.July, 2, 9, 0, 0, 0, time.UTC)),
		records.String("s1"),
		records.String("not numeric"),
	}))
	source := &fakeSource{
		lenders: []string{"alpha"},
		sets:    map[string]*records.Set{"alpha": set},
	}
	opts := testOptions(t)

	result, err := New(source, testTiers(t), nil).Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, result.Lenders, 1)

	require.Len(t, result.Lenders[0].Diagnostics, 1)
	assert.Equal(t, "lvr", result.Lenders[0].Diagnostics[0].Column)
}
