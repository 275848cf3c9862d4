// Package pipeline orchestrates the per-lender export run: fetch records,
// join tiers, annotate ranks, sanitize, and write the delimited export, with
// failure isolation at lender granularity.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"lenderpulse/internal/export"
	"lenderpulse/internal/query"
	"lenderpulse/internal/ranking"
	"lenderpulse/internal/sanitize"
	"lenderpulse/internal/tier"
)

// Options carry the run parameters the driver needs beyond its collaborators.
type Options struct {
	OutputDir  string
	StartDate  string
	EndDate    string
	ReportDate time.Time
}

// LenderResult is the outcome for one successfully exported lender.
type LenderResult struct {
	Lender      string
	Rows        int
	OutputPath  string
	Diagnostics sanitize.Diagnostics
	Warnings    []string
}

// Failure records a lender whose export could not be produced.
type Failure struct {
	Lender string
	Err    error
}

// Result is the outcome of one full run.
type Result struct {
	RunID    string
	Lenders  []LenderResult
	Failures []Failure
}

// Pipeline runs the export for every lender the query source knows about.
type Pipeline struct {
	source  query.Source
	tiers   *tier.Table
	ranker  *ranking.Ranker
	cleaner *sanitize.Cleaner
	writer  *export.Writer
	logger  *slog.Logger
}

// New creates a Pipeline. A nil logger falls back to slog.Default().
func New(source query.Source, tiers *tier.Table, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:  source,
		tiers:   tiers,
		ranker:  ranking.NewRanker(logger),
		cleaner: sanitize.NewCleaner(logger),
		writer:  export.NewWriter(logger),
		logger:  logger,
	}
}

// Run executes the pipeline for every lender. A lender listing failure or an
// unwritable output directory aborts the run; a failure inside one lender's
// export is recorded on the Result and the run continues with the next
// lender.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	if p.tiers == nil {
		return nil, fmt.Errorf("no tier table provided")
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	result := &Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", result.RunID)

	lenders, err := p.source.DistinctLenders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lenders: %w", err)
	}

	reference := ranking.MonthOf(opts.ReportDate)
	logger.InfoContext(ctx, "starting export run",
		"lenders", len(lenders),
		"reference_month", reference.String(),
		"output_dir", opts.OutputDir,
	)

	for _, lender := range lenders {
		lr, err := p.exportLender(ctx, logger, lender, reference, opts)
		if err != nil {
			logger.ErrorContext(ctx, "lender export failed", "lender", lender, "error", err)
			result.Failures = append(result.Failures, Failure{Lender: lender, Err: err})
			continue
		}
		result.Lenders = append(result.Lenders, *lr)
	}

	logger.InfoContext(ctx, "export run complete",
		"exported", len(result.Lenders),
		"failed", len(result.Failures),
	)
	return result, nil
}

func (p *Pipeline) exportLender(ctx context.Context, logger *slog.Logger, lender string, reference ranking.Month, opts Options) (*LenderResult, error) {
	logger.InfoContext(ctx, "running query for lender", "lender", lender)

	set, err := p.source.Fetch(ctx, query.Params{
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
		Lender:    lender,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}

	if err := p.tiers.Join(set); err != nil {
		return nil, fmt.Errorf("join tiers: %w", err)
	}
	if err := p.ranker.Annotate(ctx, set, reference); err != nil {
		return nil, fmt.Errorf("annotate ranks: %w", err)
	}

	diags := p.cleaner.Clean(set)

	outputPath := filepath.Join(opts.OutputDir, fmt.Sprintf("results_%s.csv", lender))
	warnings, err := p.writer.Write(outputPath, set)
	if err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	logger.InfoContext(ctx, "lender export written",
		"lender", lender,
		"rows", set.NumRows(),
		"path", outputPath,
		"diagnostics", len(diags),
		"warnings", len(warnings),
	)

	return &LenderResult{
		Lender:      lender,
		Rows:        set.NumRows(),
		OutputPath:  outputPath,
		Diagnostics: diags,
		Warnings:    warnings,
	}, nil
}
