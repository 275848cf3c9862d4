// Command exports-report runs the per-lender export pipeline: it queries the
// deals view for every lender, joins the competitor tier table, annotates
// trailing 3-month within-tier ranks, and writes one sanitized delimited
// export per lender.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"lenderpulse/internal/config"
	"lenderpulse/internal/pipeline"
	"lenderpulse/internal/query"
	"lenderpulse/internal/tier"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file overlaying the environment")
	outputDir := flag.String("out", "", "output directory for per-lender exports (defaults to config output_dir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}

	reportDate, err := cfg.ReportTime()
	if err != nil {
		slog.Error("Invalid report date", "error", err)
		os.Exit(1)
	}

	template, err := os.ReadFile(cfg.SQLFilePath)
	if err != nil {
		slog.Error("Failed to read SQL template",
			"path", cfg.SQLFilePath,
			"error", err,
			"hint", "set LENDERPULSE_SQL_FILE_PATH to the query template")
		os.Exit(1)
	}

	slog.Info("Loading tier table", "path", cfg.TierFilePath)
	tiers, err := tier.Load(cfg.TierFilePath)
	if err != nil {
		slog.Error("Failed to load tier table", "error", err)
		os.Exit(1)
	}
	slog.Info("Tier table loaded", "lenders", tiers.Len())

	ctx := context.Background()

	source, err := query.Open(ctx, query.MotherDuckDSN(cfg.MotherDuckToken), string(template), slog.Default())
	if err != nil {
		slog.Error("Failed to connect to query source", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	slog.Info("Starting export run",
		"start_date", cfg.StartDate,
		"end_date", cfg.EndDate,
		"report_date", reportDate.Format("2006-01-02"))

	p := pipeline.New(source, tiers, slog.Default())
	result, err := p.Run(ctx, pipeline.Options{
		OutputDir:  cfg.OutputDir,
		StartDate:  cfg.StartDate,
		EndDate:    cfg.EndDate,
		ReportDate: reportDate,
	})
	if err != nil {
		slog.Error("Export run failed", "error", err)
		os.Exit(1)
	}

	for _, lr := range result.Lenders {
		for _, d := range lr.Diagnostics {
			slog.Warn("Sanitization finding", "lender", lr.Lender, "detail", d.String())
		}
		for _, w := range lr.Warnings {
			slog.Warn("Export validation finding", "lender", lr.Lender, "detail", w)
		}
	}
	for _, f := range result.Failures {
		slog.Error("Lender not exported", "lender", f.Lender, "error", f.Err)
	}

	fmt.Printf("Run %s: %d lenders exported, %d failed\n",
		result.RunID, len(result.Lenders), len(result.Failures))
}
