// Command merge-exports unions every per-lender export in the output
// directory into one combined all-lenders file, honoring the same strict
// delimited format on both read and write.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"lenderpulse/internal/export"
)

const combinedFileName = "all-lenders-exports.csv"

func main() {
	inDir := flag.String("in", "output", "directory of per-lender exports")
	outDir := flag.String("out", "result", "directory for the combined file")
	flag.Parse()

	outPath := filepath.Join(*outDir, combinedFileName)
	writer := export.NewWriter(slog.Default())

	warnings, err := writer.Union(context.Background(), *inDir, outPath)
	if err != nil {
		slog.Error("Failed to combine exports", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn("Combined export validation finding", "detail", w)
	}

	fmt.Printf("Combined exports written to %s\n", outPath)
}
