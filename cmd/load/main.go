/*
main.go - One-shot load CLI

PURPOSE:
  Runs a single load job synchronously and prints the outcome. This is
  the batch-operations path; the server's POST /api/loads is the
  interactive one. Both drive the same etl.Loader.

COMMAND-LINE FLAGS:
  -file             Source CSV file (required)
  -year             Fiscal year being loaded (required)
  -db               SQLite database path (default: snapqc.db)
  -batch            Insert chunk size (default: 10000)
  -max-rows         Optional row cap for smoke loads
  -strict           Treat range violations as blocking errors
  -skip-validation  Write without validating (not recommended)
  -fail-fast        Abort on the first malformed row or field error
  -seed             Seed the standard reference codes first

EXIT CODES:
  0  load completed
  1  load failed (validation, source, or persistence)

EXAMPLES:
  # Load fiscal year 2023, strict validation
  ./load -file=./data/qc_fy2023.csv -year=2023 -strict

  # Smoke-load the first thousand rows into a scratch database
  ./load -file=./data/qc_fy2023.csv -year=2023 -db=/tmp/scratch.db -max-rows=1000 -seed
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/store/sqlite"
)

func main() {
	file := flag.String("file", "", "source CSV file")
	year := flag.Int("year", 0, "fiscal year being loaded")
	dbPath := flag.String("db", "snapqc.db", "SQLite database path")
	batch := flag.Int("batch", etl.DefaultChunkSize, "insert chunk size")
	maxRows := flag.Int("max-rows", 0, "optional row cap (0 = whole file)")
	strict := flag.Bool("strict", false, "treat range violations as blocking errors")
	skipValidation := flag.Bool("skip-validation", false, "write without validating")
	failFast := flag.Bool("fail-fast", false, "abort on the first malformed row or field error")
	seed := flag.Bool("seed", false, "seed the standard reference codes first")
	flag.Parse()

	if *file == "" || *year == 0 {
		flag.Usage()
		os.Exit(1)
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if *seed {
		if err := store.SeedDefaultReferences(ctx); err != nil {
			log.Fatalf("Failed to seed reference codes: %v", err)
		}
	}

	refs, err := store.LoadReferences(ctx)
	if err != nil {
		log.Fatalf("Failed to load reference codes: %v", err)
	}

	loader := &etl.Loader{
		Writer:         store,
		Refs:           refs,
		FiscalYear:     *year,
		ChunkSize:      *batch,
		MaxRows:        *maxRows,
		Strict:         *strict,
		SkipValidation: *skipValidation,
		FailFast:       *failFast,
	}

	status := etl.NewManager().Run(ctx, loader, *file)

	fmt.Printf("state:          %s\n", status.State)
	fmt.Printf("rows processed: %d\n", status.RowsProcessed)
	fmt.Printf("rows skipped:   %d\n", status.RowsSkipped)
	fmt.Printf("cases:          %d\n", status.CasesCreated)
	fmt.Printf("members:        %d\n", status.MembersCreated)
	fmt.Printf("findings:       %d\n", status.ErrorsCreated)

	if len(status.ValidationWarnings) > 0 {
		fmt.Printf("warnings:       %d\n", len(status.ValidationWarnings))
	}
	if status.State != etl.JobCompleted {
		if status.ErrorMessage != "" {
			fmt.Printf("error:          %s\n", status.ErrorMessage)
		}
		for _, msg := range status.ValidationErrors {
			fmt.Printf("  %s\n", msg)
		}
		os.Exit(1)
	}
}
