package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aartemyeu/void.bookkeeper/internal/api"
	"github.com/aartemyeu/void.bookkeeper/internal/batch"
	"github.com/aartemyeu/void.bookkeeper/internal/config"
	"github.com/aartemyeu/void.bookkeeper/internal/extractor"
	"github.com/aartemyeu/void.bookkeeper/internal/logger"
	"github.com/aartemyeu/void.bookkeeper/internal/metrics"
	"github.com/aartemyeu/void.bookkeeper/internal/models"
	"github.com/aartemyeu/void.bookkeeper/internal/parser"
	"github.com/aartemyeu/void.bookkeeper/internal/writer"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("Configuration error: %v\n", err)
	}

	// CLI flags override the environment.
	dataFlag := flag.String("data", cfg.Input.DataDir, "Directory with one sub-folder of statement PDFs per year")
	reportsFlag := flag.String("reports", cfg.Output.ReportsDir, "Directory the JSON and CSV reports are written to")
	bankFlag := flag.String("bank", "", "Bank type: deutsche (auto-detected if omitted)")
	modeFlag := flag.String("mode", string(batch.ModeOCR), "Text source for PDFs: ocr or text-layer")
	workersFlag := flag.Int("workers", cfg.OCR.Workers, "Number of statements OCR'd in parallel")
	resolveFlag := flag.Bool("resolve-dates", cfg.Parse.ResolveDates, "Convert MM/DD dates to YYYY-MM-DD using the statement period")
	yearFlag := flag.Bool("year-column", cfg.Output.IncludeYear, "Include the year column in statements.csv and statements.json")
	serveFlag := flag.Bool("serve", false, "Start the HTTP API instead of processing files")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	helpFlag := flag.Bool("help", false, "Show usage help")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Scanned Bank Statement Extractor

OCRs scanned Deutsche Bank account statements and extracts the statement
period, opening and closing balances and every transaction into JSON and
CSV reports.

Usage:
  statement-extractor [flags] [statement.pdf|statement.txt ...]

Without file arguments every <data>/<year>/%s is processed.

Flags:
`, cfg.Input.Glob)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Process data/2020/, data/2021/, ... into reports/
  statement-extractor

  # Four OCR workers, keep dates as printed
  statement-extractor --workers=4 --resolve-dates=false

  # Re-parse text that was already OCR'd
  statement-extractor jan.txt feb.txt

  # Run the HTTP API
  statement-extractor --serve

Required tools (OCR mode):
  %s
`, strings.Join(extractor.RequiredTools, ", "))
	}

	flag.Parse()

	if *versionFlag {
		fmt.Printf("statement-extractor v%s\n", version)
		os.Exit(0)
	}
	if *helpFlag {
		flag.Usage()
		os.Exit(0)
	}

	log := logger.WithLevel(logger.New(), cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	opts := parser.Options{ResolveDates: *resolveFlag}
	ocr := extractor.NewOCR(cfg.OCR.DPI, cfg.OCR.Language, log)

	if *serveFlag {
		if err := serve(ctx, cfg, ocr, opts); err != nil {
			fatalf("Server error: %v\n", err)
		}
		return
	}

	mode, err := batch.ParseMode(*modeFlag)
	if err != nil {
		fatalf("%v\n", err)
	}

	var bankType models.BankType
	if *bankFlag != "" {
		if bankType, err = parser.ParseBankType(*bankFlag); err != nil {
			fatalf("%v\n", err)
		}
	}

	inputs := flag.Args()
	if len(inputs) == 0 {
		if inputs, err = batch.Discover(*dataFlag, cfg.Input.Glob); err != nil {
			fatalf("%v\n", err)
		}
		if len(inputs) == 0 {
			fmt.Printf("No %s files found in %s/ folders\n", cfg.Input.Glob, *dataFlag)
			return
		}
	}

	runner := batch.NewRunner(ocr, opts, log)
	runner.Mode = mode
	runner.Bank = bankType
	runner.Workers = *workersFlag

	if needsPDFTools(inputs) {
		if err := extractor.CheckDependencies(nil); err != nil {
			if mode == batch.ModeOCR {
				fatalf("%v\n", err)
			}
			log.Warn().Err(err).Msg("OCR unavailable, using text layers only")
			runner.Extractor = nil
		}
	}

	if err := process(ctx, runner, inputs, *reportsFlag, *yearFlag); err != nil {
		fatalf("Error: %v\n", err)
	}
}

func process(ctx context.Context, runner *batch.Runner, inputs []string, reportsDir string, includeYear bool) error {
	log := logger.FromContext(ctx)
	fmt.Printf("Total: %d statement(s) to process\n\n", len(inputs))

	res, err := runner.Run(ctx, inputs)
	if err != nil {
		return err
	}

	for _, stmt := range res.Statements {
		printStatement(log, stmt)
	}
	for _, f := range res.Failures {
		fmt.Printf("Skipped %s: %v\n", filepath.Base(f.Path), f.Err)
	}

	txns := res.Transactions()
	fmt.Printf("\nTOTAL: %d transactions from %d statements\n", len(txns), len(res.Statements))

	paths, err := writer.WriteReports(reportsDir, res.Statements, includeYear)
	if err != nil {
		return fmt.Errorf("report write failed: %w", err)
	}
	for _, p := range paths {
		fmt.Printf("  Saved %s\n", p)
	}
	return nil
}

func printStatement(log zerolog.Logger, stmt *models.Statement) {
	meta := stmt.Metadata
	fmt.Printf("%s\n", filepath.Base(stmt.Source))
	fmt.Printf("  Statement: %s to %s\n", orNone(meta.PeriodFrom.String()), orNone(meta.PeriodTo.String()))
	fmt.Printf("  Opening: %s, Closing: %s\n", orNone(meta.OpeningBalance.String()), orNone(meta.ClosingBalance.String()))
	fmt.Printf("  Found %d transactions", len(stmt.Transactions))
	if net, err := models.NetMovement(stmt.Transactions); err == nil {
		fmt.Printf(" (net %s)", net.StringFixed(2))
	} else {
		log.Warn().Err(err).Str("file", stmt.Source).Msg("could not total amounts")
	}
	fmt.Println()

	if len(stmt.Transactions) == 0 {
		fmt.Println("  Warning: No transactions found. The OCR output may not match the expected layout.")
	}
}

func serve(ctx context.Context, cfg *config.Config, ocr *extractor.OCR, opts parser.Options) error {
	log := logger.FromContext(ctx)

	h := &api.Handler{Options: opts, Version: version, Logger: log, Metrics: metrics.New()}
	if err := extractor.CheckDependencies(nil); err != nil {
		log.Warn().Err(err).Msg("OCR unavailable, PDF uploads will be rejected")
	} else {
		h.OCR = ocr
	}
	app := api.NewApp(h, cfg.Server.MaxUploadMB)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}

// needsPDFTools reports whether any input is a PDF rather than OCR'd text.
func needsPDFTools(inputs []string) bool {
	for _, in := range inputs {
		if !strings.EqualFold(filepath.Ext(in), ".txt") {
			return true
		}
	}
	return false
}

func orNone(s string) string {
	if s == "" {
		return "None"
	}
	return s
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
