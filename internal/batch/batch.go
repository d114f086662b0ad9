package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aartemyeu/void.bookkeeper/internal/extractor"
	"github.com/aartemyeu/void.bookkeeper/internal/metrics"
	"github.com/aartemyeu/void.bookkeeper/internal/models"
	"github.com/aartemyeu/void.bookkeeper/internal/parser"
	"github.com/aartemyeu/void.bookkeeper/internal/writer"
)

// Mode selects how text is obtained from a PDF.
type Mode string

const (
	// ModeOCR rasterises and OCRs every page.
	ModeOCR Mode = "ocr"
	// ModeTextLayer reads the PDF's own text layer and falls back to OCR
	// when that text is unreadable.
	ModeTextLayer Mode = "text-layer"
)

// ParseMode validates a user-supplied mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOCR, ModeTextLayer:
		return m, nil
	case "":
		return ModeOCR, nil
	default:
		return "", fmt.Errorf("unknown mode %q, supported: ocr, text-layer", s)
	}
}

// TextExtractor turns a statement PDF into text. *extractor.OCR implements it.
type TextExtractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// Failure records a statement that was skipped.
type Failure struct {
	Path string
	Err  error
}

// Result is the outcome of one batch run. Statements are in input order.
type Result struct {
	RunID      string
	Statements []*models.Statement
	Failures   []Failure
}

// Transactions returns the transactions of all statements in order.
func (r *Result) Transactions() []models.Transaction {
	return writer.AllTransactions(r.Statements)
}

// Runner extracts and parses a set of statement files.
type Runner struct {
	Extractor TextExtractor
	Mode      Mode
	// Bank selects the parser. Empty means detect it from each statement.
	Bank    models.BankType
	Options parser.Options
	Workers int
	Logger  zerolog.Logger
	Metrics *metrics.Metrics

	textLayer func(path string) ([]string, error)
}

// NewRunner returns a Runner with one worker in OCR mode.
func NewRunner(ext TextExtractor, opts parser.Options, log zerolog.Logger) *Runner {
	return &Runner{
		Extractor: ext,
		Mode:      ModeOCR,
		Options:   opts,
		Workers:   1,
		Logger:    log,
	}
}

// Run processes paths with at most Workers statements in flight. A file
// whose text cannot be obtained or parsed is recorded in Failures and
// skipped. Run only returns an error when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, paths []string) (*Result, error) {
	runID := uuid.NewString()
	log := r.Logger.With().Str("run_id", runID).Logger()
	log.Info().Int("files", len(paths)).Int("workers", r.workers()).Str("mode", string(r.Mode)).Msg("starting batch")

	stmts := make([]*models.Statement, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			stmt, err := r.process(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("skipping statement")
				r.Metrics.Failed()
				errs[i] = err
				return nil
			}
			stmts[i] = stmt
			r.Metrics.Parsed(stmt)
			log.Info().
				Str("file", filepath.Base(path)).
				Str("period_from", stmt.Metadata.PeriodFrom.String()).
				Str("period_to", stmt.Metadata.PeriodTo.String()).
				Str("opening_balance", stmt.Metadata.OpeningBalance.String()).
				Str("closing_balance", stmt.Metadata.ClosingBalance.String()).
				Int("transactions", len(stmt.Transactions)).
				Dur("took", time.Since(start)).
				Msg("processed statement")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch %s cancelled: %w", runID, err)
	}

	res := &Result{RunID: runID}
	for i, path := range paths {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure{Path: path, Err: errs[i]})
			continue
		}
		res.Statements = append(res.Statements, stmts[i])
	}

	log.Info().
		Int("statements", len(res.Statements)).
		Int("transactions", len(res.Transactions())).
		Int("failed", len(res.Failures)).
		Msg("batch finished")
	return res, nil
}

func (r *Runner) process(ctx context.Context, path string) (*models.Statement, error) {
	pages, err := r.pages(ctx, path)
	if err != nil {
		return nil, err
	}

	bank := r.Bank
	if bank == "" {
		if bank, err = parser.AutoDetect(pages); err != nil {
			r.Logger.Warn().Str("file", filepath.Base(path)).Str("bank", string(parser.DefaultBank)).Msg("bank not detected, using default parser")
			bank = parser.DefaultBank
		}
	}
	p, err := parser.New(bank, r.Options)
	if err != nil {
		return nil, err
	}
	stmt, err := p.Parse(pages)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	stmt.Source = path
	return stmt, nil
}

// pages returns the statement text. Plain-text inputs are taken as already
// OCR'd.
func (r *Runner) pages(ctx context.Context, path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %q: %w", path, err)
		}
		return []string{string(data)}, nil
	}

	if r.Mode == ModeTextLayer {
		start := time.Now()
		pages, err := r.readTextLayer(path)
		r.Metrics.ObserveExtraction("text-layer", time.Since(start))
		if err == nil && extractor.IsReadableText(pages) {
			return pages, nil
		}
		if r.Extractor == nil {
			if err == nil {
				err = fmt.Errorf("%s: text layer unreadable: %w", filepath.Base(path), extractor.ErrNoText)
			}
			return nil, err
		}
		r.Logger.Debug().Str("file", filepath.Base(path)).Msg("text layer unusable, running OCR")
	}

	if r.Extractor == nil {
		return nil, errors.New("no OCR extractor configured")
	}
	start := time.Now()
	text, err := r.Extractor.ExtractText(ctx, path)
	r.Metrics.ObserveExtraction("ocr", time.Since(start))
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func (r *Runner) readTextLayer(path string) ([]string, error) {
	if r.textLayer != nil {
		return r.textLayer(path)
	}
	return extractor.ExtractTextLayer(path)
}

func (r *Runner) workers() int {
	if r.Workers < 1 {
		return 1
	}
	return r.Workers
}
