package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RequiredTools are the external programs the OCR pipeline runs, in order.
var RequiredTools = []string{"gs", "pdftoppm", "magick", "ocrmypdf", "pdftotext"}

const installHint = "install with: brew install ghostscript poppler imagemagick && pip3 install ocrmypdf"

var (
	// ErrMissingTools is matched by MissingToolsError.
	ErrMissingTools = errors.New("missing OCR tools")
	// ErrNoText means a step ran but produced nothing to parse.
	ErrNoText = errors.New("no text extracted")
)

// MissingToolsError lists every required tool not found on PATH.
type MissingToolsError struct {
	Tools []string
}

func (e *MissingToolsError) Error() string {
	return fmt.Sprintf("missing OCR tools: %s (%s)", strings.Join(e.Tools, ", "), installHint)
}

func (e *MissingToolsError) Is(target error) bool {
	return target == ErrMissingTools
}

// Runner runs external commands. ExecRunner is the real implementation.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	LookPath(name string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w (stderr: %s)", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// CheckDependencies reports all RequiredTools that r cannot find.
func CheckDependencies(r Runner) error {
	if r == nil {
		r = ExecRunner{}
	}
	var missing []string
	for _, tool := range RequiredTools {
		if _, err := r.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return &MissingToolsError{Tools: missing}
	}
	return nil
}

// OCR turns a scanned statement PDF into plain text:
//
//	gs (rewrite) → pdftoppm (PNG per page) → magick (reassemble PDF)
//	→ ocrmypdf (add text layer) → pdftotext
//
// Rasterising and reassembling first strips whatever broken text layer the
// bank's PDF carries, so OCR sees only the page images.
type OCR struct {
	DPI      int
	Language string
	Runner   Runner
	Logger   zerolog.Logger
	// TempDir is the parent of per-statement scratch directories. Empty
	// means os.TempDir.
	TempDir string
}

// NewOCR returns an OCR pipeline that runs the real tools.
func NewOCR(dpi int, language string, log zerolog.Logger) *OCR {
	return &OCR{DPI: dpi, Language: language, Runner: ExecRunner{}, Logger: log}
}

// ExtractText runs the pipeline on pdfPath and returns the recognised text.
// Intermediate files live in a scratch directory removed before returning.
func (o *OCR) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	work, err := os.MkdirTemp(o.TempDir, "bank_ocr_*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(work)

	log := o.Logger.With().Str("file", filepath.Base(pdfPath)).Logger()

	var (
		gsPDF    = filepath.Join(work, "gs.pdf")
		pagePfx  = filepath.Join(work, "page")
		reconPDF = filepath.Join(work, "recon.pdf")
		ocrPDF   = filepath.Join(work, "ocr.pdf")
	)

	if _, err := o.run(ctx, log, "gs", "-dNOPAUSE", "-dBATCH", "-sDEVICE=pdfwrite", "-sOutputFile="+gsPDF, pdfPath); err != nil {
		return "", err
	}

	if _, err := o.run(ctx, log, "pdftoppm", "-png", "-r", strconv.Itoa(o.dpi()), gsPDF, pagePfx); err != nil {
		return "", err
	}
	images, err := filepath.Glob(pagePfx + "-*.png")
	if err != nil {
		return "", fmt.Errorf("list page images: %w", err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("pdftoppm produced no page images: %w", ErrNoText)
	}
	// pdftoppm zero-pads page numbers, so lexical order is page order.
	sort.Strings(images)
	log.Debug().Int("pages", len(images)).Msg("rasterised statement")

	if _, err := o.run(ctx, log, "magick", append(images, reconPDF)...); err != nil {
		return "", err
	}
	for _, img := range images {
		os.Remove(img)
	}

	if _, err := o.run(ctx, log, "ocrmypdf", "--language", o.language(), reconPDF, ocrPDF); err != nil {
		return "", err
	}

	out, err := o.run(ctx, log, "pdftotext", ocrPDF, "-")
	if err != nil {
		log.Warn().Err(err).Msg("pdftotext failed, reading OCR text layer directly")
		pages, layerErr := ExtractTextLayer(ocrPDF)
		if layerErr != nil {
			return "", fmt.Errorf("read OCR text: %w", errors.Join(err, layerErr))
		}
		out = []byte(strings.Join(pages, "\n"))
	}

	text := string(out)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("OCR of %s: %w", filepath.Base(pdfPath), ErrNoText)
	}
	return text, nil
}

func (o *OCR) run(ctx context.Context, log zerolog.Logger, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runner := o.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	start := time.Now()
	out, err := runner.Run(ctx, name, args...)
	if err != nil {
		return nil, fmt.Errorf("OCR step %s: %w", name, err)
	}
	log.Debug().Str("tool", name).Dur("took", time.Since(start)).Msg("OCR step done")
	return out, nil
}

func (o *OCR) dpi() int {
	if o.DPI <= 0 {
		return 300
	}
	return o.DPI
}

func (o *OCR) language() string {
	if o.Language == "" {
		return "eng"
	}
	return o.Language
}
