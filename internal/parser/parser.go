package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// Parser defines the interface for bank statement parsers.
type Parser interface {
	// Parse takes the OCR text of a statement's pages and returns structured statement data.
	Parse(pages []string) (*models.Statement, error)
	// BankName returns the human-readable bank name.
	BankName() string
}

// Options control how a statement is parsed.
type Options struct {
	// ResolveDates turns MM/DD dates into YYYY-MM-DD using the statement
	// period. When false, dates are kept exactly as printed.
	ResolveDates bool
	// Debug records what the scanner did with every line.
	Debug bool
}

// DefaultOptions resolves dates and does not record debug lines.
func DefaultOptions() Options {
	return Options{ResolveDates: true}
}

// ErrEmptyText is returned when a statement has no text to parse.
var ErrEmptyText = errors.New("statement text is empty")

// New returns the appropriate parser for the given bank type.
func New(bankType models.BankType, opts Options) (Parser, error) {
	switch bankType {
	case models.BankDeutsche:
		return &DeutscheBankParser{Options: opts}, nil
	default:
		return nil, fmt.Errorf("unsupported bank type: %q", bankType)
	}
}

// ParseBankType maps a user-supplied bank name to a BankType.
func ParseBankType(name string) (models.BankType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "deutsche", "deutschebank", "deutsche-bank", "db":
		return models.BankDeutsche, nil
	default:
		return "", fmt.Errorf("unknown bank type %q, supported: deutsche", name)
	}
}

// DefaultBank is parsed with when AutoDetect finds no marker. OCR often
// garbles the page header while the transaction rows still parse.
const DefaultBank = models.BankDeutsche

// deutscheMarkers identify a Deutsche Bank statement.
var deutscheMarkers = []string{"deutsche bank", "german bank code", "account statement from"}

// maxMarkerEdits is how many OCR misreads a marker line may carry.
const maxMarkerEdits = 2

// AutoDetect tries to identify the bank from the OCR text.
func AutoDetect(pages []string) (models.BankType, error) {
	combined := strings.ToLower(strings.Join(pages, "\n"))

	if containsAny(combined, deutscheMarkers) || fuzzyLineMatch(combined, deutscheMarkers) {
		return models.BankDeutsche, nil
	}

	return "", fmt.Errorf("could not auto-detect bank from statement content; please specify the bank explicitly")
}

func containsAny(text string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

// fuzzyLineMatch reports whether some line starts with a needle give or take
// maxMarkerEdits characters ("deutsche bamk", "gerrnan bank code").
func fuzzyLineMatch(text string, needles []string) bool {
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(strings.TrimSpace(line))
		if len(runes) == 0 {
			continue
		}
		for _, needle := range needles {
			n := len([]rune(needle))
			for l := n - maxMarkerEdits; l <= n+maxMarkerEdits && l <= len(runes); l++ {
				if l > 0 && fuzzy.LevenshteinDistance(string(runes[:l]), needle) <= maxMarkerEdits {
					return true
				}
			}
		}
	}
	return false
}

// DeutscheBankParser handles OCR text of Deutsche Bank English-language
// account statements.
//
// After OCR and pdftotext the transaction table comes out one cell per line:
//
//	12/16
//	12/16
//	Card payment
//	VISA Debit ... REWE Berlin
//	- 45.00
//
// with page furniture ("Statement Page", "German bank code", ...) between
// pages. The period is printed once as
// "Account statement from 15.12.2020 to 14.01.2021".
type DeutscheBankParser struct {
	Options Options
}

func (p *DeutscheBankParser) BankName() string {
	return "Deutsche Bank"
}

func (p *DeutscheBankParser) Parse(pages []string) (*models.Statement, error) {
	text := strings.Join(pages, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	stmt := ParseText(text, p.Options)
	stmt.Bank = models.BankDeutsche
	return stmt, nil
}

// ParseText runs the metadata pass, the transaction pass and, if enabled,
// date resolution over one statement's text. It never fails; anything it
// cannot recognise is left out.
func ParseText(text string, opts Options) *models.Statement {
	lines := Tokenize(text)

	var rec *recorder
	if opts.Debug {
		rec = &recorder{}
	}

	meta := extractMetadata(lines)
	txns := scanTransactions(lines, rec)
	if opts.ResolveDates {
		txns = ResolveTransactions(txns, meta)
	}

	stmt := &models.Statement{
		Metadata:     meta,
		Transactions: txns,
	}
	if rec != nil {
		stmt.DebugLines = rec.lines
	}
	return stmt
}
