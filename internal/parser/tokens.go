package parser

import (
	"regexp"
	"strings"
)

// TokenKind classifies one trimmed OCR line.
type TokenKind int

const (
	BlankToken TokenKind = iota
	DateToken
	MarkerToken
	AmountToken
	TextToken
)

func (k TokenKind) String() string {
	switch k {
	case BlankToken:
		return "blank"
	case DateToken:
		return "date"
	case MarkerToken:
		return "marker"
	case AmountToken:
		return "amount"
	default:
		return "text"
	}
}

var (
	// MM/DD on a line of its own, the per-row booking and value dates.
	partialDatePattern = regexp.MustCompile(`^\d{2}/\d{2}$`)
	// A whole line that is a money amount: optional sign, optional space,
	// digit groups with optional thousands commas, exactly two decimals.
	// Examples: "- 12.01", "+ 1,109.68", "1,112.00".
	moneyPattern = regexp.MustCompile(`^[-+]?\s*[\d,]+\.\d{2}$`)
)

// sectionMarkers are page furniture lines that end a transaction block.
// Matched exactly, case-sensitive.
var sectionMarkers = map[string]bool{
	"Statement Page":   true,
	"Branch number":    true,
	"New balance":      true,
	"Important notes":  true,
	"German bank code": true,
}

// Line is one trimmed line of OCR text with its position and class.
type Line struct {
	Index int
	Text  string
	Kind  TokenKind
}

// IsMoneyToken reports whether s, trimmed, is exactly a money amount.
func IsMoneyToken(s string) bool {
	return moneyPattern.MatchString(strings.TrimSpace(s))
}

// IsPartialDate reports whether s, trimmed, is exactly an MM/DD token.
func IsPartialDate(s string) bool {
	return partialDatePattern.MatchString(strings.TrimSpace(s))
}

// Classify returns the token kind of a trimmed line. Dates are checked
// first, then section markers, then amounts, so a marker can never be
// read as an amount.
func Classify(text string) TokenKind {
	switch {
	case text == "":
		return BlankToken
	case partialDatePattern.MatchString(text):
		return DateToken
	case sectionMarkers[text]:
		return MarkerToken
	case moneyPattern.MatchString(text):
		return AmountToken
	default:
		return TextToken
	}
}

// Tokenize splits text into trimmed, classified lines.
func Tokenize(text string) []Line {
	raw := strings.Split(text, "\n")
	lines := make([]Line, len(raw))
	for i, r := range raw {
		t := strings.TrimSpace(r)
		lines[i] = Line{Index: i, Text: t, Kind: Classify(t)}
	}
	return lines
}
