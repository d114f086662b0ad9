package models

import "cloud.google.com/go/civil"

// BankType represents supported bank statement formats.
type BankType string

const (
	BankDeutsche BankType = "deutsche"
)

// StatementMetadata holds the statement-level figures recovered from the
// OCR text. Balances are the literal matched strings.
type StatementMetadata struct {
	PeriodFrom     Optional[civil.Date] `json:"period_from"`
	PeriodTo       Optional[civil.Date] `json:"period_to"`
	StatementDate  Optional[civil.Date] `json:"statement_date"`
	OpeningBalance Optional[string]     `json:"opening_balance"`
	ClosingBalance Optional[string]     `json:"closing_balance"`
}

// Year is the year of the period end, which dates the statement.
func (m StatementMetadata) Year() Optional[int] {
	if to, ok := m.PeriodTo.Get(); ok {
		return Some(to.Year)
	}
	return None[int]()
}

// DebugLine captures what the scanner did with each input line. Result is
// one of booking-date, value-date, description, amount, extra-amount,
// marker, abandoned or skipped.
type DebugLine struct {
	LineNum int    `json:"lineNum"`
	Text    string `json:"text"`
	Kind    string `json:"kind"`
	Result  string `json:"result"`
}

// Statement is everything extracted from one statement's text.
type Statement struct {
	Source       string            `json:"source,omitempty"`
	Bank         BankType          `json:"bank"`
	Metadata     StatementMetadata `json:"metadata"`
	Transactions []Transaction     `json:"transactions"`
	DebugLines   []DebugLine       `json:"debugLines,omitempty"`
}
