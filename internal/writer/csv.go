package writer

import (
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/civil"
	"github.com/gocarina/gocsv"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// CSVWriter writes transactions and statement summaries as CSV.
type CSVWriter struct {
	// IncludeYear adds a leading "year" column to the statements file.
	IncludeYear bool
}

// statementRow is one line of statements.csv / statements.json.
type statementRow struct {
	StatementDate  models.Optional[civil.Date] `json:"statement_date" csv:"statement_date"`
	PeriodFrom     models.Optional[civil.Date] `json:"period_from" csv:"period_from"`
	PeriodTo       models.Optional[civil.Date] `json:"period_to" csv:"period_to"`
	OpeningBalance models.Optional[string]     `json:"opening_balance" csv:"opening_balance"`
	ClosingBalance models.Optional[string]     `json:"closing_balance" csv:"closing_balance"`
}

type statementRowWithYear struct {
	Year           models.Optional[int]        `json:"year" csv:"year"`
	StatementDate  models.Optional[civil.Date] `json:"statement_date" csv:"statement_date"`
	PeriodFrom     models.Optional[civil.Date] `json:"period_from" csv:"period_from"`
	PeriodTo       models.Optional[civil.Date] `json:"period_to" csv:"period_to"`
	OpeningBalance models.Optional[string]     `json:"opening_balance" csv:"opening_balance"`
	ClosingBalance models.Optional[string]     `json:"closing_balance" csv:"closing_balance"`
}

func newStatementRow(m models.StatementMetadata) statementRow {
	return statementRow{
		StatementDate:  m.StatementDate,
		PeriodFrom:     m.PeriodFrom,
		PeriodTo:       m.PeriodTo,
		OpeningBalance: m.OpeningBalance,
		ClosingBalance: m.ClosingBalance,
	}
}

func newStatementRowWithYear(m models.StatementMetadata) statementRowWithYear {
	r := newStatementRow(m)
	return statementRowWithYear{
		Year:           m.Year(),
		StatementDate:  r.StatementDate,
		PeriodFrom:     r.PeriodFrom,
		PeriodTo:       r.PeriodTo,
		OpeningBalance: r.OpeningBalance,
		ClosingBalance: r.ClosingBalance,
	}
}

// statementRows returns the rows for stmts in the shape selected by
// includeYear.
func statementRows(stmts []*models.Statement, includeYear bool) any {
	if includeYear {
		rows := make([]statementRowWithYear, 0, len(stmts))
		for _, s := range stmts {
			rows = append(rows, newStatementRowWithYear(s.Metadata))
		}
		return rows
	}
	rows := make([]statementRow, 0, len(stmts))
	for _, s := range stmts {
		rows = append(rows, newStatementRow(s.Metadata))
	}
	return rows
}

// WriteTransactions writes booking_date,value_date,description,amount rows.
func (w *CSVWriter) WriteTransactions(out io.Writer, txns []models.Transaction) error {
	if txns == nil {
		txns = []models.Transaction{}
	}
	if err := gocsv.Marshal(txns, out); err != nil {
		return fmt.Errorf("failed to write transactions CSV: %w", err)
	}
	return nil
}

// WriteStatements writes one row of metadata per statement. Absent values
// are empty cells.
func (w *CSVWriter) WriteStatements(out io.Writer, stmts []*models.Statement) error {
	if err := gocsv.Marshal(statementRows(stmts, w.IncludeYear), out); err != nil {
		return fmt.Errorf("failed to write statements CSV: %w", err)
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file %q: %w", path, err)
	}
	return nil
}
