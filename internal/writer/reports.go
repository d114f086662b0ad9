package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// Report file names inside the reports directory.
const (
	TransactionsJSON = "transactions.json"
	TransactionsCSV  = "transactions.csv"
	StatementsJSON   = "statements.json"
	StatementsCSV    = "statements.csv"
)

// AllTransactions concatenates the transactions of stmts in order.
func AllTransactions(stmts []*models.Statement) []models.Transaction {
	var all []models.Transaction
	for _, s := range stmts {
		all = append(all, s.Transactions...)
	}
	return all
}

// WriteReports creates dir if needed and writes the four report files. It
// returns the paths written.
func WriteReports(dir string, stmts []*models.Statement, includeYear bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create reports dir %q: %w", dir, err)
	}

	txns := AllTransactions(stmts)
	csvw := &CSVWriter{IncludeYear: includeYear}
	jsonw := &JSONWriter{IncludeYear: includeYear}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{TransactionsJSON, func(f io.Writer) error { return jsonw.WriteTransactions(f, txns) }},
		{TransactionsCSV, func(f io.Writer) error { return csvw.WriteTransactions(f, txns) }},
		{StatementsJSON, func(f io.Writer) error { return jsonw.WriteStatements(f, stmts) }},
		{StatementsCSV, func(f io.Writer) error { return csvw.WriteStatements(f, stmts) }},
	}

	paths := make([]string, 0, len(files))
	for _, file := range files {
		path := filepath.Join(dir, file.name)
		if err := writeFile(path, file.write); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
