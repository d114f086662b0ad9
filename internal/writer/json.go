package writer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// JSONWriter writes the same data as CSVWriter as indented JSON arrays.
// Absent values are null and non-ASCII text is written as-is.
type JSONWriter struct {
	IncludeYear bool
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (w *JSONWriter) WriteTransactions(out io.Writer, txns []models.Transaction) error {
	if txns == nil {
		txns = []models.Transaction{}
	}
	if err := encodeJSON(out, txns); err != nil {
		return fmt.Errorf("failed to write transactions JSON: %w", err)
	}
	return nil
}

func (w *JSONWriter) WriteStatements(out io.Writer, stmts []*models.Statement) error {
	if err := encodeJSON(out, statementRows(stmts, w.IncludeYear)); err != nil {
		return fmt.Errorf("failed to write statements JSON: %w", err)
	}
	return nil
}
