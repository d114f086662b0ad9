package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aartemyeu/void.bookkeeper/internal/extractor"
	"github.com/aartemyeu/void.bookkeeper/internal/metrics"
	"github.com/aartemyeu/void.bookkeeper/internal/models"
	"github.com/aartemyeu/void.bookkeeper/internal/parser"
)

func statementText(from, to, booking, desc, amount string) string {
	return strings.Join([]string{
		"Deutsche Bank",
		"Account statement from " + from + " to " + to,
		"Previous balance",
		"+ 100.00",
		booking,
		booking,
		desc,
		amount,
		"New balance",
		"+ 55.00",
	}, "\n")
}

// fakeExtractor returns canned text per file name.
type fakeExtractor struct {
	mu      sync.Mutex
	texts   map[string]string
	calls   []string
	delay   time.Duration
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, filepath.Base(path))
	text, ok := f.texts[filepath.Base(path)]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if !ok {
		return "", fmt.Errorf("OCR step ocrmypdf: %w", errors.New("exit status 2"))
	}
	return text, nil
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		"2021/Account_statement_2021_02.pdf",
		"2021/Account_statement_2021_01.pdf",
		"2020/Account_statement_2020_12.pdf",
		"2020/notes.pdf",
		"Account_statement_loose.pdf",
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o600))
	}

	got, err := Discover(dir, "")
	require.NoError(t, err)

	var names []string
	for _, p := range got {
		rel, err := filepath.Rel(dir, p)
		require.NoError(t, err)
		names = append(names, filepath.ToSlash(rel))
	}
	assert.Equal(t, []string{
		"2020/Account_statement_2020_12.pdf",
		"2021/Account_statement_2021_01.pdf",
		"2021/Account_statement_2021_02.pdf",
	}, names)
}

func TestDiscover_MissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), DefaultGlob)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOCR, m)

	m, err = ParseMode("Text-Layer")
	require.NoError(t, err)
	assert.Equal(t, ModeTextLayer, m)

	_, err = ParseMode("vision")
	assert.Error(t, err)
}

func TestRunner_Run(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{
		"a.pdf": statementText("15.12.2020", "14.01.2021", "12/16", "Card payment", "- 45.00"),
		"c.pdf": statementText("15.01.2021", "14.02.2021", "02/01", "Rent", "- 800.00"),
	}}
	r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
	r.Workers = 3

	res, err := r.Run(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Statements, 2)
	assert.Equal(t, "a.pdf", res.Statements[0].Source)
	assert.Equal(t, "c.pdf", res.Statements[1].Source)
	assert.Equal(t, models.BankDeutsche, res.Statements[0].Bank)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "b.pdf", res.Failures[0].Path)
	assert.Contains(t, res.Failures[0].Err.Error(), "ocrmypdf")

	txns := res.Transactions()
	require.Len(t, txns, 2)
	assert.Equal(t, "2020-12-16", txns[0].BookingDate.String())
	assert.Equal(t, "Card payment", txns[0].Description)
	assert.Equal(t, "2021-02-01", txns[1].BookingDate.String())
}

func TestRunner_Run_RespectsWorkerLimit(t *testing.T) {
	texts := map[string]string{}
	var paths []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("s%d.pdf", i)
		texts[name] = statementText("01.03.2021", "31.03.2021", "03/05", "Payment", "- 1.00")
		paths = append(paths, name)
	}
	ext := &fakeExtractor{texts: texts, delay: 20 * time.Millisecond}
	r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
	r.Workers = 2

	res, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, res.Statements, 8)
	for i, s := range res.Statements {
		assert.Equal(t, paths[i], s.Source)
	}
	assert.LessOrEqual(t, ext.maxSeen.Load(), int32(2))
}

func TestRunner_Run_TextInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statement.txt")
	require.NoError(t, os.WriteFile(path, []byte(statementText("15.12.2020", "14.01.2021", "01/04", "Salary", "+ 1,109.68")), 0o600))

	ext := &fakeExtractor{}
	r := NewRunner(ext, parser.Options{ResolveDates: false}, zerolog.Nop())

	res, err := r.Run(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.Empty(t, ext.calls, "text inputs should not be OCR'd")

	txn := res.Statements[0].Transactions[0]
	assert.Equal(t, "01/04", txn.BookingDate.String())
	assert.Equal(t, "+ 1,109.68", txn.Amount)
}

func TestRunner_Run_UndetectedBankUsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.txt")
	require.NoError(t, os.WriteFile(path, []byte("Statement for period\n12/16\n12/16\nCard payment\n- 45.00"), 0o600))

	r := NewRunner(nil, parser.DefaultOptions(), zerolog.Nop())

	res, err := r.Run(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Statements, 1)
	assert.Equal(t, parser.DefaultBank, res.Statements[0].Bank)

	txns := res.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, "12/16", txns[0].BookingDate.String())
	assert.Equal(t, "Card payment", txns[0].Description)
	assert.Equal(t, "- 45.00", txns[0].Amount)
}

func TestRunner_Run_ExplicitBank(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{"x.pdf": "Some other bank\n01/02\n01/02\nThing\n- 1.00"}}
	r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
	r.Bank = models.BankDeutsche

	res, err := r.Run(context.Background(), []string{"x.pdf"})
	require.NoError(t, err)
	require.Len(t, res.Statements, 1)
	assert.Len(t, res.Statements[0].Transactions, 1)
}

func TestRunner_Run_TextLayerMode(t *testing.T) {
	good := statementText("15.12.2020", "14.01.2021", "12/16", "Card payment at the local bakery", "- 4.50")

	t.Run("readable text layer skips OCR", func(t *testing.T) {
		ext := &fakeExtractor{}
		r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
		r.Mode = ModeTextLayer
		r.textLayer = func(string) ([]string, error) { return []string{good}, nil }

		res, err := r.Run(context.Background(), []string{"born-digital.pdf"})
		require.NoError(t, err)
		require.Len(t, res.Statements, 1)
		assert.Empty(t, ext.calls)
	})

	t.Run("unreadable text layer falls back to OCR", func(t *testing.T) {
		ext := &fakeExtractor{texts: map[string]string{"scan.pdf": good}}
		r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
		r.Mode = ModeTextLayer
		r.textLayer = func(string) ([]string, error) { return nil, extractor.ErrNoText }

		res, err := r.Run(context.Background(), []string{"scan.pdf"})
		require.NoError(t, err)
		require.Len(t, res.Statements, 1)
		assert.Equal(t, []string{"scan.pdf"}, ext.calls)
	})

	t.Run("no OCR available", func(t *testing.T) {
		r := NewRunner(nil, parser.DefaultOptions(), zerolog.Nop())
		r.Mode = ModeTextLayer
		r.textLayer = func(string) ([]string, error) { return []string{"ÿþ"}, nil }

		res, err := r.Run(context.Background(), []string{"scan.pdf"})
		require.NoError(t, err)
		require.Len(t, res.Failures, 1)
		assert.ErrorIs(t, res.Failures[0].Err, extractor.ErrNoText)
	})
}

func TestRunner_Run_Cancelled(t *testing.T) {
	ext := &fakeExtractor{
		texts: map[string]string{"a.pdf": "x", "b.pdf": "y"},
		delay: time.Second,
	}
	r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := r.Run(ctx, []string{"a.pdf", "b.pdf"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_Run_RecordsMetrics(t *testing.T) {
	ext := &fakeExtractor{texts: map[string]string{
		"a.pdf": statementText("15.12.2020", "14.01.2021", "12/16", "Card payment", "- 45.00"),
	}}
	r := NewRunner(ext, parser.DefaultOptions(), zerolog.Nop())
	r.Metrics = metrics.New()

	_, err := r.Run(context.Background(), []string{"a.pdf", "missing.pdf"})
	require.NoError(t, err)

	families, err := r.Metrics.Registry().Gather()
	require.NoError(t, err)

	got := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			key := f.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				got[key] = c.GetValue()
			}
			if h := m.GetHistogram(); h != nil {
				got[key] = float64(h.GetSampleCount())
			}
		}
	}
	assert.Equal(t, 1.0, got["statement_extractor_statements_total/parsed"])
	assert.Equal(t, 1.0, got["statement_extractor_statements_total/failed"])
	assert.Equal(t, 1.0, got["statement_extractor_transactions_total"])
	assert.Equal(t, 2.0, got["statement_extractor_text_extraction_seconds/ocr"])
}
