package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// statementText mimics pdftotext output of an OCR'd statement whose period
// crosses a year boundary.
var statementText = ocrText(
	"Deutsche Bank",
	"Account statement from 15.12.2020 to 14.01.2021",
	"",
	"Previous balance",
	"EUR",
	"1,200.00",
	"Booking",
	"Value",
	"Transaction",
	"Debit",
	"Credit",
	"12/16",
	"12/16",
	"Card payment",
	"- 45.00",
	"Statement Page",
	"1 of 2",
	"01/04",
	"01/05",
	"SEPA Credit Transfer",
	"Salary December",
	"+ 2,100.00",
	"New balance",
	"EUR",
	"3,255.00",
	"German bank code",
)

func TestAutoDetect(t *testing.T) {
	tests := []struct {
		name     string
		pages    []string
		expected models.BankType
		wantErr  bool
	}{
		{
			name:     "detects bank name",
			pages:    []string{"Deutsche Bank AG\nAccount statement"},
			expected: models.BankDeutsche,
		},
		{
			name:     "detects from page furniture",
			pages:    []string{"page one", "GERMAN BANK CODE 100 700 24"},
			expected: models.BankDeutsche,
		},
		{
			name:     "detects from period line",
			pages:    []string{"Account statement from 15.12.2020 to 14.01.2021"},
			expected: models.BankDeutsche,
		},
		{
			name:     "tolerates OCR misreads",
			pages:    []string{"Deutsche Bamk\nAccount overview"},
			expected: models.BankDeutsche,
		},
		{
			name:     "tolerates misread page furniture",
			pages:    []string{"Gerrnan bank code 100 700 24"},
			expected: models.BankDeutsche,
		},
		{
			name:    "other bank is not a near miss",
			pages:   []string{"Commerzbank AG\nKontoauszug"},
			wantErr: true,
		},
		{
			name:    "unknown bank returns error",
			pages:   []string{"Some Unknown Bank\nStatement"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AutoDetect(tt.pages)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNew(t *testing.T) {
	p, err := New(models.BankDeutsche, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "Deutsche Bank", p.BankName())

	_, err = New("unknown", DefaultOptions())
	assert.Error(t, err)
}

func TestParseBankType(t *testing.T) {
	for _, name := range []string{"deutsche", "Deutsche-Bank", " db "} {
		got, err := ParseBankType(name)
		require.NoError(t, err, name)
		assert.Equal(t, models.BankDeutsche, got)
	}

	_, err := ParseBankType("hsbc")
	assert.Error(t, err)
}

func TestDeutscheBankParser_Parse(t *testing.T) {
	p := &DeutscheBankParser{Options: DefaultOptions()}

	stmt, err := p.Parse([]string{statementText})
	require.NoError(t, err)

	assert.Equal(t, models.BankDeutsche, stmt.Bank)
	assert.Equal(t, "2020-12-15", stmt.Metadata.PeriodFrom.String())
	assert.Equal(t, "2021-01-14", stmt.Metadata.PeriodTo.String())
	assert.Equal(t, "2021-01-14", stmt.Metadata.StatementDate.String())
	assert.Equal(t, "1,200.00", stmt.Metadata.OpeningBalance.OrElse(""))
	assert.Equal(t, "3,255.00", stmt.Metadata.ClosingBalance.OrElse(""))

	require.Len(t, stmt.Transactions, 2)

	txn := stmt.Transactions[0]
	assert.Equal(t, "2020-12-16", txn.BookingDate.String())
	assert.Equal(t, "2020-12-16", txn.ValueDate.String())
	assert.Equal(t, "Card payment", txn.Description)
	assert.Equal(t, "- 45.00", txn.Amount)

	txn = stmt.Transactions[1]
	assert.Equal(t, "2021-01-04", txn.BookingDate.String())
	assert.Equal(t, "2021-01-05", txn.ValueDate.String())
	assert.Equal(t, "SEPA Credit Transfer Salary December", txn.Description)
	assert.Equal(t, "+ 2,100.00", txn.Amount)

	assert.Empty(t, stmt.DebugLines)
}

func TestDeutscheBankParser_PagesJoined(t *testing.T) {
	p := &DeutscheBankParser{Options: DefaultOptions()}

	stmt, err := p.Parse([]string{
		"Account statement from 01.03.2021 to 31.03.2021\n03/02\n03/02",
		"Rent\n- 800.00",
	})
	require.NoError(t, err)
	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, "2021-03-02", stmt.Transactions[0].BookingDate.String())
	assert.Equal(t, "Rent", stmt.Transactions[0].Description)
}

func TestDeutscheBankParser_EmptyText(t *testing.T) {
	p := &DeutscheBankParser{Options: DefaultOptions()}

	_, err := p.Parse([]string{"", "  \n "})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestParseText_WithoutDateResolution(t *testing.T) {
	stmt := ParseText(statementText, Options{ResolveDates: false})

	require.Len(t, stmt.Transactions, 2)
	assert.Equal(t, "12/16", stmt.Transactions[0].BookingDate.String())
	assert.Equal(t, "01/05", stmt.Transactions[1].ValueDate.String())
	// metadata is still extracted
	assert.Equal(t, "2020-12-15", stmt.Metadata.PeriodFrom.String())
}

func TestParseText_UnknownPeriodLeavesPartialDates(t *testing.T) {
	stmt := ParseText(ocrText("03/01", "03/01", "Interest", "0.12"), DefaultOptions())

	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, "03/01", stmt.Transactions[0].BookingDate.String())
	assert.False(t, stmt.Transactions[0].BookingDate.Resolved.IsSet())
}

func TestParseText_Debug(t *testing.T) {
	stmt := ParseText(statementText, Options{ResolveDates: true, Debug: true})

	require.NotEmpty(t, stmt.DebugLines)
	assert.Equal(t, len(Tokenize(statementText)), len(stmt.DebugLines))
}

func TestParseText_YearCrossingStatement(t *testing.T) {
	text := ocrText(
		"Account statement from 15.12.2020 to 14.01.2021",
		"Previous balance",
		"",
		"1,200.00",
		"12/16",
		"12/16",
		"Card payment",
		"- 45.00",
	)

	stmt := ParseText(text, DefaultOptions())

	assert.Equal(t, "2020-12-15", stmt.Metadata.PeriodFrom.String())
	assert.Equal(t, "2021-01-14", stmt.Metadata.PeriodTo.String())
	assert.Equal(t, "1,200.00", stmt.Metadata.OpeningBalance.OrElse(""))
	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, "2020-12-16", stmt.Transactions[0].BookingDate.String())
	assert.Equal(t, "2020-12-16", stmt.Transactions[0].ValueDate.String())
	assert.Equal(t, "Card payment", stmt.Transactions[0].Description)
	assert.Equal(t, "- 45.00", stmt.Transactions[0].Amount)
}
