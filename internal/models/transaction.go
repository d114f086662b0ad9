package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// PartialDate is a month/day pair printed without a year, as in the
// per-row "MM/DD" columns of a statement table.
type PartialDate struct {
	Month int
	Day   int
	// Token is the text as it appeared in the source, e.g. "12/16".
	Token string
}

// NewPartialDate builds a PartialDate with a canonical "MM/DD" token.
func NewPartialDate(month, day int) PartialDate {
	return PartialDate{Month: month, Day: day, Token: fmt.Sprintf("%02d/%02d", month, day)}
}

// ParsePartialDate parses an "MM/DD" token. The token is kept verbatim.
func ParsePartialDate(token string) (PartialDate, error) {
	mm, dd, ok := strings.Cut(strings.TrimSpace(token), "/")
	if !ok {
		return PartialDate{Token: token}, fmt.Errorf("partial date %q: missing '/'", token)
	}
	month, err := strconv.Atoi(mm)
	if err != nil {
		return PartialDate{Token: token}, fmt.Errorf("partial date %q: month: %w", token, err)
	}
	day, err := strconv.Atoi(dd)
	if err != nil {
		return PartialDate{Token: token}, fmt.Errorf("partial date %q: day: %w", token, err)
	}
	return PartialDate{Month: month, Day: day, Token: token}, nil
}

func (p PartialDate) String() string {
	if p.Token != "" {
		return p.Token
	}
	return fmt.Sprintf("%02d/%02d", p.Month, p.Day)
}

// EntryDate is a transaction date as read from the statement plus its
// calendar resolution, if the statement period allowed one.
type EntryDate struct {
	Partial  PartialDate
	Resolved Optional[civil.Date]
}

// Unresolved wraps a partial date with no calendar resolution.
func Unresolved(p PartialDate) EntryDate {
	return EntryDate{Partial: p}
}

// String returns YYYY-MM-DD when resolved, else the original partial token.
func (d EntryDate) String() string {
	if date, ok := d.Resolved.Get(); ok {
		return date.String()
	}
	return d.Partial.String()
}

func (d EntryDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d EntryDate) MarshalCSV() (string, error) {
	return d.String(), nil
}

// Transaction is one statement row. Amount is the literal money token from
// the source ("- 45.00", "+ 1,109.68"); it is never reformatted.
type Transaction struct {
	BookingDate EntryDate `json:"booking_date" csv:"booking_date"`
	ValueDate   EntryDate `json:"value_date" csv:"value_date"`
	Description string    `json:"description" csv:"description"`
	Amount      string    `json:"amount" csv:"amount"`
}

// ParseAmount converts a money token such as "- 1,200.00" to a decimal.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00A0", "") // non-breaking space
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	return decimal.NewFromString(s)
}

// NetMovement sums the transaction amounts. It is a reporting figure only;
// it is not compared against the statement balances.
func NetMovement(txns []Transaction) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, txn := range txns {
		d, err := ParseAmount(txn.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("amount %q: %w", txn.Amount, err)
		}
		total = total.Add(d)
	}
	return total, nil
}
