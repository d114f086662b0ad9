package parser

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// Resolve turns a partial date into YYYY-MM-DD using the statement period.
// Without both period bounds, or when the month/day is not a real date, the
// original MM/DD token is returned unchanged.
func Resolve(partial models.PartialDate, from, to models.Optional[civil.Date]) string {
	return ResolveDate(partial, from, to).String()
}

// ResolveToken is Resolve for a raw "MM/DD" token. Tokens that do not parse
// are returned as is.
func ResolveToken(token string, from, to models.Optional[civil.Date]) string {
	partial, err := models.ParsePartialDate(token)
	if err != nil {
		return token
	}
	return Resolve(partial, from, to)
}

// ResolveDate is Resolve keeping the partial date alongside the result.
//
// A period inside one calendar year gives that year. A period spanning a
// year boundary (e.g. 15.12.2020 to 14.01.2021) puts months from the start
// month onwards in the start year and earlier months in the end year.
func ResolveDate(partial models.PartialDate, from, to models.Optional[civil.Date]) models.EntryDate {
	entry := models.Unresolved(partial)

	start, ok := from.Get()
	if !ok {
		return entry
	}
	end, ok := to.Get()
	if !ok {
		return entry
	}
	if partial.Month < 1 || partial.Month > 12 {
		return entry
	}

	year := start.Year
	if start.Year != end.Year && time.Month(partial.Month) < start.Month {
		year = end.Year
	}

	d := civil.Date{Year: year, Month: time.Month(partial.Month), Day: partial.Day}
	if !d.IsValid() {
		return entry
	}
	entry.Resolved = models.Some(d)
	return entry
}

// ResolveTransactions returns txns with both dates resolved against the
// statement period.
func ResolveTransactions(txns []models.Transaction, meta models.StatementMetadata) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	for i, txn := range txns {
		txn.BookingDate = ResolveDate(txn.BookingDate.Partial, meta.PeriodFrom, meta.PeriodTo)
		txn.ValueDate = ResolveDate(txn.ValueDate.Partial, meta.PeriodFrom, meta.PeriodTo)
		out[i] = txn
	}
	return out
}
