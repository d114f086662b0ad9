package parser

import (
	"strings"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// scanState is the position of the transaction scanner within a block.
type scanState int

const (
	seekingBookingDate scanState = iota
	seekingValueDate
	accumulatingBody
)

// block is a transaction being assembled from consecutive lines:
//
//	12/16          booking date
//	12/16          value date
//	Card payment   description (any number of lines)
//	- 45.00        amount
type block struct {
	booking     models.PartialDate
	value       models.PartialDate
	description []string
	amount      models.Optional[string]
}

// transaction returns the finished row, or false when the block has no
// description or no amount.
func (b *block) transaction() (models.Transaction, bool) {
	desc := strings.TrimSpace(strings.Join(b.description, " "))
	amount, ok := b.amount.Get()
	if desc == "" || !ok {
		return models.Transaction{}, false
	}
	return models.Transaction{
		BookingDate: models.Unresolved(b.booking),
		ValueDate:   models.Unresolved(b.value),
		Description: desc,
		Amount:      amount,
	}, true
}

// recorder collects per-line debug output. A nil recorder records nothing.
type recorder struct {
	lines []models.DebugLine
}

func (r *recorder) note(l Line, result string) {
	if r == nil {
		return
	}
	r.lines = append(r.lines, models.DebugLine{
		LineNum: l.Index + 1,
		Text:    l.Text,
		Kind:    l.Kind.String(),
		Result:  result,
	})
}

// ExtractTransactions reassembles transaction rows from OCR text whose
// table layout has been flattened to one cell per line. Dates are left in
// their MM/DD form; see ResolveTransactions.
func ExtractTransactions(text string) []models.Transaction {
	return scanTransactions(Tokenize(text), nil)
}

func scanTransactions(lines []Line, rec *recorder) []models.Transaction {
	var (
		txns  []models.Transaction
		state = seekingBookingDate
		cur   block
	)

	finish := func() {
		if txn, ok := cur.transaction(); ok {
			txns = append(txns, txn)
		}
		cur = block{}
	}
	startBlock := func(l Line) {
		cur = block{booking: partialOf(l)}
		state = seekingValueDate
		rec.note(l, "booking-date")
	}

	for _, line := range lines {
		switch state {
		case seekingBookingDate:
			if line.Kind == DateToken {
				startBlock(line)
				continue
			}
			rec.note(line, "skipped")

		case seekingValueDate:
			switch line.Kind {
			case BlankToken:
				rec.note(line, "skipped")
			case DateToken:
				cur.value = partialOf(line)
				state = accumulatingBody
				rec.note(line, "value-date")
			default:
				// No value date: drop the block and look for the next
				// booking date from here on.
				cur = block{}
				state = seekingBookingDate
				rec.note(line, "abandoned")
			}

		case accumulatingBody:
			switch line.Kind {
			case DateToken:
				// Next row starts; this line is its booking date.
				finish()
				startBlock(line)
			case MarkerToken:
				finish()
				state = seekingBookingDate
				rec.note(line, "marker")
			case AmountToken:
				if cur.amount.IsSet() {
					rec.note(line, "extra-amount")
					continue
				}
				cur.amount = models.Some(line.Text)
				rec.note(line, "amount")
			case BlankToken:
				rec.note(line, "skipped")
			default:
				cur.description = append(cur.description, line.Text)
				rec.note(line, "description")
			}
		}
	}

	if state == accumulatingBody {
		finish()
	}
	return txns
}

func partialOf(l Line) models.PartialDate {
	// DateToken lines always match \d{2}/\d{2}; on error Token is still set.
	p, _ := models.ParsePartialDate(l.Text)
	return p
}
