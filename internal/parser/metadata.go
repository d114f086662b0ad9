package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/aartemyeu/void.bookkeeper/internal/models"
)

// BalanceWindow is how many lines after a balance label are searched for
// its figure. OCR often pushes the figure below currency labels and
// footnotes, but further away it is likely another section's amount.
const BalanceWindow = 24

// "Account statement from 15.12.2020 to 14.01.2021"
var periodPattern = regexp.MustCompile(
	`(?i)from\s+(\d{2})\.(\d{2})\.(\d{4})\s+to\s+(\d{2})\.(\d{2})\.(\d{4})`,
)

// ExtractMetadata scans OCR text for the statement period and the opening
// and closing balances. Fields that cannot be found stay absent.
func ExtractMetadata(text string) models.StatementMetadata {
	return extractMetadata(Tokenize(text))
}

func extractMetadata(lines []Line) models.StatementMetadata {
	var meta models.StatementMetadata

	for i, line := range lines {
		if !meta.PeriodFrom.IsSet() {
			if from, to, ok := matchPeriod(line.Text); ok {
				meta.PeriodFrom = models.Some(from)
				meta.PeriodTo = models.Some(to)
				// The statement is dated by the end of its period.
				meta.StatementDate = models.Some(to)
			}
		}

		lower := strings.ToLower(line.Text)
		if !meta.OpeningBalance.IsSet() && strings.Contains(lower, "previous balance") {
			if bal, ok := balanceAfter(lines, i); ok {
				meta.OpeningBalance = models.Some(bal)
			}
		}
		if !meta.ClosingBalance.IsSet() && strings.Contains(lower, "new balance") {
			if bal, ok := balanceAfter(lines, i); ok {
				meta.ClosingBalance = models.Some(bal)
			}
		}
	}

	return meta
}

// balanceAfter returns the first money token within BalanceWindow lines
// after the label at index i.
func balanceAfter(lines []Line, i int) (string, bool) {
	line, _, ok := SearchWindow(lines, i+1, BalanceWindow, func(l Line) bool {
		return l.Kind == AmountToken
	})
	if !ok {
		return "", false
	}
	return line.Text, true
}

// matchPeriod finds "from DD.MM.YYYY to DD.MM.YYYY" in a line. Both dates
// must be real calendar dates.
func matchPeriod(line string) (civil.Date, civil.Date, bool) {
	m := periodPattern.FindStringSubmatch(line)
	if m == nil {
		return civil.Date{}, civil.Date{}, false
	}
	from, ok := dottedDate(m[1], m[2], m[3])
	if !ok {
		return civil.Date{}, civil.Date{}, false
	}
	to, ok := dottedDate(m[4], m[5], m[6])
	if !ok {
		return civil.Date{}, civil.Date{}, false
	}
	return from, to, true
}

func dottedDate(dd, mm, yyyy string) (civil.Date, bool) {
	day, err1 := strconv.Atoi(dd)
	month, err2 := strconv.Atoi(mm)
	year, err3 := strconv.Atoi(yyyy)
	if err1 != nil || err2 != nil || err3 != nil {
		return civil.Date{}, false
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	return d, d.IsValid()
}
