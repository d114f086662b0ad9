package extractor

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// cellGap is the horizontal distance, in points, between two text runs on
// the same row above which they are treated as separate table cells.
const cellGap = 15.0

// ExtractTextLayer reads the text already embedded in a PDF and returns one
// string per page. Table cells are written one per line, the same shape
// pdftotext gives for an OCR'd statement, so the result feeds the same
// parser. Used as the fallback when pdftotext fails and for statements that
// were born digital.
func ExtractTextLayer(filePath string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PDF library crashed: %v", r)
		}
	}()

	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	numPages := r.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("PDF has no pages: %w", ErrNoText)
	}

	// Method 1: rebuild rows from positioned text, split into cells
	pages = extractCells(r, numPages)
	if isReadableText(pages) {
		return pages, nil
	}

	// Method 2: whole-document plain text
	plainText := extractByReaderPlainText(r)
	if isReadableText([]string{plainText}) {
		return []string{plainText}, nil
	}

	return nil, fmt.Errorf("text layer of %s is empty or unreadable: %w", filePath, ErrNoText)
}

// extractCells groups text runs by Y coordinate into rows, sorts each row
// by X and starts a new line wherever the gap to the previous run exceeds
// cellGap.
func extractCells(r *pdf.Reader, numPages int) []string {
	var pages []string
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		rowMap := make(map[int][]pdf.Text)
		for _, t := range content.Text {
			if t.S == "" {
				continue
			}
			yKey := int(math.Round(t.Y))
			rowMap[yKey] = append(rowMap[yKey], t)
		}

		// PDF Y grows upwards, so higher rows come first.
		yKeys := make([]int, 0, len(rowMap))
		for y := range rowMap {
			yKeys = append(yKeys, y)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(yKeys)))

		var lines []string
		for _, y := range yKeys {
			items := rowMap[y]
			sort.Slice(items, func(a, b int) bool {
				return items[a].X < items[b].X
			})

			var cell strings.Builder
			var prevEnd float64
			for j, item := range items {
				if j > 0 && item.X-prevEnd > cellGap {
					lines = appendLine(lines, cell.String())
					cell.Reset()
				}
				cell.WriteString(item.S)
				prevEnd = item.X + item.W
			}
			lines = appendLine(lines, cell.String())
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages
}

func appendLine(lines []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return lines
	}
	return append(lines, s)
}

// extractByReaderPlainText is whole-document extraction
func extractByReaderPlainText(r *pdf.Reader) string {
	reader, err := r.GetPlainText()
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// textQuality returns the ratio of basic ASCII readable characters (a-z, A-Z,
// 0-9, common punctuation, whitespace) to total characters. Returns 0.0-1.0.
// Uses a strict ASCII check; unicode.IsLetter() also accepts the accented
// garbage that identity-encoded fonts decode to.
func textQuality(pages []string) float64 {
	total := 0
	readable := 0
	for _, page := range pages {
		for _, r := range page {
			total++
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
				(r >= '0' && r <= '9') || unicode.IsSpace(r) ||
				strings.ContainsRune(".,-/:;()'\"€$£%&@#!?+=*", r) {
				readable++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear in virtually every statement. Text with none of them is
// taken to be garbage.
var commonWords = []string{
	"bank", "account", "balance", "statement", "booking", "value",
	"transaction", "payment", "transfer", "debit", "credit", "page",
}

func containsCommonWords(pages []string) bool {
	combined := strings.ToLower(strings.Join(pages, " "))
	for _, word := range commonWords {
		if strings.Contains(combined, word) {
			return true
		}
	}
	return false
}

// isReadableText requires >50 chars, >60% readable ASCII characters and at
// least one common statement word.
func isReadableText(pages []string) bool {
	if totalTextLen(pages) <= 50 {
		return false
	}
	if textQuality(pages) <= 0.6 {
		return false
	}
	return containsCommonWords(pages)
}

// IsReadableText is the exported version for use by other packages.
func IsReadableText(pages []string) bool {
	return isReadableText(pages)
}

func totalTextLen(pages []string) int {
	n := 0
	for _, p := range pages {
		n += len(strings.TrimSpace(p))
	}
	return n
}
