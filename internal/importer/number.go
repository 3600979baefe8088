package importer

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseNumber converts an arbitrary spreadsheet cell value into a float, or
// nil when the cell carries no usable number. It accepts the pt-BR formats
// seen in real stock sheets ("1.234,56", "14,4", "R$ 12,00") as well as plain
// machine formats ("1234.56"), and treats dash-only cells ("-", "–", "—") as
// empty, which is how the source spreadsheets mark missing values.
//
// The function never panics; anything malformed degrades to nil.
func ParseNumber(value any) *float64 {
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return finite(float64(v))
	case int64:
		return finite(float64(v))
	case string:
		return parseNumericString(v)
	default:
		return nil
	}
}

func parseNumericString(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if isDashOnly(s) {
		return nil
	}

	// Drop NBSP and every other whitespace rune.
	s = strings.Map(func(r rune) rune {
		if r == ' ' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	hasComma := strings.Contains(s, ",")
	hasDot := strings.Contains(s, ".")
	switch {
	case hasComma && hasDot:
		// pt-BR: dot is the thousands separator, comma the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return nil
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return finite(f)
}

func isDashOnly(s string) bool {
	for _, r := range s {
		switch r {
		case '-', '–', '—':
		default:
			return false
		}
	}
	return true
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
