package importer

import (
	"strings"
	"unicode"
)

// NormalizeHeader canonicalizes a raw spreadsheet column header so that
// differently formatted headers ("CÓDIGO PRODUTO", "Código_Produto ") compare
// equal. Non-breaking spaces become ordinary spaces, control characters are
// dropped (tab and CR still separate words), runs of anything that is not a
// letter or number collapse to a single space, and the result is trimmed and
// lower-cased.
//
// The function is total and idempotent: normalizing an already-normalized
// header returns it unchanged.
func NormalizeHeader(raw string) string {
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	for _, r := range raw {
		if r == '\u00a0' {
			r = ' '
		}
		if unicode.IsControl(r) {
			// Tabs and CRs separate words just like spaces do.
			if unicode.IsSpace(r) {
				pendingSpace = true
			}
			continue
		}
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}
