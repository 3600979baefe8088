package importer

import (
	"math"
	"strings"
	"unicode"
)

// Tunable inference thresholds. These were calibrated against real imported
// spreadsheets rather than derived from first principles; treat them as
// knobs, not business rules.
const (
	// fracEpsilon decides whether a float counts as integer-valued.
	fracEpsilon = 1e-6
	// maxSaldoMagnitude caps how large a number can be and still plausibly
	// be an on-hand quantity rather than a monetary amount.
	maxSaldoMagnitude = 100_000
)

// NumericCandidate is one row field that parses as a number and is not an
// identifier-like column. The inference engine picks saldo and valor_total
// from these when the sheet does not say which column is which.
type NumericCandidate struct {
	Key    string
	Raw    any
	Parsed float64
}

// identifierKey reports whether a normalized header key names an identifier
// column, whose numeric-looking content must never be mistaken for a
// quantity or a price.
func identifierKey(key string) bool {
	return strings.Contains(key, "cod") ||
		strings.Contains(key, "codigo") ||
		strings.Contains(key, "código") ||
		strings.Contains(key, "id") ||
		strings.Contains(key, "grupo")
}

// numericCandidates collects every parseable numeric field of the row,
// skipping identifier columns, free-text cells, any cell whose raw text
// equals the row's extracted product code, and any value already claimed by
// another field.
func numericCandidates(rec Record, codigo string, exclude []float64) []NumericCandidate {
	var out []NumericCandidate
	rec.Each(func(key string, value any) {
		if identifierKey(key) {
			return
		}
		if s, ok := value.(string); ok && !numericText(s) {
			return
		}
		if codigo != "" && strings.TrimSpace(stringify(value)) == codigo {
			return
		}
		n := ParseNumber(value)
		if n == nil || containsFloat(exclude, *n) {
			return
		}
		out = append(out, NumericCandidate{Key: key, Raw: value, Parsed: *n})
	})
	return out
}

func isIntegerValued(f float64) bool {
	return math.Abs(math.Mod(f, 1)) < fracEpsilon
}

// chooseValorTotal picks the candidate most likely to be a monetary total:
// the first one with a genuine fractional part, otherwise the one with the
// largest absolute magnitude. Zero is never a useful total.
func chooseValorTotal(cands []NumericCandidate) *float64 {
	for _, c := range cands {
		if c.Parsed != 0 && !isIntegerValued(c.Parsed) {
			v := c.Parsed
			return &v
		}
	}
	var best *float64
	for _, c := range cands {
		if c.Parsed == 0 {
			continue
		}
		if best == nil || math.Abs(c.Parsed) > math.Abs(*best) {
			v := c.Parsed
			best = &v
		}
	}
	return best
}

// chooseSaldo picks the candidate most likely to be an on-hand quantity.
// Integer-valued candidates within the magnitude cap are preferred, smallest
// non-negative first; failing that, the first integer candidate; failing
// that, the remaining candidate closest to zero.
func chooseSaldo(cands []NumericCandidate) *float64 {
	if len(cands) == 0 {
		return nil
	}

	var ints []NumericCandidate
	for _, c := range cands {
		if isIntegerValued(c.Parsed) && math.Abs(c.Parsed) <= maxSaldoMagnitude {
			ints = append(ints, c)
		}
	}
	if len(ints) > 0 {
		var best *float64
		for _, c := range ints {
			if c.Parsed < 0 {
				continue
			}
			if best == nil || c.Parsed < *best {
				v := c.Parsed
				best = &v
			}
		}
		if best != nil {
			return best
		}
		v := ints[0].Parsed
		return &v
	}

	v := cands[0].Parsed
	for _, c := range cands[1:] {
		if math.Abs(c.Parsed) < math.Abs(v) {
			v = c.Parsed
		}
	}
	return &v
}

// inferNumericFields fills saldo and valor_total when the extractor could
// not produce them, without ever overwriting an explicitly-parsed non-null,
// non-zero value. valor_total is resolved first; saldo is then chosen from
// the candidates minus the value just claimed.
func inferNumericFields(rec Record, ex extracted) (saldo, valorTotal *float64) {
	saldo = ParseNumber(ex.SaldoRaw)
	valorTotal = ParseNumber(ex.ValorRaw)

	needValor := valorTotal == nil || *valorTotal == 0
	needSaldo := saldo == nil && !ex.ExplicitSaldo

	// Values already accounted for must not be re-used for another field.
	var claimed []float64
	if saldo != nil {
		claimed = append(claimed, *saldo)
	}

	if needValor {
		// A currency-looking token anywhere in the row beats the generic
		// candidate heuristics.
		inferred := detectCurrencyLike(rec, claimed)
		if inferred == nil {
			inferred = chooseValorTotal(numericCandidates(rec, ex.Codigo, claimed))
		}
		if inferred != nil {
			valorTotal = inferred
			claimed = append(claimed, *inferred)
		}
		// When nothing is found an explicit zero stays zero and an absent
		// value stays null; fabricating a total would be worse.
	}

	if needSaldo {
		saldo = chooseSaldo(numericCandidates(rec, ex.Codigo, claimed))
	}
	return saldo, valorTotal
}

// numericText reports whether a cell reads as a number rather than prose
// that happens to contain digits ("Parafuso M6"). A currency prefix is the
// one tolerated letter sequence.
func numericText(s string) bool {
	lowered := strings.ReplaceAll(strings.ToLower(s), "r$", "")
	for _, r := range lowered {
		if unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func containsFloat(values []float64, f float64) bool {
	for _, v := range values {
		if v == f {
			return true
		}
	}
	return false
}
