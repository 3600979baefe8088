package importer

import (
	"fmt"
	"strconv"
	"strings"
)

// cell is one spreadsheet cell annotated with the header it came from, kept
// in sheet order so heuristics that say "first matching column" stay
// deterministic.
type cell struct {
	Header string // original header text
	Key    string // NormalizeHeader(Header)
	Value  any
}

// Record is one raw spreadsheet row: the original header-to-value mapping
// plus a normalized-key index built once at construction. Records are never
// mutated after creation.
type Record struct {
	Line  int // 1-based sheet line, headers are line 1
	cells []cell
	byKey map[string]any // normalized key -> value, last column wins
}

func NewRecord(line int, headers []string, values []any) Record {
	r := Record{
		Line:  line,
		cells: make([]cell, 0, len(headers)),
		byKey: make(map[string]any, len(headers)),
	}
	for i, h := range headers {
		var v any
		if i < len(values) {
			v = values[i]
		}
		key := NormalizeHeader(h)
		r.cells = append(r.cells, cell{Header: h, Key: key, Value: v})
		r.byKey[key] = v
	}
	return r
}

// Probe returns the first non-empty value among the given normalized keys.
func (r Record) Probe(keys ...string) (any, bool) {
	for _, key := range keys {
		v, ok := r.byKey[key]
		if !ok || isBlank(v) {
			continue
		}
		return v, true
	}
	return nil, false
}

// ProbeString is Probe for text fields, trimming the result.
func (r Record) ProbeString(keys ...string) string {
	v, ok := r.Probe(keys...)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// HeaderContaining scans the original (non-normalized) headers in sheet
// order and returns the value of the first one whose text contains sub,
// case-insensitively. This is how explicit saldo/valor columns are found
// regardless of how creatively they are named.
func (r Record) HeaderContaining(sub string) (any, bool) {
	lowered := strings.ToLower(sub)
	for _, c := range r.cells {
		if strings.Contains(strings.ToLower(c.Header), lowered) {
			return c.Value, true
		}
	}
	return nil, false
}

// Each visits every cell in sheet order.
func (r Record) Each(fn func(key string, value any)) {
	for _, c := range r.cells {
		fn(c.Key, c.Value)
	}
}

// Len reports the number of columns in the row.
func (r Record) Len() int { return len(r.cells) }

// Raw exposes the row as an original-header mapping, for diagnostics.
func (r Record) Raw() map[string]any {
	out := make(map[string]any, len(r.cells))
	for _, c := range r.cells {
		out[c.Header] = c.Value
	}
	return out
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return trimFloatString(x)
	}
}

func trimFloatString(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}
