package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrBadGroupJSON = errors.New("invalid group mapping JSON")

var digitRun = regexp.MustCompile(`\d+`)

// GroupTable maps raw group codes from a spreadsheet to canonical group
// display names. It is populated by pasting a JSON array of
// {"codigo": ..., "grupo": ...} entries, lives only for one import session
// and is never persisted.
type GroupTable struct {
	byCode     map[string]string // exact code -> name
	byStripped map[string]string // leading-zero-stripped code -> name
	names      map[string]struct{}
}

func NewGroupTable() *GroupTable {
	t := &GroupTable{}
	t.Clear()
	return t
}

// LoadJSON replaces the table contents with the pasted mapping. Codes may be
// JSON strings or numbers. A malformed document leaves the table untouched.
func (t *GroupTable) LoadJSON(data []byte) error {
	var entries []struct {
		Codigo any    `json:"codigo"`
		Grupo  string `json:"grupo"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %v", ErrBadGroupJSON, err)
	}

	byCode := make(map[string]string, len(entries))
	byStripped := make(map[string]string, len(entries))
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		code := strings.TrimSpace(stringify(e.Codigo))
		name := strings.TrimSpace(e.Grupo)
		if code == "" || name == "" {
			continue
		}
		byCode[code] = name
		byStripped[stripLeadingZeros(code)] = name
		names[name] = struct{}{}
	}

	t.byCode = byCode
	t.byStripped = byStripped
	t.names = names
	return nil
}

// Clear empties the table.
func (t *GroupTable) Clear() {
	t.byCode = map[string]string{}
	t.byStripped = map[string]string{}
	t.names = map[string]struct{}{}
}

// Len reports how many codes are mapped.
func (t *GroupTable) Len() int { return len(t.byCode) }

// Resolve maps a raw group token to its canonical display name. Already
// resolved names pass through unchanged; unknown tokens are returned trimmed,
// on the assumption that they already are display names.
func (t *GroupTable) Resolve(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if _, ok := t.names[trimmed]; ok {
		return trimmed
	}
	if name, ok := t.byCode[trimmed]; ok {
		return name
	}

	digits := digitRun.FindString(trimmed)
	if digits != "" {
		if name, ok := t.byCode[digits]; ok {
			return name
		}
		if name, ok := t.byStripped[stripLeadingZeros(digits)]; ok {
			return name
		}
	}
	return trimmed
}

func stripLeadingZeros(code string) string {
	stripped := strings.TrimLeft(code, "0")
	if stripped == "" {
		return "0"
	}
	return stripped
}
