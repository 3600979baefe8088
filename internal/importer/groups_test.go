package importer

import (
	"errors"
	"testing"
)

func TestGroupTableResolveRoundTrip(t *testing.T) {
	table := NewGroupTable()
	if err := table.LoadJSON([]byte(`[{"codigo":"0623005","grupo":"PARAFUSOS"}]`)); err != nil {
		t.Fatalf("load: %v", err)
	}

	for _, raw := range []string{"0623005", "623005", "PARAFUSOS"} {
		if got := table.Resolve(raw); got != "PARAFUSOS" {
			t.Errorf("Resolve(%q) = %q, want PARAFUSOS", raw, got)
		}
	}
}

func TestGroupTableNumericCodes(t *testing.T) {
	table := NewGroupTable()
	if err := table.LoadJSON([]byte(`[{"codigo":623005,"grupo":"PARAFUSOS"},{"codigo":"07","grupo":"FERRAMENTAS"}]`)); err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := table.Resolve("623005"); got != "PARAFUSOS" {
		t.Errorf("Resolve numeric code = %q, want PARAFUSOS", got)
	}
	if got := table.Resolve("7"); got != "FERRAMENTAS" {
		t.Errorf("Resolve stripped code = %q, want FERRAMENTAS", got)
	}
	if got := table.Resolve("GRUPO 07"); got != "FERRAMENTAS" {
		t.Errorf("Resolve embedded digits = %q, want FERRAMENTAS", got)
	}
}

func TestGroupTableUnknownPassthrough(t *testing.T) {
	table := NewGroupTable()
	if got := table.Resolve("  ELETRICA  "); got != "ELETRICA" {
		t.Errorf("Resolve = %q, want trimmed passthrough", got)
	}
	if got := table.Resolve("   "); got != "" {
		t.Errorf("Resolve blank = %q, want empty", got)
	}
}

func TestGroupTableBadJSONLeavesTableIntact(t *testing.T) {
	table := NewGroupTable()
	if err := table.LoadJSON([]byte(`[{"codigo":"1","grupo":"A"}]`)); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := table.LoadJSON([]byte(`{"not":"an array"`))
	if !errors.Is(err, ErrBadGroupJSON) {
		t.Fatalf("err = %v, want ErrBadGroupJSON", err)
	}
	if got := table.Resolve("1"); got != "A" {
		t.Errorf("previous mapping lost after bad load: Resolve(1) = %q", got)
	}
}

func TestGroupTableClear(t *testing.T) {
	table := NewGroupTable()
	if err := table.LoadJSON([]byte(`[{"codigo":"1","grupo":"A"}]`)); err != nil {
		t.Fatalf("load: %v", err)
	}
	table.Clear()
	if table.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", table.Len())
	}
	if got := table.Resolve("1"); got != "1" {
		t.Errorf("Resolve after Clear = %q, want passthrough", got)
	}
}
