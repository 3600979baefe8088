package importer

import (
	"testing"
	"time"
)

func TestSessionReparseAppliesGroupTable(t *testing.T) {
	session := NewSession("estoque.csv")
	records := []Record{record(2, "DESCRICAO", "Parafuso", "GRUPO", "0623005")}
	rows, warnings := ParseRows(records, session.Groups())
	session.SetParsed(records, rows, warnings)

	if rows, _ := session.Rows(); rows[0].Grupo != "0623005" {
		t.Fatalf("grupo before mapping = %q, want raw passthrough", rows[0].Grupo)
	}

	if err := session.Groups().LoadJSON([]byte(`[{"codigo":"0623005","grupo":"PARAFUSOS"}]`)); err != nil {
		t.Fatalf("load groups: %v", err)
	}
	session.Reparse()

	rows, _ = session.Rows()
	if rows[0].Grupo != "PARAFUSOS" {
		t.Errorf("grupo after mapping = %q, want PARAFUSOS", rows[0].Grupo)
	}
}

func TestSessionReparseInvalidatesDryRun(t *testing.T) {
	session := NewSession("estoque.csv")
	session.SetParsed(nil, nil, nil)
	session.SetReconciled(&ReconcileResult{})
	if session.Reconciled() == nil {
		t.Fatal("reconciled result not stored")
	}
	session.Reparse()
	if session.Reconciled() != nil {
		t.Error("stale dry-run survived a reparse")
	}
}

func TestSessionCommitGuard(t *testing.T) {
	session := NewSession("estoque.csv")
	if !session.BeginCommit() {
		t.Fatal("first BeginCommit refused")
	}
	if session.BeginCommit() {
		t.Fatal("overlapping commit allowed")
	}
	session.EndCommit(nil)
	if !session.BeginCommit() {
		t.Fatal("BeginCommit refused after EndCommit")
	}
}

func TestSessionProgressFanout(t *testing.T) {
	session := NewSession("estoque.csv")
	events, cancel := session.Subscribe()
	defer cancel()

	session.Publish(ProgressEvent{Stage: "updates", Done: 1, Total: 2})

	select {
	case ev := <-events:
		if ev.Stage != "updates" || ev.Done != 1 {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSessionIdleSince(t *testing.T) {
	session := NewSession("estoque.csv")
	if session.IdleSince(time.Now().Add(-time.Minute)) {
		t.Error("fresh session reported idle")
	}
	if !session.IdleSince(time.Now().Add(time.Minute)) {
		t.Error("session not idle against a future cutoff")
	}
}
