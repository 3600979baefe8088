package integration_test

import (
	"encoding/base64"
	"net/http"
	"testing"
)

func uploadCSV(e *testEnv, name, csv string) map[string]any {
	e.t.Helper()
	status, body := e.doJSON(http.MethodPost, "/v1/estoque/import", map[string]any{
		"fileName":      name,
		"contentBase64": base64.StdEncoding.EncodeToString([]byte(csv)),
	})
	if status != http.StatusCreated {
		e.t.Fatalf("upload %s failed: status=%d body=%v", name, status, body)
	}
	return asMap(e.t, body)
}

func TestImportFlow(t *testing.T) {
	env := setupIntegrationEnv(t)

	t.Run("FullImportCycle", func(t *testing.T) {
		csv := "CODIGO;DESCRICAO;UNIDADE;GRUPO;SALDO;VALOR TOTAL\n" +
			"000176;Parafuso M6;UN;0623005;14;28,00\n" +
			"000200;Porca M6;CX;0623005;50;25,50\n"

		state := uploadCSV(env, "estoque.csv", csv)
		sessionID := getString(t, state, "session_id")
		if n := getNumber(t, state, "total_rows"); n != 2 {
			t.Fatalf("total_rows = %v, want 2", n)
		}

		// Paste the group mapping; rows are reparsed with resolved names.
		status, body := env.doRaw(http.MethodPost, "/v1/estoque/import/"+sessionID+"/grupos",
			[]byte(`[{"codigo":"0623005","grupo":"PARAFUSOS"}]`))
		if status != http.StatusOK {
			t.Fatalf("set groups failed: status=%d body=%v", status, body)
		}
		rows := asSlice(t, asMap(t, body)["rows"])
		if got := getString(t, asMap(t, rows[0]), "grupo"); got != "PARAFUSOS" {
			t.Fatalf("resolved grupo = %q, want PARAFUSOS", got)
		}

		// Dry-run: empty store, everything is new.
		status, body = env.doJSON(http.MethodPost, "/v1/estoque/import/"+sessionID+"/reconcile", nil)
		if status != http.StatusOK {
			t.Fatalf("reconcile failed: status=%d body=%v", status, body)
		}
		recon := asMap(t, body)
		if getNumber(t, recon, "new_count") != 2 || getNumber(t, recon, "update_count") != 0 {
			t.Fatalf("unexpected dry-run split: %v", recon)
		}

		// Nothing written before commit.
		var count int
		if err := env.db.QueryRow(`SELECT COUNT(*) FROM itens_estoque`).Scan(&count); err != nil {
			t.Fatalf("count itens: %v", err)
		}
		if count != 0 {
			t.Fatalf("dry-run wrote %d rows", count)
		}

		status, body = env.doJSON(http.MethodPost, "/v1/estoque/import/"+sessionID+"/commit", nil)
		if status != http.StatusOK {
			t.Fatalf("commit failed: status=%d body=%v", status, body)
		}
		committed := asMap(t, body)
		if getNumber(t, committed, "inserted") != 2 {
			t.Fatalf("inserted = %v, want 2", committed["inserted"])
		}

		var saldo float64
		var grupo string
		err := env.db.QueryRow(
			`SELECT saldo, grupo FROM itens_estoque WHERE codigo_produto = '000176'`,
		).Scan(&saldo, &grupo)
		if err != nil {
			t.Fatalf("read committed row: %v", err)
		}
		if saldo != 14 || grupo != "PARAFUSOS" {
			t.Fatalf("committed row = saldo %v grupo %q", saldo, grupo)
		}

		var runs int
		if err := env.db.QueryRow(`SELECT COUNT(*) FROM import_runs`).Scan(&runs); err != nil {
			t.Fatalf("count import runs: %v", err)
		}
		if runs != 1 {
			t.Fatalf("import_runs = %d, want 1", runs)
		}
	})

	t.Run("SecondImportUpdatesExisting", func(t *testing.T) {
		csv := "CODIGO;DESCRICAO;SALDO;VALOR TOTAL\n" +
			"000176;Parafuso M6;20;40,00\n" +
			"000300;Arruela lisa;5;1,25\n"

		state := uploadCSV(env, "estoque-v2.csv", csv)
		sessionID := getString(t, state, "session_id")

		status, body := env.doJSON(http.MethodPost, "/v1/estoque/import/"+sessionID+"/reconcile", nil)
		if status != http.StatusOK {
			t.Fatalf("reconcile failed: status=%d body=%v", status, body)
		}
		recon := asMap(t, body)
		if getNumber(t, recon, "update_count") != 1 || getNumber(t, recon, "new_count") != 1 {
			t.Fatalf("unexpected dry-run split: %v", recon)
		}

		status, body = env.doJSON(http.MethodPost, "/v1/estoque/import/"+sessionID+"/commit", nil)
		if status != http.StatusOK {
			t.Fatalf("commit failed: status=%d body=%v", status, body)
		}

		var saldo float64
		if err := env.db.QueryRow(
			`SELECT saldo FROM itens_estoque WHERE codigo_produto = '000176'`,
		).Scan(&saldo); err != nil {
			t.Fatalf("read updated row: %v", err)
		}
		if saldo != 20 {
			t.Fatalf("updated saldo = %v, want 20", saldo)
		}

		// Grupo was not supplied this time and must survive untouched.
		var grupo string
		if err := env.db.QueryRow(
			`SELECT grupo FROM itens_estoque WHERE codigo_produto = '000176'`,
		).Scan(&grupo); err != nil {
			t.Fatalf("read grupo: %v", err)
		}
		if grupo != "PARAFUSOS" {
			t.Fatalf("grupo = %q, want PARAFUSOS preserved", grupo)
		}
	})

	t.Run("RegistryListing", func(t *testing.T) {
		status, body := env.doJSON(http.MethodGet, "/v1/estoque/itens?q=parafuso", nil)
		if status != http.StatusOK {
			t.Fatalf("list failed: status=%d body=%v", status, body)
		}
		items := asSlice(t, asMap(t, body)["itens"])
		if len(items) != 1 {
			t.Fatalf("got %d items for q=parafuso, want 1", len(items))
		}
	})

	t.Run("SessionLifecycle", func(t *testing.T) {
		state := uploadCSV(env, "descartar.csv", "CODIGO;SALDO\n900;1\n")
		sessionID := getString(t, state, "session_id")

		status, _ := env.doJSON(http.MethodDelete, "/v1/estoque/import/"+sessionID, nil)
		if status != http.StatusOK {
			t.Fatalf("discard failed: status=%d", status)
		}
		status, _ = env.doJSON(http.MethodGet, "/v1/estoque/import/"+sessionID, nil)
		if status != http.StatusNotFound {
			t.Fatalf("discarded session still reachable: status=%d", status)
		}
	})

	t.Run("BadInputs", func(t *testing.T) {
		status, _ := env.doJSON(http.MethodPost, "/v1/estoque/import", map[string]any{
			"fileName":      "planilha.pdf",
			"contentBase64": base64.StdEncoding.EncodeToString([]byte("%PDF")),
		})
		if status != http.StatusBadRequest {
			t.Fatalf("pdf upload status = %d, want 400", status)
		}

		state := uploadCSV(env, "ok.csv", "CODIGO;SALDO\n901;1\n")
		sessionID := getString(t, state, "session_id")

		status, _ = env.doRaw(http.MethodPost, "/v1/estoque/import/"+sessionID+"/grupos",
			[]byte(`{"broken`))
		if status != http.StatusBadRequest {
			t.Fatalf("bad group JSON status = %d, want 400", status)
		}

		// Commit without a dry-run is refused.
		status, _ = env.doJSON(http.MethodPost, "/v1/estoque/import/"+sessionID+"/commit", nil)
		if status != http.StatusConflict {
			t.Fatalf("commit without reconcile status = %d, want 409", status)
		}
	})
}
