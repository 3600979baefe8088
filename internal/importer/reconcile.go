package importer

import (
	"context"
	"strings"

	"github.com/mbarreto/almox/internal/estoque"
)

// Lookup is the read-only slice of the inventory store that reconciliation
// needs. field is one of codigo_produto, nome, id.
type Lookup interface {
	FindByField(ctx context.Context, field string, values []string, rangeLimit int) ([]estoque.Item, error)
}

// PreparedUpdate pairs a matched inventory record with the minimal payload
// that would bring it in line with the spreadsheet row. Nothing is written
// until the user confirms a commit.
type PreparedUpdate struct {
	MatchField string         `json:"match_field"`
	MatchValue string         `json:"match_value"`
	Payload    map[string]any `json:"payload"`
	Existing   estoque.Item   `json:"existing"`
	Codigo     string         `json:"codigo"`
	Descricao  string         `json:"descricao"`
	Linha      int            `json:"linha"`
}

type ReconcileResult struct {
	PreparedUpdates []PreparedUpdate `json:"prepared_updates"`
	NewItems        []ParsedRow      `json:"new_items"`
}

const (
	lookupChunkSize   = 50
	lookupRangeLimit  = 20000
	matchByCodigo     = "codigo_produto"
	matchByNome       = "nome"
	matchByIdentifier = "id"
)

// Reconcile classifies parsed rows against the inventory store without
// writing anything. Existing records are fetched in bounded chunks so a big
// spreadsheet never produces an oversized query; a failed chunk drops its
// keys from the match set instead of aborting the whole pass, which at worst
// reclassifies some rows as new items.
func Reconcile(ctx context.Context, store Lookup, rows []ParsedRow) (*ReconcileResult, error) {
	codigos := collectKeys(rows, func(r ParsedRow) string { return r.Codigo })
	nomes := collectKeys(rows, func(r ParsedRow) string { return r.Descricao })

	seen := map[string]bool{}
	var existing []estoque.Item
	for _, chunk := range chunkStrings(codigos, lookupChunkSize) {
		found, err := store.FindByField(ctx, matchByCodigo, chunk, lookupRangeLimit)
		if err != nil {
			continue
		}
		existing = mergeItems(existing, found, seen)
	}
	for _, chunk := range chunkStrings(nomes, lookupChunkSize) {
		found, err := store.FindByField(ctx, matchByNome, chunk, lookupRangeLimit)
		if err != nil {
			continue
		}
		existing = mergeItems(existing, found, seen)
	}

	byCodigo := map[string]estoque.Item{}
	byNome := map[string]estoque.Item{}
	for _, it := range existing {
		if c := strings.TrimSpace(it.CodigoProduto); c != "" {
			if _, ok := byCodigo[c]; !ok {
				byCodigo[c] = it
			}
		}
		if n := strings.TrimSpace(it.Nome); n != "" {
			if _, ok := byNome[n]; !ok {
				byNome[n] = it
			}
		}
	}

	result := &ReconcileResult{PreparedUpdates: []PreparedUpdate{}, NewItems: []ParsedRow{}}
	for _, row := range rows {
		item, found := matchRow(row, byCodigo, byNome)
		if !found {
			result.NewItems = append(result.NewItems, row)
			continue
		}
		payload := buildUpdatePayload(row, item)
		if len(payload) == 0 {
			continue
		}
		field, value := matchKey(item)
		result.PreparedUpdates = append(result.PreparedUpdates, PreparedUpdate{
			MatchField: field,
			MatchValue: value,
			Payload:    payload,
			Existing:   item,
			Codigo:     row.Codigo,
			Descricao:  row.Descricao,
			Linha:      row.Linha,
		})
	}
	return result, nil
}

func matchRow(row ParsedRow, byCodigo, byNome map[string]estoque.Item) (estoque.Item, bool) {
	if c := strings.TrimSpace(row.Codigo); c != "" {
		if it, ok := byCodigo[c]; ok {
			return it, true
		}
	}
	if n := strings.TrimSpace(row.Descricao); n != "" {
		if it, ok := byNome[n]; ok {
			return it, true
		}
	}
	return estoque.Item{}, false
}

// matchKey picks the field the later update will filter on: code when the
// record has one, then name, then the internal identifier.
func matchKey(it estoque.Item) (field, value string) {
	if c := strings.TrimSpace(it.CodigoProduto); c != "" {
		return matchByCodigo, c
	}
	if n := strings.TrimSpace(it.Nome); n != "" {
		return matchByNome, n
	}
	return matchByIdentifier, it.ID
}

// buildUpdatePayload keeps only fields that would actually change.
func buildUpdatePayload(row ParsedRow, existing estoque.Item) map[string]any {
	payload := map[string]any{}
	if g := strings.TrimSpace(row.Grupo); g != "" && g != strings.TrimSpace(existing.Grupo) {
		payload["grupo"] = g
	}
	if row.Saldo != nil {
		payload["saldo"] = *row.Saldo
	}
	if row.ValorTotal != nil {
		payload["valor_total"] = *row.ValorTotal
	}
	if unit := deriveValorUnitario(row.Saldo, row.ValorTotal, row.ValorUnitario); unit != nil {
		payload["valor_unitario"] = *unit
	}
	if row.EstoqueMinimo != nil {
		payload["estoque_minimo"] = *row.EstoqueMinimo
	}
	return payload
}

func collectKeys(rows []ParsedRow, get func(ParsedRow) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		v := strings.TrimSpace(get(r))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func chunkStrings(values []string, size int) [][]string {
	if size <= 0 {
		size = lookupChunkSize
	}
	var chunks [][]string
	for len(values) > size {
		chunks = append(chunks, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		chunks = append(chunks, values)
	}
	return chunks
}

func mergeItems(dst, found []estoque.Item, seen map[string]bool) []estoque.Item {
	for _, it := range found {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		dst = append(dst, it)
	}
	return dst
}
