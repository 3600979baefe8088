package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	internaldb "github.com/mbarreto/almox/internal/db"
)

// Store is the full inventory surface the commit executor writes through.
type Store interface {
	Lookup
	UpdateByField(ctx context.Context, field, value string, payload map[string]any) error
	Upsert(ctx context.Context, rows []map[string]any, onConflict string) error
	Insert(ctx context.Context, rows []map[string]any) error
}

const (
	updateBatchSize   = 20
	insertMaxAttempts = 6
)

// FailedUpdate keeps everything needed to re-submit exactly this update.
type FailedUpdate struct {
	Update PreparedUpdate `json:"update"`
	Reason string         `json:"reason"`
}

// ProgressEvent is pushed to websocket subscribers while a commit runs.
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Failed  int    `json:"failed"`
	Message string `json:"message,omitempty"`
}

type CommitResult struct {
	Updated        int            `json:"updated"`
	Inserted       int            `json:"inserted"`
	Failed         int            `json:"failed"`
	FailedUpdates  []FailedUpdate `json:"failed_updates"`
	InsertWarnings []string       `json:"insert_warnings"`
}

// Commit applies a reviewed reconciliation result. Updates run first, in
// concurrent fixed-size batches where one failure never aborts the rest;
// inserts follow, upsert-by-code when the store supports it, otherwise a
// bounded repair loop that strips unknown columns and evicts duplicate rows
// until the remainder goes in.
func Commit(ctx context.Context, store Store, rec *ReconcileResult, progress func(ProgressEvent)) (*CommitResult, error) {
	if rec == nil {
		return nil, errors.New("nothing reconciled")
	}
	result := &CommitResult{FailedUpdates: []FailedUpdate{}, InsertWarnings: []string{}}

	updated, failed := applyUpdates(ctx, store, rec.PreparedUpdates, progress)
	result.Updated = updated
	result.FailedUpdates = failed
	result.Failed = len(failed)

	inserted, notes, err := insertNewItems(ctx, store, rec.NewItems, progress)
	result.Inserted = inserted
	result.InsertWarnings = notes
	if err != nil {
		return result, err
	}

	emit(progress, ProgressEvent{Stage: "done",
		Done: result.Updated + result.Inserted, Total: len(rec.PreparedUpdates) + len(rec.NewItems),
		Failed: result.Failed})
	return result, nil
}

// RetryFailed re-submits only previously failed updates.
func RetryFailed(ctx context.Context, store Store, failed []FailedUpdate, progress func(ProgressEvent)) (*CommitResult, error) {
	updates := make([]PreparedUpdate, len(failed))
	for i, f := range failed {
		updates[i] = f.Update
	}
	updated, stillFailed := applyUpdates(ctx, store, updates, progress)
	result := &CommitResult{
		Updated:        updated,
		FailedUpdates:  stillFailed,
		Failed:         len(stillFailed),
		InsertWarnings: []string{},
	}
	emit(progress, ProgressEvent{Stage: "done", Done: updated, Total: len(updates), Failed: len(stillFailed)})
	return result, nil
}

func applyUpdates(ctx context.Context, store Store, updates []PreparedUpdate, progress func(ProgressEvent)) (int, []FailedUpdate) {
	var (
		mu     sync.Mutex
		failed []FailedUpdate
		done   int
	)
	total := len(updates)
	for start := 0; start < total; start += updateBatchSize {
		end := start + updateBatchSize
		if end > total {
			end = total
		}
		batch := updates[start:end]

		var wg sync.WaitGroup
		for _, upd := range batch {
			wg.Add(1)
			go func(upd PreparedUpdate) {
				defer wg.Done()
				err := store.UpdateByField(ctx, upd.MatchField, upd.MatchValue, upd.Payload)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed = append(failed, FailedUpdate{Update: upd, Reason: err.Error()})
				} else {
					done++
				}
			}(upd)
		}
		wg.Wait()

		emit(progress, ProgressEvent{Stage: "updates", Done: done, Total: total, Failed: len(failed)})
	}
	if failed == nil {
		failed = []FailedUpdate{}
	}
	return done, failed
}

func insertNewItems(ctx context.Context, store Store, items []ParsedRow, progress func(ProgressEvent)) (int, []string, error) {
	notes := []string{}
	if len(items) == 0 {
		return 0, notes, nil
	}

	// Another import may have created some of these codes since the
	// dry-run; recheck and update those instead of inserting duplicates.
	existing := recheckExistingCodes(ctx, store, items)
	var rows []map[string]any
	converted := 0
	for _, item := range items {
		code := strings.TrimSpace(item.Codigo)
		if code != "" && existing[code] {
			payload := insertPayload(item)
			delete(payload, "codigo_produto")
			if err := store.UpdateByField(ctx, matchByCodigo, code, payload); err == nil {
				converted++
			} else {
				notes = append(notes, fmt.Sprintf("codigo %s já existia e a atualização falhou: %v", code, err))
			}
			continue
		}
		rows = append(rows, insertPayload(item))
	}

	if len(rows) == 0 {
		emit(progress, ProgressEvent{Stage: "inserts", Done: converted, Total: len(items)})
		return converted, notes, nil
	}

	err := store.Upsert(ctx, rows, "codigo_produto")
	if err == nil {
		emit(progress, ProgressEvent{Stage: "inserts", Done: converted + len(rows), Total: len(items)})
		return converted + len(rows), notes, nil
	}

	var se *internaldb.StoreError
	if !errors.As(err, &se) || se.Kind != internaldb.KindConflictTargetMissing {
		return converted, notes, fmt.Errorf("insert new items: %w", err)
	}

	inserted, repairNotes, err := insertWithRepair(ctx, store, rows)
	notes = append(notes, repairNotes...)
	emit(progress, ProgressEvent{Stage: "inserts", Done: converted + inserted, Total: len(items)})
	return converted + inserted, notes, err
}

// insertWithRepair retries plain inserts, repairing what the typed error
// points at: an unknown column is stripped from every row, a duplicate key
// evicts just the conflicting row. Bounded so a misclassified error cannot
// loop forever.
func insertWithRepair(ctx context.Context, store Store, rows []map[string]any) (int, []string, error) {
	notes := []string{}
	for attempt := 0; attempt < insertMaxAttempts && len(rows) > 0; attempt++ {
		err := store.Insert(ctx, rows)
		if err == nil {
			return len(rows), notes, nil
		}
		var se *internaldb.StoreError
		if !errors.As(err, &se) {
			return 0, notes, fmt.Errorf("insert new items: %w", err)
		}
		switch se.Kind {
		case internaldb.KindUnknownColumn:
			if se.Column == "" {
				return 0, notes, fmt.Errorf("insert new items: %w", err)
			}
			for _, row := range rows {
				delete(row, se.Column)
			}
			notes = append(notes, fmt.Sprintf("coluna %s não existe no estoque e foi descartada", se.Column))
		case internaldb.KindDuplicateKey:
			trimmed := removeConflicting(rows, se.Field, se.Value)
			if len(trimmed) == len(rows) {
				return 0, notes, fmt.Errorf("insert new items: %w", err)
			}
			notes = append(notes, fmt.Sprintf("linha duplicada descartada (%s=%s)", se.Field, se.Value))
			rows = trimmed
		default:
			return 0, notes, fmt.Errorf("insert new items: %w", err)
		}
	}
	if len(rows) == 0 {
		return 0, notes, nil
	}
	return 0, notes, errors.New("insert new items: retry budget exhausted")
}

func removeConflicting(rows []map[string]any, field, value string) []map[string]any {
	out := rows[:0:0]
	for _, row := range rows {
		if field != "" && cellString(row[field]) == value {
			continue
		}
		out = append(out, row)
	}
	return out
}

func cellString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func recheckExistingCodes(ctx context.Context, store Store, items []ParsedRow) map[string]bool {
	var codes []string
	seen := map[string]bool{}
	for _, item := range items {
		c := strings.TrimSpace(item.Codigo)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		codes = append(codes, c)
	}
	existing := map[string]bool{}
	for _, chunk := range chunkStrings(codes, lookupChunkSize) {
		found, err := store.FindByField(ctx, matchByCodigo, chunk, lookupRangeLimit)
		if err != nil {
			continue
		}
		for _, it := range found {
			existing[strings.TrimSpace(it.CodigoProduto)] = true
		}
	}
	return existing
}

func insertPayload(row ParsedRow) map[string]any {
	payload := map[string]any{
		"nome":    itemName(row),
		"unidade": row.Unidade,
	}
	if c := strings.TrimSpace(row.Codigo); c != "" {
		payload["codigo_produto"] = c
	} else {
		payload["codigo_produto"] = nil
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
	if g := strings.TrimSpace(row.Grupo); g != "" {
		payload["grupo"] = g
	}
	return payload
}

func itemName(row ParsedRow) string {
	if n := strings.TrimSpace(row.Descricao); n != "" {
		return n
	}
	return strings.TrimSpace(row.Codigo)
}

func emit(progress func(ProgressEvent), ev ProgressEvent) {
	if progress != nil {
		progress(ev)
	}
}
