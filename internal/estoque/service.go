package estoque

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	internaldb "github.com/mbarreto/almox/internal/db"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Item is one inventory record of the itens_estoque table. Numeric fields
// are pointers because legacy rows may genuinely have no value.
type Item struct {
	ID            string    `json:"id"`
	CodigoProduto string    `json:"codigo_produto"`
	Nome          string    `json:"nome"`
	Unidade       string    `json:"unidade"`
	Saldo         *float64  `json:"saldo"`
	ValorTotal    *float64  `json:"valor_total"`
	ValorUnitario *float64  `json:"valor_unitario"`
	EstoqueMinimo *float64  `json:"estoque_minimo"`
	Grupo         string    `json:"grupo"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

const itemColumns = `id, COALESCE(codigo_produto,''), nome, COALESCE(unidade,'UN'),
	saldo, valor_total, valor_unitario, estoque_minimo, COALESCE(grupo,''),
	created_at, updated_at`

// matchFields are the columns FindByField and UpdateByField may filter on.
var matchFields = map[string]bool{
	"id":             true,
	"codigo_produto": true,
	"nome":           true,
}

// defaultRangeLimit is deliberately far above any realistic import size; the
// point is to defeat small driver/server-side default page caps.
const defaultRangeLimit = 20000

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// List returns inventory records for the registry endpoint, optionally
// filtered by a substring of the name or code.
func (s *Service) List(ctx context.Context, q string, limit int) ([]Item, error) {
	if limit <= 0 || limit > defaultRangeLimit {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+`
		 FROM itens_estoque
		 WHERE ($1 = '' OR nome ILIKE '%' || $1 || '%' OR codigo_produto ILIKE '%' || $1 || '%')
		 ORDER BY nome
		 LIMIT $2`, strings.TrimSpace(q), limit)
	if err != nil {
		return nil, fmt.Errorf("list itens: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// FindByField runs an equality-membership query: every record whose field is
// one of values. The explicit limit exists because the caller must be able
// to pull far more rows than a default page would return.
func (s *Service) FindByField(ctx context.Context, field string, values []string, rangeLimit int) ([]Item, error) {
	if !matchFields[field] {
		return nil, fmt.Errorf("%w: cannot match on field %q", ErrInvalidInput, field)
	}
	if len(values) == 0 {
		return []Item{}, nil
	}
	if rangeLimit <= 0 {
		rangeLimit = defaultRangeLimit
	}

	placeholders := make([]string, len(values))
	args := make([]any, 0, len(values)+1)
	for i, v := range values {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, v)
	}
	args = append(args, rangeLimit)

	query := fmt.Sprintf(
		`SELECT `+itemColumns+`
		 FROM itens_estoque
		 WHERE %s IN (%s)
		 LIMIT $%d`,
		field, strings.Join(placeholders, ","), len(values)+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find itens by %s: %w", field, err)
	}
	defer rows.Close()
	return scanItems(rows)
}

// UpdateByField applies a partial update to every record whose field equals
// value. Payload keys are column names; unknown ones surface as typed
// unknown-column errors.
func (s *Service) UpdateByField(ctx context.Context, field, value string, payload map[string]any) error {
	if !matchFields[field] {
		return fmt.Errorf("%w: cannot match on field %q", ErrInvalidInput, field)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty update payload", ErrInvalidInput)
	}

	columns := sortedKeys(payload)
	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		quoted, err := quoteIdent(col)
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", quoted, i+1))
		args = append(args, payload[col])
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, value)

	query := fmt.Sprintf(`UPDATE itens_estoque SET %s WHERE %s = $%d`,
		strings.Join(sets, ", "), field, len(columns)+1)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return internaldb.Classify(fmt.Errorf("update item by %s: %w", field, err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert adds new rows, given as column-name maps so callers can drop
// columns between retries. Duplicate-key and unknown-column failures come
// back as typed errors with the offending column or key extracted.
func (s *Service) Insert(ctx context.Context, rows []map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := buildInsert(rows, "")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return internaldb.Classify(fmt.Errorf("insert itens: %w", err))
	}
	return nil
}

// Upsert inserts rows, updating existing records that collide on the
// onConflict column. A typed conflict-target error means the column has no
// unique constraint and the caller should fall back to plain inserts.
func (s *Service) Upsert(ctx context.Context, rows []map[string]any, onConflict string) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := buildInsert(rows, onConflict)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return internaldb.Classify(fmt.Errorf("upsert itens: %w", err))
	}
	return nil
}

func buildInsert(rows []map[string]any, onConflict string) (string, []any, error) {
	columnSet := map[string]struct{}{}
	for _, row := range rows {
		for col := range row {
			columnSet[col] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	for i, col := range columns {
		q, err := quoteIdent(col)
		if err != nil {
			return "", nil, err
		}
		quoted[i] = q
	}

	var args []any
	tuples := make([]string, 0, len(rows))
	arg := 1
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = fmt.Sprintf("$%d", arg)
			args = append(args, row[col])
			arg++
		}
		tuples = append(tuples, "("+strings.Join(cells, ",")+")")
	}

	query := fmt.Sprintf(`INSERT INTO itens_estoque (%s) VALUES %s`,
		strings.Join(quoted, ","), strings.Join(tuples, ","))

	if onConflict != "" {
		conflictCol, err := quoteIdent(onConflict)
		if err != nil {
			return "", nil, err
		}
		sets := make([]string, 0, len(columns))
		for i, col := range columns {
			if col == onConflict {
				continue
			}
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
		sets = append(sets, "updated_at = now()")
		query += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflictCol, strings.Join(sets, ", "))
	}

	return query, args, nil
}

func quoteIdent(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `"'`) {
		return "", fmt.Errorf("%w: bad column name %q", ErrInvalidInput, name)
	}
	return `"` + name + `"`, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var out []Item
	for rows.Next() {
		var it Item
		var saldo, valorTotal, valorUnitario, estoqueMinimo sql.NullFloat64
		if err := rows.Scan(&it.ID, &it.CodigoProduto, &it.Nome, &it.Unidade,
			&saldo, &valorTotal, &valorUnitario, &estoqueMinimo, &it.Grupo,
			&it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		it.Saldo = nullableFloat(saldo)
		it.ValorTotal = nullableFloat(valorTotal)
		it.ValorUnitario = nullableFloat(valorUnitario)
		it.EstoqueMinimo = nullableFloat(estoqueMinimo)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Item{}
	}
	return out, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
