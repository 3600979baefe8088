package importer

// ParsedRow is the pipeline's output unit: one spreadsheet row normalized
// into the target inventory fields. Codigo and Descricao are trimmed and may
// be empty; Unidade always carries a value ("UN" when the sheet is silent).
type ParsedRow struct {
	Codigo        string   `json:"codigo"`
	Descricao     string   `json:"descricao"`
	Unidade       string   `json:"unidade"`
	Saldo         *float64 `json:"saldo"`
	ValorTotal    *float64 `json:"valor_total"`
	ValorUnitario *float64 `json:"valor_unitario"`
	EstoqueMinimo *float64 `json:"estoque_minimo"`
	Grupo         string   `json:"grupo,omitempty"`
	Linha         int      `json:"linha"`

	raw Record
}

// Raw exposes the original row for diagnostics.
func (p ParsedRow) Raw() Record { return p.raw }

const defaultUnidade = "UN"

// ParseRows runs the extraction/inference pipeline over every record. Blank
// rows are dropped; everything else degrades field-by-field instead of
// failing. The returned warnings are advisory only.
func ParseRows(records []Record, groups *GroupTable) ([]ParsedRow, []Warning) {
	rows := make([]ParsedRow, 0, len(records))
	wc := newWarningCollector(warningLimit)

	for _, rec := range records {
		ex, ok := extractFields(rec)
		if !ok {
			continue
		}

		saldo, valorTotal := inferNumericFields(rec, ex)

		unidade := ex.Unidade
		if unidade == "" {
			unidade = defaultUnidade
		}

		row := ParsedRow{
			Codigo:        ex.Codigo,
			Descricao:     ex.Descricao,
			Unidade:       unidade,
			Saldo:         saldo,
			ValorTotal:    valorTotal,
			ValorUnitario: deriveValorUnitario(saldo, valorTotal, ex.ValorUnitarioExplicit),
			EstoqueMinimo: ex.EstoqueMinimo,
			Grupo:         groups.Resolve(ex.GrupoRaw),
			Linha:         rec.Line,
			raw:           rec,
		}

		wc.inspect(row, rec, ex)
		rows = append(rows, row)
	}

	return rows, wc.warnings
}

// deriveValorUnitario divides total by quantity when possible; otherwise an
// explicit unit-price column, when present, stands on its own.
func deriveValorUnitario(saldo, valorTotal, explicit *float64) *float64 {
	if saldo != nil && valorTotal != nil && *saldo != 0 {
		v := *valorTotal / *saldo
		return &v
	}
	return explicit
}
