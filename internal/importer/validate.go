package importer

// warningLimit bounds how many row warnings one import reports; past that the
// review payload stops being readable anyway.
const warningLimit = 40

// Warning flags a parsed row whose inferred values deserve a human look.
// Warnings never block the pipeline.
type Warning struct {
	Linha  int    `json:"linha"`
	Codigo string `json:"codigo,omitempty"`
	Motivo string `json:"motivo"`
}

const (
	motivoValorAusente = "valor_total nulo ou zero com coluna numérica presente na linha"
	motivoSaldoAusente = "saldo nulo ou inválido"
)

type warningCollector struct {
	limit    int
	warnings []Warning
}

func newWarningCollector(limit int) *warningCollector {
	return &warningCollector{limit: limit}
}

func (c *warningCollector) add(row ParsedRow, motivo string) {
	if len(c.warnings) >= c.limit {
		return
	}
	c.warnings = append(c.warnings, Warning{Linha: row.Linha, Codigo: row.Codigo, Motivo: motivo})
}

// inspect applies the advisory checks to one finished row.
func (c *warningCollector) inspect(row ParsedRow, rec Record, ex extracted) {
	if row.ValorTotal == nil || *row.ValorTotal == 0 {
		if hasOtherNumeric(rec, row.ValorTotal) {
			c.add(row, motivoValorAusente)
		}
	}
	if row.Saldo == nil && rec.Len() > 0 {
		c.add(row, motivoSaldoAusente)
	}
}

// hasOtherNumeric reports whether the raw row holds any non-zero numeric
// field besides the (possibly zero) total under suspicion.
func hasOtherNumeric(rec Record, valorTotal *float64) bool {
	found := false
	rec.Each(func(key string, value any) {
		if found {
			return
		}
		if s, ok := value.(string); ok && !numericText(s) {
			return
		}
		n := ParseNumber(value)
		if n == nil || *n == 0 {
			return
		}
		if valorTotal != nil && *n == *valorTotal {
			return
		}
		found = true
	})
	return found
}
