package importer

import (
	"regexp"
	"strings"
)

// Synonym lists are probed in order against normalized header keys; the first
// column holding a non-empty value wins. Accented and unaccented variants are
// both listed because NormalizeHeader preserves letters as-is.
var (
	codigoKeys = []string{
		"codigo produto", "código produto", "cod produto", "cód produto",
		"codigo do produto", "código do produto", "codigo", "código",
		"cod", "cód", "codigo item", "cod item",
	}
	descricaoKeys = []string{
		"descricao", "descrição", "descricao do produto", "descrição do produto",
		"descricao produto", "descrição produto", "produto", "nome",
		"nome do produto", "item", "material",
	}
	grupoKeys = []string{
		"grupo", "grupo de produto", "grupo produto", "cod grupo", "cód grupo",
		"codigo grupo", "código grupo", "categoria", "familia", "família",
	}
	unidadeKeys = []string{
		"unidade", "unidade de medida", "unid", "und", "un", "u m", "um",
	}
	estoqueMinimoKeys = []string{
		"estoque minimo", "estoque mínimo", "est minimo", "est mínimo",
		"minimo", "mínimo", "qtd minima", "qtd mínima",
	}
	saldoKeys = []string{
		"saldo", "saldo em estoque", "saldo estoque", "saldo atual",
		"quantidade", "qtd", "qtde", "estoque",
	}
	valorTotalKeys = []string{
		"valor total", "valor em estoque", "valor estoque", "vlr total",
		"valor", "total",
	}
	valorUnitarioKeys = []string{
		"valor unitario", "valor unitário", "vlr unitario", "vlr unitário",
		"valor unit", "preco unitario", "preço unitário", "preco", "preço",
		"custo unitario", "custo unitário",
	}
)

// currencyPattern spots values formatted like money: at least one digit and a
// decimal separator followed by exactly two digits at a boundary.
var currencyPattern = regexp.MustCompile(`[.,]\d{2}\b`)

// extracted holds the raw field values pulled from one Record before numeric
// inference runs. ExplicitSaldo/ExplicitValor report whether a column was
// unambiguously identified by the saldo/valor substring rule, which takes
// priority over synonym matches.
type extracted struct {
	Codigo        string
	Descricao     string
	GrupoRaw      string
	Unidade       string
	EstoqueMinimo *float64

	SaldoRaw      any
	ValorRaw      any
	ExplicitSaldo bool
	ExplicitValor bool

	ValorUnitarioExplicit *float64
}

// extractFields maps one raw row to the target fields. The second return is
// false when the row is blank by the skip rule: no code, no description and
// no parseable saldo or valor.
func extractFields(rec Record) (extracted, bool) {
	ex := extracted{
		Codigo:    rec.ProbeString(codigoKeys...),
		Descricao: rec.ProbeString(descricaoKeys...),
		GrupoRaw:  rec.ProbeString(grupoKeys...),
		Unidade:   rec.ProbeString(unidadeKeys...),
	}
	ex.EstoqueMinimo = ParseNumber(firstProbed(rec, estoqueMinimoKeys))

	// An original header containing "saldo"/"valor" is authoritative no
	// matter what the exact name is ("SALDOEM ESTOQUE" included).
	if v, ok := rec.HeaderContaining("saldo"); ok {
		ex.SaldoRaw = v
		ex.ExplicitSaldo = true
	} else if v, ok := rec.Probe(saldoKeys...); ok {
		ex.SaldoRaw = v
	}

	if v, ok := valorColumn(rec); ok {
		ex.ValorRaw = v
		ex.ExplicitValor = true
	} else if v, ok := rec.Probe(valorTotalKeys...); ok {
		ex.ValorRaw = v
	}

	ex.ValorUnitarioExplicit = ParseNumber(firstProbed(rec, valorUnitarioKeys))

	if ex.Codigo == "" && ex.Descricao == "" &&
		ParseNumber(ex.SaldoRaw) == nil && ParseNumber(ex.ValorRaw) == nil {
		return extracted{}, false
	}
	return ex, true
}

// valorColumn picks the explicit value-total column: the first original
// header containing "valor" that is not a unit-price column.
func valorColumn(rec Record) (any, bool) {
	for _, c := range rec.cells {
		h := strings.ToLower(c.Header)
		if strings.Contains(h, "valor") && !strings.Contains(h, "unit") {
			return c.Value, true
		}
	}
	return nil, false
}

// detectCurrencyLike scans the row's raw values in sheet order for the first
// currency-looking token (two trailing decimal digits, or an "R$" prefix)
// that parses to a non-zero number not already claimed by another field.
func detectCurrencyLike(rec Record, exclude []float64) *float64 {
	var out *float64
	rec.Each(func(key string, value any) {
		if out != nil {
			return
		}
		s, ok := value.(string)
		if !ok {
			return
		}
		if !strings.ContainsAny(s, "0123456789") || !numericText(s) {
			return
		}
		if !currencyPattern.MatchString(s) && !strings.Contains(strings.ToLower(s), "r$") {
			return
		}
		if n := ParseNumber(s); n != nil && *n != 0 && !containsFloat(exclude, *n) {
			out = n
		}
	})
	return out
}

func firstProbed(rec Record, keys []string) any {
	v, ok := rec.Probe(keys...)
	if !ok {
		return nil
	}
	return v
}
