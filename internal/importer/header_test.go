package importer

import "testing"

func TestNormalizeHeader(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"CÓDIGO PRODUTO", "código produto"},
		{"Código_Produto ", "código produto"},
		{"  Descrição do Produto  ", "descrição do produto"},
		{"VALOR   TOTAL", "valor total"},
		{"Saldo em Estoque", "saldo em estoque"},
		{"valor.total(R$)", "valor total r"},
		{"Qtd.", "qtd"},
		{"***", ""},
		{"Est\tMin", "est min"},
		{"Saldo\r\nem Estoque", "saldo em estoque"},
		{"Qtd\x00Real", "qtdreal"},
	}

	for _, tc := range cases {
		if got := NormalizeHeader(tc.raw); got != tc.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeHeaderIdempotent(t *testing.T) {
	inputs := []string{
		"CÓDIGO PRODUTO", " saldo  em estoque ", "Qtd.", "valor_total",
		"", "***", "Unid.", "éàç 123", "a-b-c",
	}
	for _, raw := range inputs {
		once := NormalizeHeader(raw)
		if twice := NormalizeHeader(once); twice != once {
			t.Errorf("NormalizeHeader not idempotent for %q: %q != %q", raw, twice, once)
		}
	}
}
