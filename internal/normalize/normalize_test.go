package normalize

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/grez-lucas/bancoestado-scraper/internal/scraper/bank"
)

func TestCleanDescription(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TEF DE JUAN PEREZ", "JUAN PEREZ"},
		{"COMPRA NACIONAL  PEDIDOSYA   SPA", "PEDIDOSYA"},
		{"Compra Web Jumbo S.A.", "Jumbo"},
		{"PAGO PAGO FACIL LTDA", "FACIL"},
		{"TRANSFERENCIA A TERCEROS MARIA SOTO", "MARIA SOTO"},
		{"PAGOS VARIOS", "PAGOS VARIOS"},
		{"PAGO", "PAGO"},
		{"SPA", "SPA"},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CleanDescription(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanDescription(got), "cleaning is idempotent")
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		description string
		want        TxType
	}{
		{"TEF DE JUAN PEREZ", TxTransfer},
		{"Transferencia a terceros", TxTransfer},
		{"COMPRA NACIONAL PEDIDOSYA SPA", TxPurchase},
		{"REDCOMPRA LIDER", TxPurchase},
		{"GIRO CAJERO AUTOMATICO", TxWithdrawal},
		{"DEPÓSITO EN EFECTIVO", TxDeposit},
		{"PAGO DEUDA TARJETA", TxPayment},
		{"COMISIÓN MANTENCIÓN", TxFee},
		{"REMUNERACION EMPRESA X", TxSalary},
		{"ZZZ SIN REGLA", TxOther},
		{"", TxOther},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(DefaultTypeRules, tt.description))
		})
	}
}

func TestClassify_FirstRuleWins(t *testing.T) {
	rules := []TypeRule{{"PAGO", TxPayment}, {"TARJETA", TxFee}}
	assert.Equal(t, TxPayment, Classify(rules, "PAGO TARJETA"))

	rules = []TypeRule{{"TARJETA", TxFee}, {"PAGO", TxPayment}}
	assert.Equal(t, TxFee, Classify(rules, "PAGO TARJETA"))
}

func TestExtractReference(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        string
	}{
		{"labeled reference", "PAGO SERVICIO REF: AB1234 NRO 999999", "AB1234"},
		{"labeled code", "TRANSFERENCIA COD. 7788AA", "7788AA"},
		{"operation number", "ABONO N° 55667788", "55667788"},
		{"bare digit run", "TEF A 12345678 JUAN", "12345678"},
		{"letter prefixed", "COMPRA TX9876 COMERCIO", "TX9876"},
		{"short digits are not references", "COMPRA 12345 COMERCIO", ""},
		{"none", "COMPRA LIDER", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractReference(tt.description))
		})
	}
}

func TestCategorizer(t *testing.T) {
	c := NewCategorizer([]Category{{Name: "Food", Keywords: []string{"SUPERMARKET"}}})
	assert.Equal(t, "Food", c.Categorize("PURCHASE SUPERMARKET XYZ"))
	assert.Equal(t, DefaultCategory, c.Categorize("GAS STATION"))
}

func TestCategorizer_Folding(t *testing.T) {
	c := NewCategorizer([]Category{
		{Name: "Delivery", Keywords: []string{"pedidos ya"}},
		{Name: "Food", Keywords: []string{"Líder", "jumbo"}},
		{Name: "Empty", Keywords: []string{" "}},
	})
	assert.Equal(t, 2, c.Len(), "categories without usable keywords are dropped")

	assert.Equal(t, "Delivery", c.Categorize("COMPRA PEDIDOSYA SPA"))
	assert.Equal(t, "Food", c.Categorize("REDCOMPRA LIDER"))
	assert.Equal(t, "Food", c.Categorize("Jumbo Costanera"))
}

func TestCategorizer_OrderDecides(t *testing.T) {
	c := NewCategorizer([]Category{
		{Name: "Transport", Keywords: []string{"COPEC"}},
		{Name: "Food", Keywords: []string{"COPEC PRONTO"}},
	})
	assert.Equal(t, "Transport", c.Categorize("COPEC PRONTO LAS CONDES"))
}

func TestCategorizer_NoTable(t *testing.T) {
	var nilCat *Categorizer
	assert.Equal(t, DefaultCategory, nilCat.Categorize("ANYTHING"))
	assert.Equal(t, DefaultCategory, NewCategorizer(nil).Categorize("ANYTHING"))
	assert.Equal(t, DefaultCategory, NewCategorizer(nil).Categorize(""))
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2025-03-05", NormalizeDate("05/03/2025"))
	assert.Equal(t, "2025-03-05", NormalizeDate("5/3/2025"))
	assert.Equal(t, "2025-03-05", NormalizeDate("2025-03-05"))
	assert.Equal(t, "ayer", NormalizeDate(" ayer "))
	assert.Equal(t, "31/02/2025", NormalizeDate("31/02/2025"))
}

func TestNormalizer_Movement(t *testing.T) {
	n := New(NewCategorizer([]Category{{Name: "Delivery", Keywords: []string{"PEDIDOSYA"}}}))

	debit := bank.NewMovement("04/03/2025", "COMPRA NACIONAL  PEDIDOSYA SPA", decimal.NewFromInt(-12990), "12345678")
	got := n.Movement(debit)
	assert.Equal(t, Movement{
		Date:           "2025-03-04",
		Description:    "PEDIDOSYA",
		RawDescription: "COMPRA NACIONAL PEDIDOSYA SPA",
		Amount:         decimal.NewFromInt(-12990),
		Type:           TxPurchase,
		MovementType:   Expense,
		Category:       "Delivery",
		AccountRef:     "12345678",
		Status:         bank.MovementStatusSettled,
	}, got)

	credit := n.Movement(bank.NewMovement("05/03/2025", "TEF DE JUAN PEREZ 20011223", decimal.NewFromInt(150000), ""))
	assert.Equal(t, Income, credit.MovementType)
	assert.Equal(t, TxTransfer, credit.Type)
	assert.Equal(t, DefaultCategory, credit.Category)
	assert.Equal(t, "20011223", credit.Reference)
}

func TestNormalizer_Movements(t *testing.T) {
	n := New(nil)
	assert.NotNil(t, n.Movements(nil))

	out := n.Movements([]bank.Movement{
		bank.NewMovement("01/01/2025", "A", decimal.NewFromInt(1), ""),
		bank.NewMovement("02/01/2025", "B", decimal.NewFromInt(-1), ""),
	})
	assert.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Description)
	assert.Equal(t, Expense, out[1].MovementType)
}

func TestNormalizer_CustomRules(t *testing.T) {
	n := New(nil, WithTypeRules([]TypeRule{{"LIDER", TxPurchase}}))
	got := n.Movement(bank.NewMovement("01/01/2025", "LIDER EXPRESS", decimal.NewFromInt(-5), ""))
	assert.Equal(t, TxPurchase, got.Type)
}
