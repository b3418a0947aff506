package normalize

import (
	"regexp"
	"strings"
)

// TxType is the coarse transaction tag of a movement.
type TxType string

const (
	TxTransfer   TxType = "TRANSFER"
	TxPurchase   TxType = "PURCHASE"
	TxWithdrawal TxType = "WITHDRAWAL"
	TxDeposit    TxType = "DEPOSIT"
	TxPayment    TxType = "PAYMENT"
	TxFee        TxType = "FEE"
	TxSalary     TxType = "SALARY"
	TxInterest   TxType = "INTEREST"
	TxOther      TxType = "OTHER"
)

// TypeRule tags descriptions containing Phrase. Phrases are matched
// uppercase and without accents.
type TypeRule struct {
	Phrase string
	Type   TxType
}

// DefaultTypeRules is evaluated in order; the first match wins.
var DefaultTypeRules = []TypeRule{
	{"REMUNERACION", TxSalary},
	{"SUELDO", TxSalary},
	{"INTERESES", TxInterest},
	{"COMISION", TxFee},
	{"MANTENCION", TxFee},
	{"IMPUESTO", TxFee},
	{"GIRO", TxWithdrawal},
	{"CAJERO", TxWithdrawal},
	{"DEPOSITO", TxDeposit},
	{"ABONO", TxDeposit},
	{"TRANSFERENCIA", TxTransfer},
	{"TEF", TxTransfer},
	{"TRASPASO", TxTransfer},
	{"COMPRA", TxPurchase},
	{"REDCOMPRA", TxPurchase},
	{"PAGO", TxPayment},
	{"PAC ", TxPayment},
	{"CARGO", TxFee},
}

// Classify returns the tag of the first rule whose phrase occurs in
// description, or TxOther.
func Classify(rules []TypeRule, description string) TxType {
	d := " " + plain(description) + " "
	for _, r := range rules {
		if strings.Contains(d, " "+r.Phrase) {
			return r.Type
		}
	}
	return TxOther
}

// referencePatterns are tried in order; the first capture group of the first
// match is the reference.
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bREF(?:ERENCIA)?\.?\s*[:#]?\s*([A-Z0-9-]{4,})`),
	regexp.MustCompile(`(?i)\b(?:COD(?:IGO)?|NRO|OP(?:ERACION)?|N°)\.?\s*[:#]?\s*([A-Z0-9-]{4,})`),
	regexp.MustCompile(`\b(\d{6,})\b`),
	regexp.MustCompile(`\b([A-Z]{1,3}\d{4,})\b`),
}

// ExtractReference returns the transaction reference embedded in
// description, or "".
func ExtractReference(description string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(description); m != nil {
			return m[1]
		}
	}
	return ""
}
