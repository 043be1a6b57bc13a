package receipt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	units    = [...]string{"", "uno", "dos", "tres", "cuatro", "cinco", "seis", "siete", "ocho", "nueve"}
	tens     = [...]string{"", "diez", "veinte", "treinta", "cuarenta", "cincuenta", "sesenta", "setenta", "ochenta", "noventa"}
	hundreds = [...]string{"", "ciento", "doscientos", "trescientos", "cuatrocientos", "quinientos", "seiscientos", "setecientos", "ochocientos", "novecientos"}
)

// AmountToWords spells a whole amount in Spanish, e.g. 2500 is
// "dos mil quinientos". Tens and units are always joined with "y", so 21 is
// "veinte y uno" and 15 is "diez y cinco", matching the invoices already
// printed by the business.
//
// Two outputs differ from those printed invoices: an exact 100 reads "cien"
// where they read "ciento", and amounts of 1,000,000 or more are spelled out
// ("un millón") where they fell back to digits.
func AmountToWords(n int64) string {
	if n == 0 {
		return "cero"
	}
	if n < 0 {
		return "menos " + AmountToWords(-n)
	}
	return spell(n)
}

func spell(n int64) string {
	switch {
	case n < 10:
		return units[n]
	case n < 100:
		if n%10 == 0 {
			return tens[n/10]
		}
		return tens[n/10] + " y " + units[n%10]
	case n == 100:
		return "cien"
	case n < 1000:
		if n%100 == 0 {
			return hundreds[n/100]
		}
		return hundreds[n/100] + " " + spell(n%100)
	case n < 1_000_000:
		return group(n/1000, n%1000, "mil", "mil")
	default:
		return group(n/1_000_000, n%1_000_000, "millón", "millones")
	}
}

func group(mult, rest int64, singular, plural string) string {
	var head string
	switch {
	case mult == 1 && singular == "mil":
		head = "mil"
	case mult == 1:
		head = "un " + singular
	default:
		head = spell(mult) + " " + plural
	}
	if rest == 0 {
		return head
	}
	return head + " " + spell(rest)
}

// AmountInWordsLine renders the invoice line "<WORDS> LEMPIRAS CON NN/100".
func AmountInWordsLine(amount decimal.Decimal, currencyWords string) string {
	amount = amount.Round(2)
	whole := amount.Truncate(0)
	cents := amount.Sub(whole).Mul(decimal.NewFromInt(100)).Abs().IntPart()
	if currencyWords == "" {
		currencyWords = "LEMPIRAS"
	}
	return fmt.Sprintf("%s %s CON %02d/100", strings.ToUpper(AmountToWords(whole.IntPart())), currencyWords, cents)
}
