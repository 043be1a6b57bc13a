package pricing

import "github.com/shopspring/decimal"

// TaxRate is the flat rate applied to the gravable subtotal on sale documents.
var TaxRate = decimal.RequireFromString("0.15")

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty         int
	UnitPrice   decimal.Decimal
	DiscountPct decimal.Decimal
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// TaxBreakdown is the tax table printed on invoices.
type TaxBreakdown struct {
	Gravable decimal.Decimal
	Exempt   decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// LineSubtotal returns unitPrice x qty.
func LineSubtotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// LineDiscountAmount returns the portion of the line subtotal removed by pct.
func LineDiscountAmount(unitPrice decimal.Decimal, qty int, pct decimal.Decimal) decimal.Decimal {
	return LineSubtotal(unitPrice, qty).Mul(pct)
}

// LineTotal returns the line subtotal minus its discount.
func LineTotal(unitPrice decimal.Decimal, qty int, pct decimal.Decimal) decimal.Decimal {
	return LineSubtotal(unitPrice, qty).Sub(LineDiscountAmount(unitPrice, qty, pct))
}

// CartTotal sums LineTotal over items. Values are kept at full precision.
func CartTotal(items []Item) decimal.Decimal {
	return Compute(items).Total
}

// Compute calculates undiscounted subtotal, discount and total for items.
func Compute(items []Item) Summary {
	subtotal := decimal.Zero
	discount := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(LineSubtotal(it.UnitPrice, it.Qty))
		discount = discount.Add(LineDiscountAmount(it.UnitPrice, it.Qty, it.DiscountPct))
	}
	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Total:    subtotal.Sub(discount),
	}
}

// Change returns amountPaid - total.
func Change(total, amountPaid decimal.Decimal) decimal.Decimal {
	return amountPaid.Sub(total)
}

// Tax computes the invoice tax table for a gravable subtotal. Tax is added on
// top of the gravable amount; nothing is exempt.
func Tax(gravable decimal.Decimal) TaxBreakdown {
	tax := gravable.Mul(TaxRate)
	return TaxBreakdown{
		Gravable: gravable,
		Exempt:   decimal.Zero,
		Tax:      tax,
		Total:    gravable.Add(tax),
	}
}

// Round rounds to cents. Use only when displaying or persisting amounts.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
