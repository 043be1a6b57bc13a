package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeScenario(t *testing.T) {
	items := []Item{
		{Qty: 2, UnitPrice: d("10")},
		{Qty: 1, UnitPrice: d("5"), DiscountPct: d("0.1")},
	}
	got := CartTotal(items)
	if !got.Equal(d("24.5")) {
		t.Fatalf("expected total 24.5, got %s", got)
	}
	change := Change(got, d("30"))
	if !change.Equal(d("5.5")) {
		t.Fatalf("expected change 5.5, got %s", change)
	}
}

func TestCartTotalEqualsSumOfLineTotals(t *testing.T) {
	items := []Item{
		{Qty: 3, UnitPrice: d("12.99"), DiscountPct: d("0.15")},
		{Qty: 7, UnitPrice: d("0.33"), DiscountPct: d("0.1")},
		{Qty: 1, UnitPrice: d("1999.95")},
	}
	sum := decimal.Zero
	for _, it := range items {
		line := LineTotal(it.UnitPrice, it.Qty, it.DiscountPct)
		sub := LineSubtotal(it.UnitPrice, it.Qty)
		if !line.Equal(sub.Sub(sub.Mul(it.DiscountPct))) {
			t.Fatalf("line total mismatch for %+v", it)
		}
		sum = sum.Add(line)
	}
	if !CartTotal(items).Equal(sum) {
		t.Fatalf("expected cart total %s, got %s", sum, CartTotal(items))
	}
}

func TestComputeSummary(t *testing.T) {
	s := Compute([]Item{{Qty: 4, UnitPrice: d("25"), DiscountPct: d("0.1")}})
	if !s.Subtotal.Equal(d("100")) || !s.Discount.Equal(d("10")) || !s.Total.Equal(d("90")) {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestFullPrecisionUntilRound(t *testing.T) {
	// 3 x 0.335 x 0.9 = 0.9045; rounding per line would drift.
	items := []Item{
		{Qty: 3, UnitPrice: d("0.335"), DiscountPct: d("0.1")},
		{Qty: 3, UnitPrice: d("0.335"), DiscountPct: d("0.1")},
	}
	total := CartTotal(items)
	if !total.Equal(d("1.809")) {
		t.Fatalf("expected 1.809, got %s", total)
	}
	if !Round(total).Equal(d("1.81")) {
		t.Fatalf("expected rounded 1.81, got %s", Round(total))
	}
}

func TestTax(t *testing.T) {
	tb := Tax(d("200"))
	if !tb.Tax.Equal(d("30")) || !tb.Total.Equal(d("230")) || !tb.Exempt.IsZero() {
		t.Fatalf("unexpected breakdown %+v", tb)
	}
}
