package cart

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/pricing"
)

var (
	// ErrInvalidQuantity is returned when a quantity is not positive.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrInsufficientStock is returned when a line would exceed available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrNotInCart is returned when the product has no line in the cart.
	ErrNotInCart = errors.New("product not in cart")
	// ErrInvalidPercentage is returned for discounts outside [0, 1).
	ErrInvalidPercentage = errors.New("invalid discount percentage")
)

var one = decimal.NewFromInt(1)

// Product is the inventory reference a line is built from.
type Product struct {
	ID        int64
	Name      string
	UnitPrice decimal.Decimal
	Stock     int
}

// Line is one product entry in the cart.
type Line struct {
	ProductID    int64           `json:"productId"`
	ProductName  string          `json:"productName"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	Qty          int             `json:"qty"`
	DiscountPct  decimal.Decimal `json:"discountPct"`
	DiscountName string          `json:"discountName,omitempty"`
	// Stock is the available stock observed when the line was last checked.
	Stock int `json:"stock"`
}

// Subtotal is unit price times quantity.
func (l Line) Subtotal() decimal.Decimal { return pricing.LineSubtotal(l.UnitPrice, l.Qty) }

// DiscountAmount is the amount removed by the line discount.
func (l Line) DiscountAmount() decimal.Decimal {
	return pricing.LineDiscountAmount(l.UnitPrice, l.Qty, l.DiscountPct)
}

// Total is the discounted line amount.
func (l Line) Total() decimal.Decimal { return pricing.LineTotal(l.UnitPrice, l.Qty, l.DiscountPct) }

// Cart is the mutable set of pending sale lines. It is not safe for
// concurrent use; callers serialize access per session.
type Cart struct {
	lines map[int64]*Line
	order []int64
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{lines: make(map[int64]*Line)}
}

// ValidatePercentage reports ErrInvalidPercentage when pct is outside [0, 1).
func ValidatePercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThanOrEqual(one) {
		return fmt.Errorf("percentage %s: %w", pct, ErrInvalidPercentage)
	}
	return nil
}

// Add increases the quantity of p by qty, creating the line when needed. An
// existing line keeps its discount.
func (c *Cart) Add(p Product, qty int) error {
	return c.add(p, qty, nil, "")
}

// AddDiscounted behaves like Add and then sets the line discount to pct. The
// explicit discount replaces whatever the line had before.
func (c *Cart) AddDiscounted(p Product, qty int, pct decimal.Decimal, name string) error {
	if err := ValidatePercentage(pct); err != nil {
		return err
	}
	return c.add(p, qty, &pct, name)
}

func (c *Cart) add(p Product, qty int, pct *decimal.Decimal, name string) error {
	if qty <= 0 {
		return fmt.Errorf("qty %d: %w", qty, ErrInvalidQuantity)
	}
	c.init()
	current := 0
	if l, ok := c.lines[p.ID]; ok {
		current = l.Qty
	}
	if current+qty > p.Stock {
		return fmt.Errorf("product %d: only %d available: %w", p.ID, p.Stock, ErrInsufficientStock)
	}
	l, ok := c.lines[p.ID]
	if !ok {
		l = &Line{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.UnitPrice,
			DiscountPct: decimal.Zero,
		}
		c.lines[p.ID] = l
		c.order = append(c.order, p.ID)
	}
	l.Qty += qty
	l.Stock = p.Stock
	if pct != nil {
		l.DiscountPct = *pct
		l.DiscountName = name
	}
	return nil
}

// Remove deletes the line for productID.
func (c *Cart) Remove(productID int64) error {
	if _, ok := c.lines[productID]; !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotInCart)
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetDiscount sets the discount of a single line.
func (c *Cart) SetDiscount(productID int64, pct decimal.Decimal, name string) error {
	l, ok := c.lines[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotInCart)
	}
	if err := ValidatePercentage(pct); err != nil {
		return err
	}
	l.DiscountPct = pct
	l.DiscountName = name
	return nil
}

// SetDiscountForAll applies pct to every line.
func (c *Cart) SetDiscountForAll(pct decimal.Decimal, name string) error {
	if err := ValidatePercentage(pct); err != nil {
		return err
	}
	for _, l := range c.lines {
		l.DiscountPct = pct
		l.DiscountName = name
	}
	return nil
}

// UpdateLine replaces the quantity and discount of an existing line. The new
// quantity is bounded by the stock recorded on the line.
func (c *Cart) UpdateLine(productID int64, qty int, pct decimal.Decimal, name string) error {
	l, ok := c.lines[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrNotInCart)
	}
	if qty <= 0 {
		return fmt.Errorf("qty %d: %w", qty, ErrInvalidQuantity)
	}
	if qty > l.Stock {
		return fmt.Errorf("product %d: only %d available: %w", productID, l.Stock, ErrInsufficientStock)
	}
	if err := ValidatePercentage(pct); err != nil {
		return err
	}
	l.Qty = qty
	l.DiscountPct = pct
	l.DiscountName = name
	return nil
}

// Quantity returns the quantity currently held for productID.
func (c *Cart) Quantity(productID int64) int {
	if l, ok := c.lines[productID]; ok {
		return l.Qty
	}
	return 0
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = make(map[int64]*Line)
	c.order = nil
}

// Len returns the number of lines.
func (c *Cart) Len() int {
	return len(c.lines)
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool { return c.Len() == 0 }

// Total is the sum of line totals at full precision.
func (c *Cart) Total() decimal.Decimal {
	return pricing.CartTotal(c.items())
}

// Lines returns copies of the lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.lines[id])
	}
	return out
}

// Snapshot returns an immutable copy of the cart.
func (c *Cart) Snapshot() Snapshot {
	return Snapshot{lines: c.Lines()}
}

func (c *Cart) items() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.lines))
	for _, id := range c.order {
		l := c.lines[id]
		items = append(items, pricing.Item{Qty: l.Qty, UnitPrice: l.UnitPrice, DiscountPct: l.DiscountPct})
	}
	return items
}

func (c *Cart) init() {
	if c.lines == nil {
		c.lines = make(map[int64]*Line)
	}
}

// Snapshot is a frozen view of a cart. Mutating the cart afterwards does not
// change it.
type Snapshot struct {
	lines []Line
}

// NewSnapshot builds a snapshot from lines, copying the slice.
func NewSnapshot(lines []Line) Snapshot {
	return Snapshot{lines: append([]Line(nil), lines...)}
}

// Lines returns a copy of the captured lines.
func (s Snapshot) Lines() []Line {
	return append([]Line(nil), s.lines...)
}

// Len returns the number of captured lines.
func (s Snapshot) Len() int { return len(s.lines) }

// Summary computes subtotal, discount and total for the captured lines.
func (s Snapshot) Summary() pricing.Summary {
	items := make([]pricing.Item, 0, len(s.lines))
	for _, l := range s.lines {
		items = append(items, pricing.Item{Qty: l.Qty, UnitPrice: l.UnitPrice, DiscountPct: l.DiscountPct})
	}
	return pricing.Compute(items)
}

// Total is the discounted total of the captured lines.
func (s Snapshot) Total() decimal.Decimal { return s.Summary().Total }

// RejectionReason maps cart errors to a short label for metrics.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotInCart):
		return "not_in_cart"
	case errors.Is(err, ErrInvalidPercentage):
		return "invalid_percentage"
	default:
		return "other"
	}
}
