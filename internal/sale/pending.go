package sale

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/store"
)

// FechaLayout is the timestamp format stored on sales.
const FechaLayout = "2006-01-02 15:04:05"

// Receipt kinds recorded with each sale.
const (
	ReceiptHTML      = "HTML"
	ReceiptWholesale = "PDF_MAYORISTA"
)

var (
	// ErrEmptyCart is returned when a preview or commit is requested with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientPayment is returned when the amount paid is below the total.
	ErrInsufficientPayment = errors.New("insufficient payment")
	// ErrPersistence wraps any failure while committing a sale.
	ErrPersistence = errors.New("sale persistence failed")
	// ErrPreviewClosed is returned when confirming or cancelling with no open preview.
	ErrPreviewClosed = errors.New("no open sale preview")
	// ErrPreviewPending is returned when the cart is changed while a preview awaits confirmation.
	ErrPreviewPending = errors.New("sale preview awaiting confirmation")
	// ErrStockConflict is reported when stock ran out between preview and commit.
	ErrStockConflict = store.ErrStockConflict
)

// PendingSale is the frozen preview of a sale awaiting confirmation.
type PendingSale struct {
	ID         string
	CreatedAt  time.Time
	Total      decimal.Decimal
	AmountPaid decimal.Decimal
	Change     decimal.Decimal
	OperatorID int64
	ClientID   *int64
	Snapshot   cart.Snapshot
}

// Due is the total rounded to cents, the amount the customer pays.
func (p PendingSale) Due() decimal.Decimal { return pricing.Round(p.Total) }

// Fecha formats CreatedAt for storage and documents.
func (p PendingSale) Fecha() string { return p.CreatedAt.Format(FechaLayout) }

// Suffix returns the random tail of the sale id.
func (p PendingSale) Suffix() string {
	if i := strings.LastIndex(p.ID, "-"); i >= 0 {
		return p.ID[i+1:]
	}
	return p.ID
}

// Lines returns the captured cart lines.
func (p PendingSale) Lines() []cart.Line { return p.Snapshot.Lines() }

// Rows converts the preview into the sale header and line rows written by a
// commit. Amounts are rounded to cents here.
func (p PendingSale) Rows(receiptKind string) (store.Sale, []store.SaleLine) {
	var clientID *int64
	if p.ClientID != nil {
		id := *p.ClientID
		clientID = &id
	}
	header := store.Sale{
		ID:          p.ID,
		Fecha:       p.Fecha(),
		Total:       p.Due(),
		AmountPaid:  pricing.Round(p.AmountPaid),
		Change:      pricing.Round(p.Change),
		OperatorID:  p.OperatorID,
		ClientID:    clientID,
		ReceiptKind: receiptKind,
	}
	lines := make([]store.SaleLine, 0, p.Snapshot.Len())
	for _, l := range p.Snapshot.Lines() {
		lines = append(lines, store.SaleLine{
			SaleID:      p.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Qty:         l.Qty,
			UnitPrice:   pricing.Round(l.UnitPrice),
			Discount:    pricing.Round(l.DiscountAmount()),
			Subtotal:    pricing.Round(l.Total()),
		})
	}
	return header, lines
}
