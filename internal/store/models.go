package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product mirrors a row of productos.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// Discount mirrors a row of descuentos.
type Discount struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Kind       string          `json:"kind,omitempty"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Client mirrors a row of clientes.
type Client struct {
	ID           int64     `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	DNI          string    `json:"dni,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	Active       bool      `json:"active"`
}

// FullName joins first and last name.
func (c Client) FullName() string {
	switch {
	case c.LastName == "":
		return c.FirstName
	case c.FirstName == "":
		return c.LastName
	}
	return c.FirstName + " " + c.LastName
}

// NewClient holds the columns supplied when registering a client.
type NewClient struct {
	FirstName string
	LastName  string
	DNI       string
	Phone     string
	Email     string
	Address   string
}

// Sale mirrors a row of ventas.
type Sale struct {
	ID          string          `json:"id"`
	Fecha       string          `json:"fecha"`
	Total       decimal.Decimal `json:"total"`
	AmountPaid  decimal.Decimal `json:"amountPaid"`
	Change      decimal.Decimal `json:"change"`
	OperatorID  int64           `json:"operatorId"`
	ClientID    *int64          `json:"clientId,omitempty"`
	ReceiptKind string          `json:"receiptKind"`
}

// SaleLine mirrors a row of detalle_venta.
type SaleLine struct {
	SaleID      string          `json:"saleId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// DomainEvent mirrors a row of domain_events.
type DomainEvent struct {
	ID          uuid.UUID `json:"id"`
	Topic       string    `json:"topic"`
	AggregateID string    `json:"aggregateId"`
	Payload     []byte    `json:"payload"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// InsertDomainEventParams holds the columns of a new domain event.
type InsertDomainEventParams struct {
	Topic       string
	AggregateID string
	Payload     []byte
}
