package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process store with the same contracts as Postgres. A sale
// commit validates every decrement before applying any of them.
type Memory struct {
	Now func() time.Time

	mu           sync.RWMutex
	products     map[int64]Product
	discounts    []Discount
	config       map[string]string
	clients      map[int64]Client
	sales        map[string]Sale
	lines        map[string][]SaleLine
	events       []DomainEvent
	nextClientID int64
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		products: make(map[int64]Product),
		config:   make(map[string]string),
		clients:  make(map[int64]Client),
		sales:    make(map[string]Sale),
		lines:    make(map[string][]SaleLine),
	}
}

// NewSeededMemory returns a store holding the default sample catalog.
func NewSeededMemory() *Memory {
	m := NewMemory()
	for _, p := range SampleProducts() {
		m.PutProduct(p)
	}
	for _, d := range SampleDiscounts() {
		m.PutDiscount(d)
	}
	return m
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// PutProduct inserts or replaces a product.
func (m *Memory) PutProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// PutDiscount appends a discount definition.
func (m *Memory) PutDiscount(d Discount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discounts = append(m.discounts, d)
}

// PutClient inserts or replaces a client.
func (m *Memory) PutClient(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
	if c.ID > m.nextClientID {
		m.nextClientID = c.ID
	}
}

// ListProducts returns the catalog ordered by name.
func (m *Memory) ListProducts(context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetProduct returns one product by id.
func (m *Memory) GetProduct(_ context.Context, id int64) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, fmt.Errorf("get product %d: %w", id, ErrNotFound)
	}
	return p, nil
}

// ListDiscounts returns the stored discount definitions.
func (m *Memory) ListDiscounts(context.Context) ([]Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Discount(nil), m.discounts...), nil
}

// GetConfig returns the value stored under key.
func (m *Memory) GetConfig(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config[key]
	if !ok {
		return "", fmt.Errorf("get config %s: %w", key, ErrNotFound)
	}
	return v, nil
}

// SetConfig upserts key.
func (m *Memory) SetConfig(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

// ListActiveClients returns active clients ordered by last then first name.
func (m *Memory) ListActiveClients(context.Context) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out, nil
}

// GetClient returns one client by id.
func (m *Memory) GetClient(_ context.Context, id int64) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return Client{}, fmt.Errorf("get client %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// CreateClient inserts an active client.
func (m *Memory) CreateClient(_ context.Context, in NewClient) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextClientID++
	c := Client{
		ID:           m.nextClientID,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		DNI:          strings.TrimSpace(in.DNI),
		Phone:        strings.TrimSpace(in.Phone),
		Email:        strings.TrimSpace(in.Email),
		Address:      strings.TrimSpace(in.Address),
		RegisteredAt: m.now(),
		Active:       true,
	}
	m.clients[c.ID] = c
	return c, nil
}

// CommitSale stores the sale and decrements stock atomically.
func (m *Memory) CommitSale(_ context.Context, sale Sale, lines []SaleLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sales[sale.ID]; ok {
		return fmt.Errorf("insert sale %s: %w", sale.ID, ErrDuplicate)
	}
	remaining := make(map[int64]int, len(lines))
	for _, l := range lines {
		p, ok := m.products[l.ProductID]
		if !ok {
			return fmt.Errorf("product %d: %w", l.ProductID, ErrStockConflict)
		}
		left, seen := remaining[l.ProductID]
		if !seen {
			left = p.Stock
		}
		if left < l.Qty {
			return fmt.Errorf("product %d: %w", l.ProductID, ErrStockConflict)
		}
		remaining[l.ProductID] = left - l.Qty
	}
	for id, stock := range remaining {
		p := m.products[id]
		p.Stock = stock
		m.products[id] = p
	}
	m.sales[sale.ID] = sale
	stored := make([]SaleLine, 0, len(lines))
	for _, l := range lines {
		l.SaleID = sale.ID
		stored = append(stored, l)
	}
	m.lines[sale.ID] = stored
	return nil
}

// GetSale returns one persisted sale header.
func (m *Memory) GetSale(_ context.Context, id string) (Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("get sale %s: %w", id, ErrNotFound)
	}
	return s, nil
}

// ListSaleLines returns the lines of a sale in insertion order.
func (m *Memory) ListSaleLines(_ context.Context, saleID string) ([]SaleLine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SaleLine(nil), m.lines[saleID]...), nil
}

// CountSales returns the number of committed sales.
func (m *Memory) CountSales() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sales)
}

// InsertDomainEvent appends an event.
func (m *Memory) InsertDomainEvent(_ context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := DomainEvent{
		ID:          uuid.New(),
		Topic:       arg.Topic,
		AggregateID: arg.AggregateID,
		Payload:     append([]byte(nil), arg.Payload...),
		OccurredAt:  m.now(),
	}
	m.events = append(m.events, ev)
	return ev, nil
}

// Events returns the recorded domain events.
func (m *Memory) Events() []DomainEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DomainEvent(nil), m.events...)
}
