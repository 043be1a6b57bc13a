package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

// Postgres implements the store contracts on a pgx pool. Numeric columns are
// exchanged as text so amounts keep full precision.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{Pool: pool}
}

func (p *Postgres) ready() error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("%w: postgres pool not configured", ErrStore)
	}
	return nil
}

const listProducts = `SELECT id, nombre, COALESCE(descripcion, ''), precio::text, stock
FROM productos ORDER BY nombre`

// ListProducts returns the catalog ordered by name.
func (p *Postgres) ListProducts(ctx context.Context) ([]Product, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	rows, err := p.Pool.Query(ctx, listProducts)
	if err != nil {
		return nil, wrap("list products", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, wrap("scan product", err)
		}
		out = append(out, prod)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list products", err)
	}
	return out, nil
}

const getProduct = `SELECT id, nombre, COALESCE(descripcion, ''), precio::text, stock
FROM productos WHERE id = $1`

// GetProduct returns one product by id.
func (p *Postgres) GetProduct(ctx context.Context, id int64) (Product, error) {
	if err := p.ready(); err != nil {
		return Product{}, err
	}
	prod, err := scanProduct(p.Pool.QueryRow(ctx, getProduct, id))
	if err != nil {
		return Product{}, wrap(fmt.Sprintf("get product %d", id), err)
	}
	return prod, nil
}

const listDiscounts = `SELECT id, nombre, COALESCE(tipo, ''), porcentaje::text FROM descuentos ORDER BY id`

// ListDiscounts returns the stored discount definitions.
func (p *Postgres) ListDiscounts(ctx context.Context) ([]Discount, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	rows, err := p.Pool.Query(ctx, listDiscounts)
	if err != nil {
		return nil, wrap("list discounts", err)
	}
	defer rows.Close()
	var out []Discount
	for rows.Next() {
		var (
			d   Discount
			pct string
		)
		if err := rows.Scan(&d.ID, &d.Name, &d.Kind, &pct); err != nil {
			return nil, wrap("scan discount", err)
		}
		if d.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, wrap("parse discount percentage", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list discounts", err)
	}
	return out, nil
}

// GetConfig returns the value stored under key.
func (p *Postgres) GetConfig(ctx context.Context, key string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}
	var value *string
	err := p.Pool.QueryRow(ctx, `SELECT valor FROM configuracion WHERE clave = $1`, key).Scan(&value)
	if err != nil {
		return "", wrap("get config "+key, err)
	}
	if value == nil {
		return "", fmt.Errorf("get config %s: %w", key, ErrNotFound)
	}
	return *value, nil
}

// SetConfig upserts key.
func (p *Postgres) SetConfig(ctx context.Context, key, value string) error {
	if err := p.ready(); err != nil {
		return err
	}
	_, err := p.Pool.Exec(ctx, `INSERT INTO configuracion (clave, valor) VALUES ($1, $2)
ON CONFLICT (clave) DO UPDATE SET valor = EXCLUDED.valor`, key, value)
	if err != nil {
		return wrap("set config "+key, err)
	}
	return nil
}

const clientColumns = `id, nombre, apellido, COALESCE(dni, ''), COALESCE(telefono, ''),
COALESCE(email, ''), COALESCE(direccion, ''), fecha_registro, activo`

// ListActiveClients returns active clients ordered by last then first name.
func (p *Postgres) ListActiveClients(ctx context.Context) ([]Client, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	rows, err := p.Pool.Query(ctx, `SELECT `+clientColumns+` FROM clientes WHERE activo ORDER BY apellido, nombre`)
	if err != nil {
		return nil, wrap("list clients", err)
	}
	defer rows.Close()
	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, wrap("scan client", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list clients", err)
	}
	return out, nil
}

// GetClient returns one client by id.
func (p *Postgres) GetClient(ctx context.Context, id int64) (Client, error) {
	if err := p.ready(); err != nil {
		return Client{}, err
	}
	c, err := scanClient(p.Pool.QueryRow(ctx, `SELECT `+clientColumns+` FROM clientes WHERE id = $1`, id))
	if err != nil {
		return Client{}, wrap(fmt.Sprintf("get client %d", id), err)
	}
	return c, nil
}

// CreateClient inserts an active client.
func (p *Postgres) CreateClient(ctx context.Context, in NewClient) (Client, error) {
	if err := p.ready(); err != nil {
		return Client{}, err
	}
	row := p.Pool.QueryRow(ctx, `INSERT INTO clientes (nombre, apellido, dni, telefono, email, direccion, fecha_registro, activo)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), now(), TRUE)
RETURNING `+clientColumns,
		in.FirstName, in.LastName, in.DNI, in.Phone, in.Email, in.Address)
	c, err := scanClient(row)
	if err != nil {
		return Client{}, wrap("create client", err)
	}
	return c, nil
}

// CommitSale writes the sale header, its lines and the stock decrements in a
// single transaction. A decrement that matches no row aborts the whole sale
// with ErrStockConflict.
func (p *Postgres) CommitSale(ctx context.Context, sale Sale, lines []SaleLine) error {
	if err := p.ready(); err != nil {
		return err
	}
	tx, err := p.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrap("begin sale tx", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `INSERT INTO ventas (id, fecha, total, monto_pagado, vuelto, usuario_id, cliente_id, tipo_recibo)
VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8)`,
		sale.ID, sale.Fecha, sale.Total.String(), sale.AmountPaid.String(), sale.Change.String(),
		sale.OperatorID, sale.ClientID, sale.ReceiptKind); err != nil {
		return wrap("insert sale "+sale.ID, err)
	}
	for _, l := range lines {
		if _, err := tx.Exec(ctx, `INSERT INTO detalle_venta (venta_id, producto_id, nombre_producto, cantidad, precio_unitario, descuento, subtotal)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric)`,
			sale.ID, l.ProductID, l.ProductName, l.Qty, l.UnitPrice.String(), l.Discount.String(), l.Subtotal.String()); err != nil {
			return wrap(fmt.Sprintf("insert sale line %d", l.ProductID), err)
		}
		tag, err := tx.Exec(ctx, `UPDATE productos SET stock = stock - $1 WHERE id = $2 AND stock >= $1`, l.Qty, l.ProductID)
		if err != nil {
			return wrap(fmt.Sprintf("decrement stock %d", l.ProductID), err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("product %d: %w", l.ProductID, ErrStockConflict)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap("commit sale "+sale.ID, err)
	}
	return nil
}

// GetSale returns one persisted sale header.
func (p *Postgres) GetSale(ctx context.Context, id string) (Sale, error) {
	if err := p.ready(); err != nil {
		return Sale{}, err
	}
	var (
		s                   Sale
		total, paid, change string
	)
	err := p.Pool.QueryRow(ctx, `SELECT id, fecha, total::text, monto_pagado::text, vuelto::text, usuario_id, cliente_id, tipo_recibo
FROM ventas WHERE id = $1`, id).Scan(&s.ID, &s.Fecha, &total, &paid, &change, &s.OperatorID, &s.ClientID, &s.ReceiptKind)
	if err != nil {
		return Sale{}, wrap("get sale "+id, err)
	}
	if s.Total, err = decimal.NewFromString(total); err != nil {
		return Sale{}, wrap("parse sale total", err)
	}
	if s.AmountPaid, err = decimal.NewFromString(paid); err != nil {
		return Sale{}, wrap("parse sale amount paid", err)
	}
	if s.Change, err = decimal.NewFromString(change); err != nil {
		return Sale{}, wrap("parse sale change", err)
	}
	return s, nil
}

// ListSaleLines returns the lines of a sale in insertion order.
func (p *Postgres) ListSaleLines(ctx context.Context, saleID string) ([]SaleLine, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	rows, err := p.Pool.Query(ctx, `SELECT venta_id, producto_id, nombre_producto, cantidad, precio_unitario::text, descuento::text, subtotal::text
FROM detalle_venta WHERE venta_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, wrap("list sale lines", err)
	}
	defer rows.Close()
	var out []SaleLine
	for rows.Next() {
		var (
			l                      SaleLine
			unit, disc, subtotal string
		)
		if err := rows.Scan(&l.SaleID, &l.ProductID, &l.ProductName, &l.Qty, &unit, &disc, &subtotal); err != nil {
			return nil, wrap("scan sale line", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, wrap("parse unit price", err)
		}
		if l.Discount, err = decimal.NewFromString(disc); err != nil {
			return nil, wrap("parse discount", err)
		}
		if l.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, wrap("parse subtotal", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list sale lines", err)
	}
	return out, nil
}

// InsertDomainEvent appends an event to the outbox table.
func (p *Postgres) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	if err := p.ready(); err != nil {
		return DomainEvent{}, err
	}
	ev := DomainEvent{ID: uuid.New(), Topic: arg.Topic, AggregateID: arg.AggregateID, Payload: arg.Payload}
	err := p.Pool.QueryRow(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload)
VALUES ($1, $2, $3, $4) RETURNING occurred_at`, ev.ID, ev.Topic, ev.AggregateID, ev.Payload).Scan(&ev.OccurredAt)
	if err != nil {
		return DomainEvent{}, wrap("insert domain event", err)
	}
	return ev, nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var (
		p     Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock); err != nil {
		return Product{}, err
	}
	v, err := decimal.NewFromString(price)
	if err != nil {
		return Product{}, err
	}
	p.Price = v
	return p, nil
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.DNI, &c.Phone, &c.Email, &c.Address, &c.RegisteredAt, &c.Active)
	return c, err
}

func wrap(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
