package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SampleProducts is the demo catalog the register ships with.
func SampleProducts() []Product {
	return []Product{
		{ID: 1, Name: `Monitor 27"`, Description: "Monitor 4K profesional", Price: decimal.NewFromInt(320), Stock: 15},
		{ID: 2, Name: "Teclado Mecánico", Description: "Switches Blue, RGB", Price: decimal.NewFromInt(45), Stock: 105},
		{ID: 3, Name: "Mouse Gamer", Description: "RGB, 16000 DPI", Price: decimal.NewFromInt(35), Stock: 50},
		{ID: 4, Name: "Laptop HP", Description: "i5, 8GB RAM, 256GB SSD", Price: decimal.NewFromInt(650), Stock: 8},
	}
}

// SampleDiscounts is the demo discount list.
func SampleDiscounts() []Discount {
	return []Discount{
		{ID: 1, Name: "Docena 10%", Kind: "Docena", Percentage: decimal.RequireFromString("0.10")},
		{ID: 2, Name: "Mayorista 15%", Kind: "Mayorista", Percentage: decimal.RequireFromString("0.15")},
	}
}

// SeedResult counts the rows inserted by Seed.
type SeedResult struct {
	Products  int64
	Discounts int64
}

// Seed inserts products and discounts that are not present yet. Existing rows
// with the same id are left untouched.
func (p *Postgres) Seed(ctx context.Context, products []Product, discounts []Discount) (SeedResult, error) {
	var res SeedResult
	if err := p.ready(); err != nil {
		return res, err
	}
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return res, wrap("seed: begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, pr := range products {
		tag, err := tx.Exec(ctx, `INSERT INTO productos (id, nombre, descripcion, precio, stock)
VALUES ($1, $2, NULLIF($3, ''), $4::numeric, $5) ON CONFLICT (id) DO NOTHING`,
			pr.ID, pr.Name, pr.Description, pr.Price.String(), pr.Stock)
		if err != nil {
			return res, wrap(fmt.Sprintf("seed product %d", pr.ID), err)
		}
		res.Products += tag.RowsAffected()
	}
	for _, d := range discounts {
		tag, err := tx.Exec(ctx, `INSERT INTO descuentos (id, nombre, tipo, porcentaje)
VALUES ($1, $2, NULLIF($3, ''), $4::numeric) ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Name, d.Kind, d.Percentage.String())
		if err != nil {
			return res, wrap(fmt.Sprintf("seed discount %d", d.ID), err)
		}
		res.Discounts += tag.RowsAffected()
	}
	if err := tx.Commit(ctx); err != nil {
		return res, wrap("seed: commit", err)
	}
	return res, nil
}
