package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/store"
)

func TestMemoryCommitSaleDecrementsStock(t *testing.T) {
	ctx := context.Background()
	m := store.NewSeededMemory()

	sale := store.Sale{ID: "V-20250101120000-123", Fecha: "2025-01-01 12:00:00", Total: decimal.NewFromInt(70), AmountPaid: decimal.NewFromInt(100), Change: decimal.NewFromInt(30), OperatorID: 1, ReceiptKind: "HTML"}
	lines := []store.SaleLine{
		{ProductID: 3, ProductName: "Mouse Gamer", Qty: 2, UnitPrice: decimal.NewFromInt(35), Discount: decimal.Zero, Subtotal: decimal.NewFromInt(70)},
	}
	require.NoError(t, m.CommitSale(ctx, sale, lines))

	p, err := m.GetProduct(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 48, p.Stock)

	got, err := m.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Equal(t, sale.ID, got.ID)

	stored, err := m.ListSaleLines(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, sale.ID, stored[0].SaleID)
}

func TestMemoryCommitSaleIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	m := store.NewSeededMemory()

	sale := store.Sale{ID: "V-1", Total: decimal.Zero}
	lines := []store.SaleLine{
		{ProductID: 1, Qty: 1},
		{ProductID: 4, Qty: 9},
	}
	err := m.CommitSale(ctx, sale, lines)
	require.ErrorIs(t, err, store.ErrStockConflict)

	p, err := m.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 15, p.Stock)
	require.Equal(t, 0, m.CountSales())
	_, err = m.GetSale(ctx, "V-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCommitSaleRejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	m := store.NewSeededMemory()
	sale := store.Sale{ID: "V-dup"}
	require.NoError(t, m.CommitSale(ctx, sale, []store.SaleLine{{ProductID: 2, Qty: 1}}))
	err := m.CommitSale(ctx, sale, []store.SaleLine{{ProductID: 2, Qty: 1}})
	require.ErrorIs(t, err, store.ErrDuplicate)
	p, _ := m.GetProduct(ctx, 2)
	require.Equal(t, 104, p.Stock)
}

func TestMemoryClients(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	m.PutClient(store.Client{ID: 5, FirstName: "Inactiva", LastName: "Zeta"})
	c, err := m.CreateClient(ctx, store.NewClient{FirstName: " Ana ", LastName: "López", Email: "ana@example.com"})
	require.NoError(t, err)
	require.Equal(t, int64(6), c.ID)
	require.Equal(t, "Ana López", c.FullName())

	active, err := m.ListActiveClients(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, c.ID, active[0].ID)
}

func TestMemoryConfig(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	_, err := m.GetConfig(ctx, "recibo_save_path")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, m.SetConfig(ctx, "recibo_save_path", "/tmp/x"))
	v, err := m.GetConfig(ctx, "recibo_save_path")
	require.NoError(t, err)
	require.Equal(t, "/tmp/x", v)
}
