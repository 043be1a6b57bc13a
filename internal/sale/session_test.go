package sale_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/sale"
)

func TestSessionLifecycle(t *testing.T) {
	mem := newMemory()
	s := sale.NewSession(newCoordinator(mem))
	ctx := context.Background()
	require.Equal(t, sale.StateEmpty, s.State())

	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 2) }))
	require.Equal(t, sale.StateBuilding, s.State())

	_, err := s.Preview(ctx, paid("30", 1))
	require.NoError(t, err)
	require.Equal(t, sale.StatePreviewRequested, s.State())

	err = s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productB), 1) })
	require.ErrorIs(t, err, sale.ErrPreviewPending)

	done, err := s.Confirm(ctx)
	require.NoError(t, err)
	require.Equal(t, sale.StateConfirmed, s.State())
	v := s.View()
	require.Empty(t, v.Lines)
	require.Equal(t, done.ID, v.LastSale)

	_, err = s.Confirm(ctx)
	require.ErrorIs(t, err, sale.ErrPreviewClosed)
	require.Equal(t, 1, mem.CountSales())

	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productB), 1) }))
	require.Equal(t, sale.StateBuilding, s.State())
}

func TestSessionCancelKeepsCart(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	ctx := context.Background()
	require.ErrorIs(t, s.Cancel(), sale.ErrPreviewClosed)

	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
	_, err := s.Preview(ctx, paid("10", 1))
	require.NoError(t, err)
	require.NoError(t, s.Cancel())
	require.Equal(t, sale.StateCancelled, s.State())
	require.Len(t, s.View().Lines, 1)
	require.ErrorIs(t, s.Cancel(), sale.ErrPreviewClosed)
}

func TestSessionFailedPreviewStaysBuilding(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
	_, err := s.Preview(context.Background(), paid("9.99", 1))
	require.ErrorIs(t, err, sale.ErrInsufficientPayment)
	require.Equal(t, sale.StateBuilding, s.State())
	require.Nil(t, s.View().Pending)
}

func TestSessionRejectedMutationKeepsState(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	err := s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productB), 4) })
	require.ErrorIs(t, err, cart.ErrInsufficientStock)
	require.Equal(t, sale.StateEmpty, s.State())
}

func TestSessionClientBinding(t *testing.T) {
	mem := newMemory()
	s := sale.NewSession(newCoordinator(mem))
	ctx := context.Background()
	clientID := int64(42)
	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
	in := paid("10", 1)
	in.ClientID = &clientID
	p, err := s.Preview(ctx, in)
	require.NoError(t, err)
	require.NotNil(t, p.ClientID)
	require.Equal(t, int64(42), *p.ClientID)
	require.Equal(t, int64(42), *s.View().ClientID)

	done, err := s.Confirm(ctx)
	require.NoError(t, err)
	header, err := mem.GetSale(ctx, done.ID)
	require.NoError(t, err)
	require.Equal(t, int64(42), *header.ClientID)
	require.Nil(t, s.View().ClientID)
}

func TestSessionRejectedPreviewKeepsClient(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	ctx := context.Background()
	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
	first := int64(42)
	in := paid("10", 1)
	in.ClientID = &first
	_, err := s.Preview(ctx, in)
	require.NoError(t, err)
	require.NoError(t, s.Cancel())

	other := int64(43)
	in = paid("1", 1)
	in.ClientID = &other
	_, err = s.Preview(ctx, in)
	require.ErrorIs(t, err, sale.ErrInsufficientPayment)
	require.Equal(t, int64(42), *s.View().ClientID)
}

func TestSessionRecordsOperatorPerPreview(t *testing.T) {
	mem := newMemory()
	s := sale.NewSession(newCoordinator(mem))
	ctx := context.Background()

	for _, op := range []int64{1, 2} {
		require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
		p, err := s.Preview(ctx, paid("10", op))
		require.NoError(t, err)
		require.Equal(t, op, p.OperatorID)
		done, err := s.Confirm(ctx)
		require.NoError(t, err)
		header, err := mem.GetSale(ctx, done.ID)
		require.NoError(t, err)
		require.Equal(t, op, header.OperatorID)
	}
}

func TestSessionConfirmReturnsCommittedSale(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	ctx := context.Background()
	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 2) }))
	p, err := s.Preview(ctx, paid("30", 5))
	require.NoError(t, err)
	done, err := s.Confirm(ctx)
	require.NoError(t, err)
	require.Equal(t, p.ID, done.ID)
	require.True(t, p.Total.Equal(done.Total))
	require.Equal(t, 2, done.Snapshot.Len())
}

func TestSessionClearDiscardsPreview(t *testing.T) {
	s := sale.NewSession(newCoordinator(newMemory()))
	require.NoError(t, s.Mutate(func(c *cart.Cart) error { return c.Add(asCart(productA), 1) }))
	_, err := s.Preview(context.Background(), paid("10", 1))
	require.NoError(t, err)
	s.Clear()
	require.Equal(t, sale.StateEmpty, s.State())
	require.Nil(t, s.View().Pending)
}

func paid(amount string, operatorID int64) sale.PreviewInput {
	return sale.PreviewInput{AmountPaid: dec(amount), OperatorID: operatorID}
}
