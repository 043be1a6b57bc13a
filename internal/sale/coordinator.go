package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/store"
)

// Committer persists a sale header, its lines and the stock decrements as one
// atomic unit.
type Committer interface {
	CommitSale(ctx context.Context, sale store.Sale, lines []store.SaleLine) error
}

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (store.DomainEvent, error)
}

// PreviewInput carries payment data for a preview request.
type PreviewInput struct {
	AmountPaid decimal.Decimal
	OperatorID int64
	ClientID   *int64
}

// Coordinator validates previews and commits confirmed sales.
type Coordinator struct {
	Store       Committer
	IDs         *IDGenerator
	Locker      Locker
	LockTTL     time.Duration
	Events      Emitter
	Logger      zerolog.Logger
	Now         func() time.Time
	ReceiptKind string
	// Channel labels metrics and events, e.g. "pos" or "wholesale".
	Channel string
}

// RequestPreview freezes the cart into a PendingSale. The store is not touched.
func (c *Coordinator) RequestPreview(ctx context.Context, cr *cart.Cart, in PreviewInput) (PendingSale, error) {
	if c == nil || c.IDs == nil {
		return PendingSale{}, errors.New("sale coordinator not configured")
	}
	if cr == nil || cr.IsEmpty() {
		return PendingSale{}, ErrEmptyCart
	}
	snap := cr.Snapshot()
	total := snap.Total()
	due := pricing.Round(total)
	if in.AmountPaid.LessThan(due) {
		return PendingSale{}, fmt.Errorf("paid %s of %s: %w", in.AmountPaid.StringFixed(2), due.StringFixed(2), ErrInsufficientPayment)
	}
	id, err := c.IDs.Next(ctx)
	if err != nil {
		return PendingSale{}, err
	}
	var clientID *int64
	if in.ClientID != nil {
		v := *in.ClientID
		clientID = &v
	}
	return PendingSale{
		ID:         id,
		CreatedAt:  c.now(),
		Total:      total,
		AmountPaid: in.AmountPaid,
		Change:     pricing.Change(due, in.AmountPaid),
		OperatorID: in.OperatorID,
		ClientID:   clientID,
		Snapshot:   snap,
	}, nil
}

// Confirm commits p and clears cr on success. On failure the cart is left as
// it was and the error wraps ErrPersistence.
func (c *Coordinator) Confirm(ctx context.Context, cr *cart.Cart, p PendingSale) (string, error) {
	if c == nil || c.Store == nil {
		return "", errors.New("sale coordinator not configured")
	}
	if p.Snapshot.Len() == 0 {
		return "", ErrEmptyCart
	}
	commit := func(ctx context.Context) error { return c.commit(ctx, p) }
	var err error
	if c.Locker != nil {
		err = c.Locker.WithLock(ctx, "sale:"+p.ID, c.lockTTL(), commit)
	} else {
		err = commit(ctx)
	}
	if err != nil {
		result := "failed"
		if errors.Is(err, store.ErrStockConflict) {
			result = "stock_conflict"
		}
		obs.RecordSale(c.channel(), result)
		c.Logger.Error().Err(err).Str("sale_id", p.ID).Str("channel", c.channel()).Msg("sale_commit_failed")
		return "", fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if cr != nil {
		cr.Clear()
	}
	obs.RecordSale(c.channel(), "confirmed")
	c.Logger.Info().
		Str("sale_id", p.ID).
		Str("channel", c.channel()).
		Str("total", p.Due().StringFixed(2)).
		Int("lines", p.Snapshot.Len()).
		Msg("sale_confirmed")
	c.emit(ctx, p)
	return p.ID, nil
}

// Cancel discards a preview. The store and the cart are not touched.
func (c *Coordinator) Cancel(p PendingSale) {
	if c == nil {
		return
	}
	c.Logger.Info().Str("sale_id", p.ID).Str("channel", c.channel()).Msg("sale_preview_cancelled")
}

func (c *Coordinator) commit(ctx context.Context, p PendingSale) error {
	ctx, span := otel.Tracer("github.com/noah-isme/toko-pos/internal/sale").Start(ctx, "sale.confirm")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale.id", p.ID),
		attribute.String("sale.channel", c.channel()),
		attribute.Int("sale.lines", p.Snapshot.Len()),
	)
	header, lines := p.Rows(c.ReceiptKind)
	start := time.Now()
	err := c.Store.CommitSale(ctx, header, lines)
	obs.ObserveSaleCommit(c.channel(), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Coordinator) emit(ctx context.Context, p PendingSale) {
	if c.Events == nil {
		return
	}
	payload := map[string]any{
		"saleId":     p.ID,
		"channel":    c.channel(),
		"total":      p.Due().StringFixed(2),
		"amountPaid": pricing.Round(p.AmountPaid).StringFixed(2),
		"lines":      p.Snapshot.Len(),
		"operatorId": p.OperatorID,
	}
	if p.ClientID != nil {
		payload["clientId"] = *p.ClientID
	}
	if _, err := c.Events.Emit(ctx, events.TopicSaleConfirmed, p.ID, payload); err != nil {
		c.Logger.Warn().Err(err).Str("sale_id", p.ID).Msg("sale_event_emit_failed")
	}
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) channel() string {
	if c.Channel == "" {
		return "pos"
	}
	return c.Channel
}

func (c *Coordinator) lockTTL() time.Duration {
	if c.LockTTL <= 0 {
		return 30 * time.Second
	}
	return c.LockTTL
}
