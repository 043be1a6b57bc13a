package discount

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/store"
)

// ErrInvalidDiscount indicates a selection index outside the catalog.
var ErrInvalidDiscount = errors.New("invalid discount")

// NoneName labels the synthetic zero discount at index 0.
const NoneName = "Sin descuento"

const defaultCacheKey = "discounts:v1"

// Definition is an immutable named discount.
type Definition struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

// None returns the "no discount" sentinel.
func None() Definition {
	return Definition{Name: NoneName, Percentage: decimal.Zero}
}

// IsNone reports whether d applies no discount.
func (d Definition) IsNone() bool { return d.Percentage.IsZero() }

// Label renders the selection text, e.g. "Docena 10% - 10%".
func (d Definition) Label() string {
	if d.IsNone() {
		return d.Name
	}
	return fmt.Sprintf("%s - %s%%", d.Name, d.Percentage.Mul(decimal.NewFromInt(100)).StringFixed(0))
}

// Querier is the store subset used by the catalog.
type Querier interface {
	ListDiscounts(ctx context.Context) ([]store.Discount, error)
}

// Catalog holds the discount list shown to operators. Index 0 is always the
// sentinel.
type Catalog struct {
	Q        Querier
	Cache    *Cache
	CacheKey string
	Logger   zerolog.Logger

	mu   sync.RWMutex
	defs []Definition
}

// Reload refreshes the catalog from the cache or the store. It never fails:
// when the store is unavailable only the sentinel entry is returned.
func (c *Catalog) Reload(ctx context.Context) []Definition {
	if c == nil {
		return []Definition{None()}
	}
	defs := c.load(ctx)
	c.mu.Lock()
	c.defs = defs
	c.mu.Unlock()
	return append([]Definition(nil), defs...)
}

// Definitions returns the currently loaded list, starting with the sentinel.
func (c *Catalog) Definitions() []Definition {
	if c == nil {
		return []Definition{None()}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.defs) == 0 {
		return []Definition{None()}
	}
	return append([]Definition(nil), c.defs...)
}

// Resolve returns the definition at idx.
func (c *Catalog) Resolve(idx int) (Definition, error) {
	defs := c.Definitions()
	if idx < 0 || idx >= len(defs) {
		return Definition{}, fmt.Errorf("index %d: %w", idx, ErrInvalidDiscount)
	}
	return defs[idx], nil
}

// Invalidate drops the cached list so the next Reload reads the store.
func (c *Catalog) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.Cache.Delete(ctx, c.cacheKey())
}

func (c *Catalog) load(ctx context.Context) []Definition {
	var cached []Definition
	if ok, err := c.Cache.GetJSON(ctx, c.cacheKey(), &cached); err != nil {
		c.Logger.Warn().Err(err).Msg("discount_cache_read_failed")
	} else if ok && len(cached) > 0 {
		return cached
	}

	if c.Q == nil {
		c.degraded(errors.New("discount querier not configured"))
		return []Definition{None()}
	}
	rows, err := c.Q.ListDiscounts(ctx)
	if err != nil {
		c.degraded(err)
		return []Definition{None()}
	}
	defs := make([]Definition, 0, len(rows)+1)
	defs = append(defs, None())
	for _, r := range rows {
		if !r.Percentage.IsPositive() || r.Percentage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			c.Logger.Warn().Int64("discount_id", r.ID).Str("percentage", r.Percentage.String()).Msg("discount_skipped_out_of_range")
			continue
		}
		defs = append(defs, Definition{ID: r.ID, Name: r.Name, Percentage: r.Percentage})
	}
	if err := c.Cache.SetJSON(ctx, c.cacheKey(), defs); err != nil {
		c.Logger.Warn().Err(err).Msg("discount_cache_write_failed")
	}
	return defs
}

func (c *Catalog) degraded(err error) {
	obs.RecordDiscountFallback()
	c.Logger.Warn().Err(err).Msg("discount_catalog_degraded")
}

func (c *Catalog) cacheKey() string {
	if c.CacheKey != "" {
		return c.CacheKey
	}
	return defaultCacheKey
}
