package sale

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// Sale id prefixes.
const (
	PrefixPOS       = "V"
	PrefixWholesale = "VM"
)

const maxIDAttempts = 5

// ErrIDExhausted is returned when every candidate id was already reserved.
var ErrIDExhausted = errors.New("sale id candidates exhausted")

// Reserver claims a key for ttl and reports whether the claim succeeded.
type Reserver interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// IDGenerator produces ids shaped PREFIX-yyyyMMddHHmmss-NNN where NNN is in
// [100, 999]. With a Reserver configured, ids already handed out within TTL
// are skipped.
type IDGenerator struct {
	Prefix   string
	Now      func() time.Time
	Rand     func(n int) int
	Reserver Reserver
	TTL      time.Duration
	Logger   zerolog.Logger
}

// Next returns a fresh sale id.
func (g *IDGenerator) Next(ctx context.Context) (string, error) {
	if g == nil {
		return "", errors.New("sale id generator not configured")
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := g.candidate()
		if g.Reserver == nil {
			return id, nil
		}
		ok, err := g.Reserver.Reserve(ctx, "saleid:"+id, g.ttl())
		if err != nil {
			// The store's unique key on sale ids still rejects a duplicate.
			g.Logger.Warn().Err(err).Str("sale_id", id).Msg("sale_id_reservation_unavailable")
			return id, nil
		}
		if ok {
			return id, nil
		}
		g.Logger.Debug().Str("sale_id", id).Int("attempt", attempt+1).Msg("sale_id_collision")
	}
	return "", fmt.Errorf("%s ids after %d attempts: %w", g.prefix(), maxIDAttempts, ErrIDExhausted)
}

func (g *IDGenerator) candidate() string {
	return fmt.Sprintf("%s-%s-%03d", g.prefix(), g.now().Format("20060102150405"), 100+g.intn(900))
}

func (g *IDGenerator) prefix() string {
	if g.Prefix == "" {
		return PrefixPOS
	}
	return g.Prefix
}

func (g *IDGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *IDGenerator) intn(n int) int {
	if g.Rand != nil {
		return g.Rand(n)
	}
	return rand.IntN(n)
}

func (g *IDGenerator) ttl() time.Duration {
	if g.TTL <= 0 {
		return 24 * time.Hour
	}
	return g.TTL
}
