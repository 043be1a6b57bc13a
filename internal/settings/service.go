package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/store"
)

// Keys read by the receipt and document steps.
const (
	KeyReceiptTemplate = "recibo_template"
	KeySavePath        = "recibo_save_path"
)

// Querier is the store subset used for runtime settings.
type Querier interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Service reads and writes store-backed settings.
type Service struct {
	Q      Querier
	Logger zerolog.Logger
}

// Get returns the value for key, or def when it is unset or cannot be read.
func (s *Service) Get(ctx context.Context, key, def string) string {
	if s == nil || s.Q == nil {
		return def
	}
	v, err := s.Q.GetConfig(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.Logger.Warn().Err(err).Str("key", key).Msg("setting_read_failed")
		}
		return def
	}
	return v
}

// Set stores value under key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if s == nil || s.Q == nil {
		return errors.New("settings service not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("settings: key is required")
	}
	if err := s.Q.SetConfig(ctx, key, value); err != nil {
		return fmt.Errorf("settings: set %s: %w", key, err)
	}
	return nil
}
