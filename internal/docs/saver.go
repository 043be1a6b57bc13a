package docs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/settings"
)

// DefaultFolderName is created under the home directory when no save folder
// is configured.
const DefaultFolderName = "Documentos_Ventas"

// Sink persists generated documents.
type Sink interface {
	Write(path, content string) error
}

// DirSink writes files to the local filesystem.
type DirSink struct{}

// Write creates the parent directory when needed and writes content.
func (DirSink) Write(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Settings is the subset of settings.Service used to resolve the folder.
type Settings interface {
	Get(ctx context.Context, key, def string) string
	Set(ctx context.Context, key, value string) error
}

// Saver writes documents into the configured sales folder.
type Saver struct {
	Settings Settings
	Sink     Sink
	// Home overrides the home directory lookup.
	Home   func() (string, error)
	Logger zerolog.Logger
}

// Save writes content as filename inside the sales folder and returns the
// full path.
func (s *Saver) Save(ctx context.Context, filename, content string) (string, error) {
	if s == nil || s.Sink == nil {
		return "", errors.New("document saver not configured")
	}
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", fmt.Errorf("docs: invalid file name %q", filename)
	}
	dir, err := s.Folder(ctx)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := s.Sink.Write(path, content); err != nil {
		return "", fmt.Errorf("docs: write %s: %w", path, err)
	}
	return path, nil
}

// Folder resolves the configured folder. When it is unset or not a directory
// the default folder under home is created and stored as the new setting.
func (s *Saver) Folder(ctx context.Context) (string, error) {
	var configured string
	if s.Settings != nil {
		configured = strings.TrimSpace(s.Settings.Get(ctx, settings.KeySavePath, ""))
	}
	if configured != "" {
		if info, err := os.Stat(configured); err == nil && info.IsDir() {
			return configured, nil
		}
		s.Logger.Warn().Str("path", configured).Msg("save_folder_missing")
	}
	home, err := s.home()
	if err != nil {
		return "", fmt.Errorf("docs: resolve home: %w", err)
	}
	dir := filepath.Join(home, DefaultFolderName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("docs: create %s: %w", dir, err)
	}
	if s.Settings != nil {
		if err := s.Settings.Set(ctx, settings.KeySavePath, dir); err != nil {
			s.Logger.Warn().Err(err).Msg("save_folder_not_persisted")
		}
	}
	return dir, nil
}

func (s *Saver) home() (string, error) {
	if s.Home != nil {
		return s.Home()
	}
	return os.UserHomeDir()
}
