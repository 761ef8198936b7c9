package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/strufkin/pyzbus/ports/kv"
)

// CacheKey is the key the settings snapshot is stored under.
const CacheKey = "settings.cache"

// DefaultLocalFile is the local override file checked when none is
// configured. A sibling with a .yaml/.yml extension is accepted too.
const DefaultLocalFile = "settings.local"

// Loader assembles the layered settings and persists snapshots. Any layer
// that fails to load is logged as a warning and skipped; Load never fails.
type Loader struct {
	store     kv.Store
	localPath string
	log       *slog.Logger
}

type LoaderConfig struct {
	// Store holds the cached snapshot. Defaults to a FileStore in the
	// working directory, giving a plain settings.cache file.
	Store kv.Store

	// LocalPath is the local override file. Defaults to DefaultLocalFile.
	LocalPath string

	Log *slog.Logger
}

func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Store == nil {
		cfg.Store = kv.NewFileStore(".")
	}
	if cfg.LocalPath == "" {
		cfg.LocalPath = DefaultLocalFile
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Loader{
		store:     cfg.Store,
		localPath: cfg.LocalPath,
		log:       cfg.Log.With(slog.String("component", "settings")),
	}
}

// Load builds the live settings: defaults, then the caller's startup
// overrides, then the cached snapshot, then the local override file.
func (l *Loader) Load(ctx context.Context, overrides map[string]any) *Settings {
	s := New(Defaults())
	if len(overrides) > 0 {
		s.Merge(overrides)
	}

	if cached, err := kv.Get[map[string]any](ctx, l.store, CacheKey); err == nil {
		s.Merge(cached)
		l.log.Info("loaded cached settings")
	} else if !errors.Is(err, kv.ErrNotFound) {
		l.log.Warn("did not import cached settings", slog.Any("error", err))
	}

	if local, err := l.loadLocal(); err == nil {
		s.Merge(local)
		l.log.Info("loaded local settings", slog.String("file", l.localPath))
	} else if !os.IsNotExist(err) {
		l.log.Warn("cannot load local settings", slog.Any("error", err))
	}

	return s
}

// Save writes the full mapping to the cache layer.
func (l *Loader) Save(ctx context.Context, s *Settings) error {
	if err := kv.Put(ctx, l.store, CacheKey, s.Snapshot()); err != nil {
		return fmt.Errorf("save %s: %w", CacheKey, err)
	}
	l.log.Info("saved settings cache")
	return nil
}

// loadLocal reads the local override file, trying the configured path and
// its YAML variants.
func (l *Loader) loadLocal() (map[string]any, error) {
	paths := []string{l.localPath}
	switch filepath.Ext(l.localPath) {
	case ".json", ".yaml", ".yml":
	default:
		paths = append(paths, l.localPath+".yaml", l.localPath+".yml")
	}

	var lastErr error = os.ErrNotExist
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				lastErr = err
			}
			continue
		}
		return parseLocal(p, data)
	}
	return nil, lastErr
}

func parseLocal(path string, data []byte) (map[string]any, error) {
	var m map[string]any
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return m, nil
}

var _ Saver = (*Loader)(nil)
