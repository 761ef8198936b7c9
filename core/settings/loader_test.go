package settings

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strufkin/pyzbus/ports/kv"
)

func newTestLoader(t *testing.T) (*Loader, kv.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := kv.NewMemStore()
	l := NewLoader(LoaderConfig{
		Store:     store,
		LocalPath: filepath.Join(dir, DefaultLocalFile),
		Log:       slog.New(slog.DiscardHandler),
	})
	return l, store, dir
}

func TestLoadLayerPrecedence(t *testing.T) {
	l, store, dir := newTestLoader(t)
	ctx := t.Context()

	// Cache layer beats overrides, local file beats cache.
	require.NoError(t, kv.Put(ctx, store, CacheKey, map[string]any{
		"IdleTimeout": 50.0,
		"Cached":      "yes",
	}))
	local := filepath.Join(dir, DefaultLocalFile)
	require.NoError(t, os.WriteFile(local, []byte(`{"IdleTimeout": 25, "Local": "yes"}`), 0o644))

	s := l.Load(ctx, map[string]any{
		"IdleTimeout": 100.0,
		"Override":    "yes",
	})

	require.Equal(t, 25.0, s.Float("IdleTimeout"))
	require.Equal(t, "yes", s.String("Cached"))
	require.Equal(t, "yes", s.String("Local"))
	require.Equal(t, "yes", s.String("Override"))
	// Untouched defaults survive all layers.
	require.True(t, s.Bool(KeyTrace))
}

func TestLoadWithNoLayersYieldsDefaults(t *testing.T) {
	l, _, _ := newTestLoader(t)
	s := l.Load(t.Context(), nil)
	require.Equal(t, Defaults(), s.Snapshot())
}

func TestLoadYAMLLocalFile(t *testing.T) {
	l, _, dir := newTestLoader(t)

	yamlFile := filepath.Join(dir, DefaultLocalFile+".yaml")
	require.NoError(t, os.WriteFile(yamlFile, []byte("PingInterval: 2.5\nTrace: false\n"), 0o644))

	s := l.Load(t.Context(), nil)
	require.Equal(t, 2.5, s.Float(KeyPingInterval))
	require.False(t, s.Bool(KeyTrace))
}

func TestLoadPrefersExactPathOverYAMLVariant(t *testing.T) {
	l, _, dir := newTestLoader(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultLocalFile),
		[]byte(`{"Source": "json"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultLocalFile+".yaml"),
		[]byte("Source: yaml\n"), 0o644))

	s := l.Load(t.Context(), nil)
	require.Equal(t, "json", s.String("Source"))
}

func TestLoadSkipsMalformedLocalFile(t *testing.T) {
	l, _, dir := newTestLoader(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultLocalFile),
		[]byte("{broken"), 0o644))

	s := l.Load(t.Context(), map[string]any{"Override": "kept"})
	require.Equal(t, "kept", s.String("Override"))
	require.True(t, s.Bool(KeyTrace))
}

func TestSaveRoundTripsThroughCache(t *testing.T) {
	l, _, _ := newTestLoader(t)
	ctx := t.Context()

	s := l.Load(ctx, nil)
	s.Merge(map[string]any{"IdleTimeout": 42.0, "Custom": "v"})
	require.NoError(t, l.Save(ctx, s))

	reloaded := l.Load(ctx, nil)
	require.Equal(t, 42.0, reloaded.Float("IdleTimeout"))
	require.Equal(t, "v", reloaded.String("Custom"))
}

func TestLoaderDefaultsLocalPath(t *testing.T) {
	l := NewLoader(LoaderConfig{Log: slog.New(slog.DiscardHandler)})
	require.Equal(t, DefaultLocalFile, l.localPath)
}
