package settings

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchReloadsChangedLocalFile(t *testing.T) {
	l, _, dir := newTestLoader(t)
	ctx := t.Context()

	s := l.Load(ctx, nil)

	var mu sync.Mutex
	var changed map[string]any
	_, err := Watch(ctx, l, s, func(m map[string]any) {
		mu.Lock()
		changed = m
		mu.Unlock()
	})
	require.NoError(t, err)

	local := filepath.Join(dir, DefaultLocalFile)
	require.NoError(t, os.WriteFile(local, []byte(`{"IdleTimeout": 7}`), 0o644))

	require.Eventually(t, func() bool {
		return s.Float(KeyIdleTimeout) == 7.0
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 7.0, changed["IdleTimeout"])
}

func TestWatchPicksUpAtomicReplace(t *testing.T) {
	l, _, dir := newTestLoader(t)
	ctx := t.Context()

	local := filepath.Join(dir, DefaultLocalFile)
	require.NoError(t, os.WriteFile(local, []byte(`{"Rev": 1}`), 0o644))
	s := l.Load(ctx, nil)
	require.Equal(t, 1.0, s.Float("Rev"))

	_, err := Watch(ctx, l, s, nil)
	require.NoError(t, err)

	// Editor-style save: write a sibling, then rename over the target.
	tmp := local + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(`{"Rev": 2}`), 0o644))
	require.NoError(t, os.Rename(tmp, local))

	require.Eventually(t, func() bool {
		return s.Float("Rev") == 2.0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatchIgnoresUnrelatedFiles(t *testing.T) {
	l, _, dir := newTestLoader(t)
	ctx := t.Context()

	s := l.Load(ctx, nil)
	fired := make(chan struct{}, 8)
	_, err := Watch(ctx, l, s, func(map[string]any) { fired <- struct{}{} })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("reload fired for an unrelated file")
	case <-time.After(300 * time.Millisecond):
	}
}
