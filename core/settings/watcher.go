package settings

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the local override file when it changes on disk and
// merges it into the live settings. Editors replace files rather than
// rewrite them, so create/rename events count as changes too.
type Watcher struct {
	loader   *Loader
	settings *Settings
	onChange func(changed map[string]any)
	log      *slog.Logger

	fsw *fsnotify.Watcher
}

// Watch starts watching the loader's local override file. onChange (may be
// nil) runs after each successful merge. Stops when ctx is cancelled.
func Watch(ctx context.Context, l *Loader, s *Settings, onChange func(changed map[string]any)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		loader:   l,
		settings: s,
		onChange: onChange,
		log:      l.log,
		fsw:      fsw,
	}

	// Watch the directory: the file itself may not exist yet, and replace
	// writes swap the inode out from under a file watch.
	dir := filepath.Dir(l.localPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.fsw.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			// Debounce bursts of events from a single save.
			pending = time.After(100 * time.Millisecond)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("settings watcher error", slog.Any("error", err))
		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(w.loader.localPath)
	name := filepath.Base(ev.Name)
	return name == base || name == base+".yaml" || name == base+".yml"
}

func (w *Watcher) reload() {
	local, err := w.loader.loadLocal()
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("cannot reload local settings", slog.Any("error", err))
		}
		return
	}
	w.settings.Merge(local)
	w.log.Info("local settings reloaded", slog.String("file", w.loader.localPath))
	if w.onChange != nil {
		w.onChange(local)
	}
}

