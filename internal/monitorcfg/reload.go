package monitorcfg

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads Config from a YAML file whenever it changes on
// disk, swapping the result into a Store. This mirrors the teacher's
// ecosystem peer 99souls-ariadne's HotReloadSystem (engine/internal/runtime/runtime.go),
// simplified: no versioning or A/B testing, just "file changed -> reparse -> swap".
type Watcher struct {
	path    string
	store   *Store
	log     *zap.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a Watcher for path, writing reloaded configs into store.
func NewWatcher(path string, store *Store, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return &Watcher{path: path, store: store, log: log, watcher: fw}, nil
}

// Run blocks, applying reloads until ctx is cancelled. Only recognized
// tunables are ever applied: a malformed file is logged and skipped,
// leaving the previous in-memory Config in effect.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.watcher.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFile(w.path)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous config", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.store.Set(cfg)
			w.log.Info("config reloaded", zap.String("path", w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", zap.Error(err))
		}
	}
}
