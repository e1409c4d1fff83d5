package catalog

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"switchboard/pkg/errors"
	"switchboard/pkg/logger"
)

// Refresher is satisfied by *Loader.
type Refresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}

// Watcher re-runs a refresh when the catalog file changes. It watches the
// parent directory so atomic rename-over saves are seen.
type Watcher struct {
	path      string
	refresher Refresher
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	log       *logger.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching path. debounce <= 0 defaults to 250ms.
func NewWatcher(path string, refresher Refresher, debounce time.Duration, log *logger.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.Component("catalog_watcher")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create file watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:      abs,
		refresher: refresher,
		debounce:  debounce,
		watcher:   fw,
		log:       log.With("path", abs),
	}, nil
}

// Run processes events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stopTimer()
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stopTimer()
				return
			}
			w.log.Warnw("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		res, err := w.refresher.Refresh(ctx)
		if err != nil {
			w.log.Errorw("Catalog reload after file change failed", "error", err)
			return
		}
		w.log.Infow("Catalog reloaded after file change", "models", res.Models)
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Close stops the underlying watcher. Run returns shortly after.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
