package local

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/pagesync/errors"
	"github.com/teranos/pagesync/logger"
)

// ChangeHandler receives the workspace-relative paths of documents that
// changed during one debounce window, sorted.
type ChangeHandler func(paths []string)

// Watcher reports document changes in a workspace. Directories created
// after Start are added to the watch set.
type Watcher struct {
	ws       *Workspace
	fsw      *fsnotify.Watcher
	handler  ChangeHandler
	debounce time.Duration
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// DefaultDebounce groups bursts of editor writes into one notification.
const DefaultDebounce = 300 * time.Millisecond

// NewWatcher creates a watcher over every document directory of ws.
func NewWatcher(ws *Workspace, handler ChangeHandler, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	w := &Watcher{
		ws:       ws,
		fsw:      fsw,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   logger.Or(log).Named("local-watcher"),
		pending:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	dirs, err := ws.Dirs()
	if err != nil {
		fsw.Close()
		return nil, err
	}
	for _, d := range dirs {
		if err := fsw.Add(ws.Abs(d)); err != nil {
			fsw.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", d)
		}
	}
	return w, nil
}

// SetDebounce changes the debounce window. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Start begins processing events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop stops watching and waits for the event loop to exit. Changes still
// inside the debounce window are dropped.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "failed to close watcher")
	}
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("Workspace watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDir(filepath.Base(ev.Name)) {
				if err := w.fsw.Add(ev.Name); err != nil {
					w.logger.Warnw("Failed to watch new directory", logger.FieldPath, ev.Name, logger.FieldError, err)
				}
			}
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	rel, err := w.ws.Rel(ev.Name)
	if err != nil || !IsDocument(rel) {
		return
	}
	w.logger.Debugw("Document changed", logger.FieldPath, rel, "op", ev.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[rel] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	select {
	case <-w.done:
		return
	default:
	}
	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.handler(paths)
}
