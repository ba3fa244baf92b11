// Package watcher keeps the index in step with a directory vault by
// re-indexing files as fsnotify reports changes.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/internal/vault"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Similarity-Index/pkg/metrics"
)

const defaultDebounce = 250 * time.Millisecond

// Source maps filesystem paths to document ids. *vault.FS implements it.
type Source interface {
	BaseDir() string
	ID(path string) (string, bool)
	Matches(id string) bool
	Stat(id string) (vault.DocumentInfo, error)
	Read(ctx context.Context, id string) (string, error)
}

type Indexer interface {
	ProcessDocument(ctx context.Context, id, text string) error
	RemoveDocument(id string) bool
}

// Watcher debounces events per document id: a burst of writes to one file
// leads to a single re-index once the file has been quiet for the debounce
// interval.
type Watcher struct {
	src      Source
	index    Indexer
	debounce time.Duration
	fsw      *fsnotify.Watcher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	applies sync.WaitGroup
}

// New watches every non-hidden directory under src.BaseDir(). Watches are
// registered before New returns, so changes made afterwards are seen even if
// Run has not started yet.
func New(src Source, ix Indexer, cfg config.WatcherConfig, m *metrics.Metrics, logger *slog.Logger) (*Watcher, error) {
	if src.BaseDir() == "" {
		return nil, errors.Join(apperrors.ErrInvalidConfig, errors.New("watcher needs a directory vault"))
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watcher{
		src:      src,
		index:    ix,
		debounce: cfg.Debounce,
		fsw:      fsw,
		metrics:  m,
		logger:   logger.With("component", "watcher"),
		pending:  make(map[string]*time.Timer),
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	if err := w.addRecursive(src.BaseDir()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && hidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run handles events until ctx is cancelled, then waits for in-flight
// re-indexing to finish and releases the fsnotify watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching vault", "root", w.src.BaseDir(), "debounce", w.debounce)
	defer w.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	id, ok := w.src.ID(ev.Name)
	if !ok || hiddenPath(id) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("watching new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if !w.src.Matches(id) {
		return
	}
	w.schedule(ctx, id)
}

func (w *Watcher) schedule(ctx context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[id]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() { w.fire(ctx, id) })
}

func (w *Watcher) fire(ctx context.Context, id string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.pending, id)
	w.applies.Add(1)
	w.mu.Unlock()
	defer w.applies.Done()
	w.apply(ctx, id)
}

// apply re-reads id from the vault. A document that no longer exists is
// removed from the index.
func (w *Watcher) apply(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := w.src.Stat(id); err != nil {
		if apperrors.Is(err, apperrors.ErrDocumentNotFound) {
			removed := w.index.RemoveDocument(id)
			w.count("delete", "ok")
			w.logger.Debug("document removed", "id", id, "was_indexed", removed)
			return
		}
		w.count("upsert", "error")
		w.logger.Warn("stat failed", "id", id, "error", err)
		return
	}
	text, err := w.src.Read(ctx, id)
	if err == nil {
		err = w.index.ProcessDocument(ctx, id, text)
	}
	switch {
	case err == nil:
		w.count("upsert", "ok")
		w.logger.Debug("document re-indexed", "id", id)
	case apperrors.Is(err, apperrors.ErrDocumentNotFound):
		w.index.RemoveDocument(id)
		w.count("delete", "ok")
	case apperrors.Is(err, apperrors.ErrDocumentTooLarge):
		w.count("upsert", "skipped")
	default:
		w.count("upsert", "error")
		w.logger.Warn("re-index failed", "id", id, "error", err)
	}
}

func (w *Watcher) count(op, status string) {
	if w.metrics != nil {
		w.metrics.EventsConsumedTotal.WithLabelValues("fs_"+op, status).Inc()
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	w.closed = true
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()
	w.applies.Wait()
	if err := w.fsw.Close(); err != nil {
		w.logger.Warn("closing fsnotify watcher", "error", err)
	}
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func hiddenPath(id string) bool {
	for _, part := range strings.Split(id, "/") {
		if hidden(part) {
			return true
		}
	}
	return false
}
