package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Missiu/lsky-uploader/internal/vault"
)

const (
	// watcherDebounceInterval is how often the watcher checks for pending
	// filesystem events to batch rapid editor writes into a single
	// upload run per note.
	watcherDebounceInterval = 500 * time.Millisecond

	// watcherSettleDelay is how long a note must be quiet before its
	// pending event is acted on.
	watcherSettleDelay = 300 * time.Millisecond
)

// Watcher monitors the vault for modified notes and uploads their local
// image references automatically.
type Watcher struct {
	store    *vault.Store
	uploader *Uploader
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a vault watcher that feeds modified notes to the
// given uploader.
func NewWatcher(store *vault.Store, uploader *Uploader, logger *slog.Logger) *Watcher {
	return &Watcher{
		store:    store,
		uploader: uploader,
		logger:   logger,
	}
}

// Watch blocks until the context is cancelled, uploading local image
// references of notes as they change. Directories are watched
// recursively; newly created directories are picked up on the fly.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	if err := w.addRecursive(w.store.Root()); err != nil {
		return fmt.Errorf("watching vault: %w", err)
	}

	w.logger.Info("vault watcher started", slog.String("dir", w.store.Root()))

	// Debounce: batch rapid writes into a single upload per note.
	pending := make(map[string]time.Time)

	ticker := time.NewTicker(watcherDebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed unexpectedly")
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				// If a new directory was created, watch it recursively.
				// Use Lstat to avoid following symlinks that could
				// point outside the vault.
				if event.Has(fsnotify.Create) {
					info, statErr := os.Lstat(event.Name)
					if statErr == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
						_ = w.addRecursive(event.Name)
						continue
					}
				}

				if strings.EqualFold(filepath.Ext(event.Name), ".md") {
					pending[event.Name] = time.Now()
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(pending, event.Name)
				_ = watcher.Remove(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()

			for absPath, t := range pending {
				if now.Sub(t) < watcherSettleDelay {
					continue
				}

				delete(pending, absPath)
				w.handleNote(ctx, absPath)
			}
		}
	}
}

func (w *Watcher) handleNote(ctx context.Context, absPath string) {
	relPath, err := filepath.Rel(w.store.Root(), absPath)
	if err != nil {
		w.logger.Warn("computing relative path", slog.String("error", err.Error()))
		return
	}

	relPath = vault.NormalizePath(relPath)

	text, err := w.store.ReadNote(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}

		w.logger.Warn("reading note", slog.String("note", relPath), slog.String("error", err.Error()))

		return
	}

	if !vault.SyncEnabled(text) {
		return
	}

	report, err := w.uploader.Run(ctx, relPath)
	if err != nil {
		w.logger.Warn("auto-upload failed", slog.String("note", relPath), slog.String("error", err.Error()))
		return
	}

	if report.Attempted > 0 {
		w.logger.Info("auto-upload",
			slog.String("note", relPath),
			slog.Int("attempted", report.Attempted),
			slog.Int("succeeded", report.Succeeded),
		)
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if w.shouldIgnore(path) && path != dir {
			return filepath.SkipDir
		}

		// Skip symlinked directories to prevent watching outside the
		// vault.
		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}

	if strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp") {
		return true
	}

	return false
}
