package docstore

import (
	"context"
	"fmt"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/fsnotify/fsnotify"
)

// Watcher triggers a reindex whenever a supported file in the documents directory changes
type Watcher struct {
	indexer *Indexer
	log     *logger.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher on the indexer's directory
func NewWatcher(indexer *Indexer, log *logger.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{indexer: indexer, log: log, watcher: w}, nil
}

// Start blocks until ctx is cancelled
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.indexer.dir); err != nil {
		return fmt.Errorf("watch path %s: %w", w.indexer.dir, err)
	}
	w.log.Info("document watcher started", "dir", w.indexer.dir)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("document watcher stopped")
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("document watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !Supported(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	w.log.Debug("document changed", "path", event.Name, "op", event.Op.String())
	if _, err := w.indexer.Reindex(ctx); err != nil {
		w.log.LogError(err, "Reindex after change failed", "path", event.Name)
	}
}
