package docstore

import (
	"context"
	"fmt"
	"sync"

	"whatsapp-agent/backend/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Indexer keeps the store in sync with a documents directory
type Indexer struct {
	store *Store
	dir   string
	log   *logger.Logger
	mu    sync.Mutex
}

// NewIndexer creates an indexer for dir
func NewIndexer(store *Store, dir string, log *logger.Logger) *Indexer {
	return &Indexer{store: store, dir: dir, log: log}
}

// Reindex replaces the store contents with the current contents of the directory
func (i *Indexer) Reindex(ctx context.Context) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	docs, err := LoadDir(i.dir)
	if err != nil {
		return 0, fmt.Errorf("load documents: %w", err)
	}
	if err := i.store.Clear(ctx); err != nil {
		return 0, err
	}
	n, err := i.store.Add(ctx, docs)
	if err != nil {
		return 0, err
	}
	i.log.Info("documents reindexed", "dir", i.dir, "chunks", n)
	return n, nil
}

// Schedule registers a periodic reindex on the given cron spec and starts the scheduler.
// Stop the returned cron to end the schedule.
func (i *Indexer) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := i.Reindex(ctx); err != nil {
			i.log.LogError(err, "Scheduled reindex failed", "dir", i.dir)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reindex schedule %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
