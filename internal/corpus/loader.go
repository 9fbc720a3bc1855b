package corpus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"promptsmith/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Loader serves the reference corpus through an in-memory cache with a
// time-based staleness window. A fresh cache answers Load directly; a stale
// one falls back to the store, and Refresh drives the fetcher end to end.
type Loader struct {
	mu sync.RWMutex

	fetcher Fetcher
	store   *Store

	// Cache
	records   []ReferenceRecord
	cachedAt  time.Time
	staleness time.Duration
	injected  bool

	// Seed directory watcher
	watcher *fsnotify.Watcher
	watchCh chan struct{}
}

// NewLoader creates a loader over the given fetcher and store.
// Either may be nil: a nil fetcher disables Refresh, a nil store disables
// persistence (cache-only operation for tests).
func NewLoader(fetcher Fetcher, store *Store, staleness time.Duration) *Loader {
	if staleness <= 0 {
		staleness = time.Hour
	}
	return &Loader{
		fetcher:   fetcher,
		store:     store,
		staleness: staleness,
	}
}

// Load returns the current corpus. Order of preference: fresh cache,
// persisted store contents, forced refresh. Injected records never expire.
func (l *Loader) Load(ctx context.Context) ([]ReferenceRecord, error) {
	l.mu.RLock()
	if l.records != nil && (l.injected || time.Since(l.cachedAt) < l.staleness) {
		out := append([]ReferenceRecord(nil), l.records...)
		l.mu.RUnlock()
		return out, nil
	}
	l.mu.RUnlock()

	// Try the store before going to the network
	if l.store != nil {
		records, err := l.store.List()
		if err == nil && len(records) > 0 {
			l.setCache(records, false)
			return append([]ReferenceRecord(nil), records...), nil
		}
	}

	return l.Refresh(ctx)
}

// Refresh forces a fetch, persists the result, and repopulates the cache.
func (l *Loader) Refresh(ctx context.Context) ([]ReferenceRecord, error) {
	if l.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}

	timer := logging.StartTimer(logging.CategoryCorpus, "Loader.Refresh")
	defer timer.Stop()

	records, err := l.fetcher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("corpus fetch failed: %w", err)
	}

	if l.store != nil {
		if err := l.store.UpsertBatch(records); err != nil {
			// Persistence failure degrades to cache-only; the cycle goes on
			logging.Get(logging.CategoryCorpus).Warn("Failed to persist corpus: %v", err)
		}
	}

	l.setCache(records, false)
	logging.Corpus("Corpus refreshed: %d records", len(records))
	return append([]ReferenceRecord(nil), records...), nil
}

// Inject replaces the cache with a pre-fetched corpus, bypassing both the
// fetcher and the store. Used for tests and offline operation.
func (l *Loader) Inject(records []ReferenceRecord) {
	l.setCache(records, true)
}

// MarkStale invalidates the cache so the next Load goes past it.
func (l *Loader) MarkStale() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cachedAt = time.Time{}
	l.injected = false
}

// CachedCount returns the number of cached records.
func (l *Loader) CachedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func (l *Loader) setCache(records []ReferenceRecord, injected bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append([]ReferenceRecord(nil), records...)
	l.cachedAt = time.Now()
	l.injected = injected
}

// Watch invalidates the cache whenever seed files under dir change.
// Stops when Close is called.
func (l *Loader) Watch(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	l.mu.Lock()
	l.watcher = w
	l.watchCh = make(chan struct{})
	done := l.watchCh
	l.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					logging.CorpusDebug("Seed change detected: %s", ev.Name)
					l.MarkStale()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	logging.Corpus("Watching seed directory: %s", dir)
	return nil
}

// Close stops the seed watcher if one is running.
func (l *Loader) Close() error {
	l.mu.Lock()
	w := l.watcher
	done := l.watchCh
	l.watcher = nil
	l.watchCh = nil
	l.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.Close()
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
	return err
}
