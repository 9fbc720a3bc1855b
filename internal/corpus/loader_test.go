package corpus

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedFetcher struct {
	records []ReferenceRecord
	err     error
	calls   int
}

func (f *scriptedFetcher) Fetch(ctx context.Context) ([]ReferenceRecord, error) {
	f.calls++
	return f.records, f.err
}

func TestLoaderServesFreshCache(t *testing.T) {
	fetcher := &scriptedFetcher{records: []ReferenceRecord{{Origin: "a", Title: "t", Body: "b"}}}
	l := NewLoader(fetcher, nil, time.Hour)

	first, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, fetcher.calls)

	// Second Load inside the staleness window hits the cache.
	second, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 1, fetcher.calls)
}

func TestLoaderPrefersStoreOverFetch(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Upsert(ReferenceRecord{Origin: "persisted", Title: "t", Body: "b"}))

	fetcher := &scriptedFetcher{records: []ReferenceRecord{{Origin: "fetched", Title: "t", Body: "b"}}}
	l := NewLoader(fetcher, store, time.Hour)

	records, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "persisted", records[0].Origin)
	assert.Equal(t, 0, fetcher.calls)
}

func TestLoaderRefreshPersists(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "corpus.db"))
	require.NoError(t, err)
	defer store.Close()

	fetcher := &scriptedFetcher{records: []ReferenceRecord{
		{Origin: "a", Title: "t", Body: "b"},
		{Origin: "b", Title: "t", Body: "b"},
	}}
	l := NewLoader(fetcher, store, time.Hour)

	records, err := l.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLoaderRefreshWithoutFetcher(t *testing.T) {
	l := NewLoader(nil, nil, time.Hour)
	_, err := l.Refresh(context.Background())
	assert.Error(t, err)
}

func TestLoaderRefreshFetchFailure(t *testing.T) {
	fetcher := &scriptedFetcher{err: errors.New("upstream down")}
	l := NewLoader(fetcher, nil, time.Hour)

	_, err := l.Refresh(context.Background())
	assert.Error(t, err)
}

func TestLoaderInjectBypassesEverything(t *testing.T) {
	fetcher := &scriptedFetcher{err: errors.New("should never be called")}
	l := NewLoader(fetcher, nil, time.Hour)

	l.Inject([]ReferenceRecord{{Origin: "injected", Title: "t", Body: "b"}})

	records, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "injected", records[0].Origin)
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 1, l.CachedCount())
}

func TestLoaderMarkStaleForcesReload(t *testing.T) {
	fetcher := &scriptedFetcher{records: []ReferenceRecord{{Origin: "a", Title: "t", Body: "b"}}}
	l := NewLoader(fetcher, nil, time.Hour)

	_, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	l.MarkStale()
	_, err = l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestLoaderWatchInvalidatesOnSeedChange(t *testing.T) {
	dir := t.TempDir()
	fetcher := &scriptedFetcher{records: []ReferenceRecord{{Origin: "a", Title: "t", Body: "b"}}}
	l := NewLoader(fetcher, nil, time.Hour)
	require.NoError(t, l.Watch(dir))
	defer l.Close()

	_, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.calls)

	writeSeed(t, dir, "new.yaml", "- title: t\n  body: b\n")

	// The watcher invalidates asynchronously.
	deadline := time.After(2 * time.Second)
	for {
		if _, err := l.Load(context.Background()); err != nil {
			t.Fatal(err)
		}
		if fetcher.calls > 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("seed change did not invalidate the cache")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
