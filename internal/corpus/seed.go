package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"promptsmith/internal/logging"

	"gopkg.in/yaml.v3"
)

// Fetcher produces a fresh batch of reference records. The network
// fetch+parse collaborator lives behind this interface; the core only
// consumes the resulting list.
type Fetcher interface {
	Fetch(ctx context.Context) ([]ReferenceRecord, error)
}

// SeedFetcher loads reference records from YAML seed files in a directory.
// This is the offline/test path: each *.yaml file holds a list of records.
type SeedFetcher struct {
	dir string
}

// NewSeedFetcher creates a fetcher over the given seed directory.
func NewSeedFetcher(dir string) *SeedFetcher {
	return &SeedFetcher{dir: dir}
}

// Fetch reads every YAML file in the seed directory. Unparseable files are
// skipped with a warning; they never fail the whole fetch.
func (f *SeedFetcher) Fetch(ctx context.Context) ([]ReferenceRecord, error) {
	if f.dir == "" {
		return nil, fmt.Errorf("seed directory not configured")
	}

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory: %w", err)
	}

	now := time.Now()
	var records []ReferenceRecord

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(f.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logging.Get(logging.CategoryCorpus).Warn("Failed to read seed file %s: %v", path, err)
			continue
		}

		var batch []ReferenceRecord
		if err := yaml.Unmarshal(data, &batch); err != nil {
			logging.Get(logging.CategoryCorpus).Warn("Failed to parse seed file %s: %v", path, err)
			continue
		}

		for i := range batch {
			if batch[i].FetchedAt.IsZero() {
				batch[i].FetchedAt = now
			}
			if batch[i].Origin == "" {
				// Stable fallback origin derived from file position
				batch[i].Origin = fmt.Sprintf("seed:%s#%d", name, i)
			}
		}
		records = append(records, batch...)
	}

	logging.Corpus("Seed fetch complete: %d records from %s", len(records), f.dir)
	return records, nil
}
