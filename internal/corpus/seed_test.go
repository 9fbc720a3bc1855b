package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSeedFetcherReadsYAMLFiles(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "style.yaml", `
- origin: "guide:structure"
  title: "Structuring prompts"
  body: "Use headings and numbered steps."
  category: "style"
  tags: ["structure"]
- title: "Untitled origin"
  body: "Gets a fallback origin."
`)
	writeSeed(t, dir, "notes.txt", "not yaml, ignored")

	records, err := NewSeedFetcher(dir).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	if records[0].Origin != "guide:structure" {
		t.Errorf("explicit origin lost: %q", records[0].Origin)
	}
	if records[1].Origin != "seed:style.yaml#1" {
		t.Errorf("fallback origin = %q, want seed:style.yaml#1", records[1].Origin)
	}
	for _, r := range records {
		if r.FetchedAt.IsZero() {
			t.Errorf("FetchedAt not filled for %s", r.Origin)
		}
	}
}

func TestSeedFetcherSkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "bad.yaml", "{{{ not yaml")
	writeSeed(t, dir, "good.yaml", `
- origin: "ok"
  title: "t"
  body: "b"
`)

	records, err := NewSeedFetcher(dir).Fetch(context.Background())
	if err != nil {
		t.Fatalf("bad file should be skipped, not fatal: %v", err)
	}
	if len(records) != 1 || records[0].Origin != "ok" {
		t.Errorf("expected only the good record, got %v", records)
	}
}

func TestSeedFetcherMissingDirectory(t *testing.T) {
	if _, err := NewSeedFetcher("/nonexistent/seed/dir").Fetch(context.Background()); err == nil {
		t.Error("missing directory should error")
	}
	if _, err := NewSeedFetcher("").Fetch(context.Background()); err == nil {
		t.Error("unconfigured directory should error")
	}
}
