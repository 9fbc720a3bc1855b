// Package corpus manages the reference corpus: externally fetched example
// prompts that seed the optimizer with inspiration. Records are persisted in
// a local SQLite store and served through an in-memory cache with a
// time-based staleness window.
package corpus

import "time"

// ReferenceRecord is an externally supplied example text used as
// optimization inspiration. The core never mutates records.
type ReferenceRecord struct {
	Title     string    `json:"title" yaml:"title"`
	Body      string    `json:"body" yaml:"body"`
	Origin    string    `json:"origin" yaml:"origin"`
	Category  string    `json:"category" yaml:"category"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at,omitempty"`
}
