// Package retrieval finds reference records lexically similar to a query
// text. Similarity is word-overlap normalized by query size: deterministic,
// dependency-free, and biased so short queries are not penalized by long
// references.
package retrieval

import (
	"sort"
	"strings"
	"unicode"

	"promptsmith/internal/corpus"
	"promptsmith/internal/logging"
)

// minTokenLength filters out short words; only words longer than this
// participate in overlap scoring.
const minTokenLength = 3

// Match pairs a record with its similarity to the query.
type Match struct {
	Record     corpus.ReferenceRecord
	Similarity float64
}

// Find returns up to maxResults records whose similarity to the query meets
// the threshold, ordered by similarity descending with ties broken by corpus
// order. An empty or ineligible query and an empty corpus both yield an
// empty result, never an error.
func Find(query string, records []corpus.ReferenceRecord, maxResults int, threshold float64) []corpus.ReferenceRecord {
	matches := FindMatches(query, records, maxResults, threshold)
	out := make([]corpus.ReferenceRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Record)
	}
	return out
}

// FindMatches is Find with similarity scores attached.
func FindMatches(query string, records []corpus.ReferenceRecord, maxResults int, threshold float64) []Match {
	queryTokens := Tokenize(query)
	if len(queryTokens) == 0 || len(records) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(records))
	for _, rec := range records {
		recTokens := Tokenize(rec.Title + " " + rec.Body)

		overlap := 0
		for tok := range queryTokens {
			if recTokens[tok] {
				overlap++
			}
		}

		// Normalized by query size, not record size
		similarity := float64(overlap) / float64(len(queryTokens))
		if similarity >= threshold {
			matches = append(matches, Match{Record: rec, Similarity: similarity})
		}
	}

	// Stable sort keeps corpus order among equal scores
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if maxResults >= 0 && len(matches) > maxResults {
		matches = matches[:maxResults]
	}

	logging.RetrievalDebug("Find: %d query tokens, %d/%d records matched", len(queryTokens), len(matches), len(records))
	return matches
}

// Tokenize splits text into the set of lowercase alphanumeric words longer
// than minTokenLength characters.
func Tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)

	var sb strings.Builder
	runes := 0
	flush := func() {
		if runes > minTokenLength {
			tokens[sb.String()] = true
		}
		sb.Reset()
		runes = 0
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(unicode.ToLower(r))
			runes++
		} else {
			flush()
		}
	}
	flush()

	return tokens
}
