package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"promptsmith/internal/logging"
)

// Ledger owns every tracked history. The whole collection is loaded
// eagerly at construction and rewritten in full on every mutation, which
// is fine for the expected scale of a few hundred to a few thousand
// tracked identifiers. Single-process, cooperative access is assumed.
type Ledger struct {
	mu        sync.RWMutex
	path      string
	histories map[string]*PromptHistory
	modified  time.Time
}

// snapshot is the on-disk layout.
type snapshot struct {
	LastModified time.Time                 `json:"last_modified"`
	Histories    map[string]*PromptHistory `json:"histories"`
}

// NewLedger opens (or creates) the ledger file at path.
func NewLedger(path string) (*Ledger, error) {
	l := &Ledger{
		path:      path,
		histories: make(map[string]*PromptHistory),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	logging.Ledger("Ledger initialized: path=%s, histories=%d", path, len(l.histories))
	return l, nil
}

// load reads the snapshot file; a missing file starts an empty ledger.
func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse ledger: %w", err)
	}

	if snap.Histories != nil {
		l.histories = snap.Histories
	}
	l.modified = snap.LastModified
	return nil
}

// persist rewrites the whole snapshot. Write-then-rename so a crash mid
// write never leaves a truncated file behind.
func (l *Ledger) persist() error {
	l.modified = time.Now()

	snap := snapshot{
		LastModified: l.modified,
		Histories:    l.histories,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// Init creates version 1 for a new identifier. Idempotent: an existing
// identifier is returned unchanged, its content is NOT overwritten.
func (l *Ledger) Init(id, content string) (*PromptHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.histories[id]; ok {
		return copyHistory(existing), nil
	}

	h := &PromptHistory{
		ID: id,
		Versions: []PromptVersion{{
			Ordinal:   1,
			Content:   content,
			Origin:    OriginManual,
			CreatedAt: time.Now(),
		}},
	}
	recomputeRecommended(h)
	l.histories[id] = h

	if err := l.persist(); err != nil {
		delete(l.histories, id)
		return nil, err
	}

	logging.Ledger("History created: id=%s", id)
	return copyHistory(h), nil
}

// Append adds the next version to an existing history. Returns nil
// (without error) when the identifier is unknown; callers must check.
func (l *Ledger) Append(id, content string, opts AppendOptions) (*PromptVersion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.histories[id]
	if !ok {
		return nil, nil
	}

	origin := opts.Origin
	if origin == "" {
		origin = OriginManual
	}

	v := PromptVersion{
		Ordinal:     len(h.Versions) + 1,
		Content:     content,
		JudgeScore:  copyScore(opts.Score),
		Origin:      origin,
		Inspiration: append([]string(nil), opts.Inspiration...),
		Note:        opts.Note,
		CreatedAt:   time.Now(),
	}
	h.Versions = append(h.Versions, v)
	recomputeRecommended(h)

	if err := l.persist(); err != nil {
		h.Versions = h.Versions[:len(h.Versions)-1]
		recomputeRecommended(h)
		return nil, err
	}

	logging.Ledger("Version appended: id=%s, ordinal=%d, origin=%s", id, v.Ordinal, origin)
	out := v
	return &out, nil
}

// SetScore sets the judge score of one version. Returns false when the
// identifier or ordinal is unknown, or when the version is already scored
// (the score transitions from unset to set exactly once).
func (l *Ledger) SetScore(id string, ordinal int, score float64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.histories[id]
	if !ok {
		return false, nil
	}
	v := h.Version(ordinal)
	if v == nil || v.Scored() {
		return false, nil
	}

	s := score
	v.JudgeScore = &s
	recomputeRecommended(h)

	if err := l.persist(); err != nil {
		v.JudgeScore = nil
		recomputeRecommended(h)
		return false, err
	}

	logging.LedgerDebug("Score set: id=%s, ordinal=%d, score=%.1f", id, ordinal, score)
	return true, nil
}

// Get returns a copy of the history for id.
func (l *Ledger) Get(id string) (*PromptHistory, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.histories[id]
	if !ok {
		return nil, false
	}
	return copyHistory(h), true
}

// List returns all tracked identifiers.
func (l *Ledger) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.histories))
	for id := range l.histories {
		ids = append(ids, id)
	}
	return ids
}

// Delete removes a history irrevocably. Returns false when absent.
func (l *Ledger) Delete(id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.histories[id]
	if !ok {
		return false, nil
	}
	delete(l.histories, id)

	if err := l.persist(); err != nil {
		l.histories[id] = h
		return false, err
	}

	logging.Ledger("History deleted: id=%s", id)
	return true, nil
}

// DidImprove reports whether the two most recent versions are both scored
// and the newest scored strictly higher. Fewer than two versions, or any
// unscored version among them, means false.
func (l *Ledger) DidImprove(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.histories[id]
	if !ok || len(h.Versions) < 2 {
		return false
	}

	last := h.Versions[len(h.Versions)-1]
	prev := h.Versions[len(h.Versions)-2]
	if !last.Scored() || !prev.Scored() {
		return false
	}
	return *last.JudgeScore > *prev.JudgeScore
}

// LastModified returns the timestamp of the last persisted mutation.
func (l *Ledger) LastModified() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.modified
}

// recomputeRecommended restores the recommendation invariant: the ordinal
// of the version with the strictly highest score, ties broken toward the
// higher ordinal, or the latest ordinal when nothing is scored.
func recomputeRecommended(h *PromptHistory) {
	if len(h.Versions) == 0 {
		h.Recommended = 0
		return
	}

	best := -1
	bestScore := 0.0
	for i := range h.Versions {
		v := &h.Versions[i]
		if v.JudgeScore == nil {
			continue
		}
		if best == -1 || *v.JudgeScore >= bestScore {
			best = i
			bestScore = *v.JudgeScore
		}
	}

	if best == -1 {
		h.Recommended = h.Versions[len(h.Versions)-1].Ordinal
		return
	}
	h.Recommended = h.Versions[best].Ordinal
}

func copyScore(s *float64) *float64 {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyHistory(h *PromptHistory) *PromptHistory {
	out := &PromptHistory{
		ID:          h.ID,
		Recommended: h.Recommended,
		Versions:    make([]PromptVersion, len(h.Versions)),
	}
	for i, v := range h.Versions {
		cv := v
		cv.JudgeScore = copyScore(v.JudgeScore)
		cv.Inspiration = append([]string(nil), v.Inspiration...)
		out.Versions[i] = cv
	}
	return out
}
