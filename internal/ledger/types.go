// Package ledger keeps an append-only, ranked version history per tracked
// prompt. Every history maintains a recommendation invariant: the
// recommended ordinal always points at the version with the highest judge
// score, ties broken toward the most recent, falling back to the latest
// version when nothing is scored yet.
package ledger

import "time"

// Version origins
const (
	OriginManual       = "manual"
	OriginAutoOptimize = "auto-optimize"
	OriginImport       = "import"
)

// PromptVersion is one immutable snapshot in a history. Content and
// Ordinal never change after append; JudgeScore is the one field that may
// transition, once, from unset to set.
type PromptVersion struct {
	Ordinal     int       `json:"ordinal"`
	Content     string    `json:"content"`
	JudgeScore  *float64  `json:"judge_score,omitempty"`
	Origin      string    `json:"origin"`
	Inspiration []string  `json:"inspiration,omitempty"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Scored reports whether the version has a judge score.
func (v *PromptVersion) Scored() bool {
	return v.JudgeScore != nil
}

// PromptHistory is the ordered version sequence for one tracked prompt.
// Versions are ascending by ordinal, 1-based and gapless.
type PromptHistory struct {
	ID          string          `json:"id"`
	Versions    []PromptVersion `json:"versions"`
	Recommended int             `json:"recommended_version"`
}

// Latest returns the most recent version, or nil for an empty history.
func (h *PromptHistory) Latest() *PromptVersion {
	if len(h.Versions) == 0 {
		return nil
	}
	return &h.Versions[len(h.Versions)-1]
}

// Version returns the version with the given ordinal, or nil.
func (h *PromptHistory) Version(ordinal int) *PromptVersion {
	if ordinal < 1 || ordinal > len(h.Versions) {
		return nil
	}
	return &h.Versions[ordinal-1]
}

// AppendOptions carries the optional fields of a version append.
type AppendOptions struct {
	Origin      string
	Score       *float64
	Inspiration []string
	Note        string
}
