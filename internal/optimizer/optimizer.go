package optimizer

import (
	"context"
	"fmt"

	"promptsmith/internal/corpus"
	"promptsmith/internal/judge"
	"promptsmith/internal/ledger"
	"promptsmith/internal/logging"
	"promptsmith/internal/retrieval"
	"promptsmith/internal/transform"
)

// ===== TYPES =====

// Result holds the outcome of a single optimization attempt. The original
// text is always preserved alongside the candidate so callers can decide
// what to do with a non-improvement.
type Result struct {
	Original       string   `json:"original"`
	Candidate      string   `json:"candidate"`
	OriginalScore  float64  `json:"original_score"`
	CandidateScore float64  `json:"candidate_score"`
	Improved       bool     `json:"improved"`
	Feedback       string   `json:"feedback"`
	Inspiration    []string `json:"inspiration,omitempty"`
	AppliedRules   []string `json:"applied_rules,omitempty"`
	Method         string   `json:"method"`
}

// ReferenceSource supplies the reference corpus the retriever draws from.
// A load failure degrades to an empty corpus rather than aborting the run.
type ReferenceSource interface {
	Load(ctx context.Context) ([]corpus.ReferenceRecord, error)
}

// Config tunes retrieval behavior for the optimizer.
type Config struct {
	MaxReferences       int
	SimilarityThreshold float64
	// CompareMargin is the absolute score gap below which the scalar
	// verdict is considered too close to call and a head-to-head
	// comparison decides instead.
	CompareMargin float64
}

// DefaultConfig returns the standard optimizer tuning.
func DefaultConfig() Config {
	return Config{
		MaxReferences:       5,
		SimilarityThreshold: 0.3,
		CompareMargin:       0.5,
	}
}

// ===== OPTIMIZER =====

// Optimizer runs the retrieve-transform-judge loop over a single prompt
// text.
type Optimizer struct {
	cfg         Config
	source      ReferenceSource
	transformer *transform.Transformer
	judge       *judge.Judge
}

// NewOptimizer creates an optimizer. source may be nil, in which case the
// transformer runs without reference guidance.
func NewOptimizer(cfg Config, source ReferenceSource, j *judge.Judge) *Optimizer {
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = 5
	}
	if cfg.CompareMargin <= 0 {
		cfg.CompareMargin = 0.5
	}
	return &Optimizer{
		cfg:         cfg,
		source:      source,
		transformer: transform.NewTransformer(),
		judge:       j,
	}
}

// Optimize retrieves similar references, applies the transformation rules,
// and judges original against candidate.
func (o *Optimizer) Optimize(ctx context.Context, text string) (*Result, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot optimize empty text")
	}

	timer := logging.StartTimer(logging.CategoryOptimize, "Optimize")
	defer timer.Stop()

	matches := o.gatherReferences(ctx, text)
	refs := make([]corpus.ReferenceRecord, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, m.Record)
	}

	candidate := o.transformer.Apply(text, refs)
	applied := o.transformer.AppliedRules(text)

	origScore := o.judge.Score(ctx, text)
	candScore := o.judge.Score(ctx, candidate)

	result := &Result{
		Original:       text,
		Candidate:      candidate,
		OriginalScore:  origScore.Score,
		CandidateScore: candScore.Score,
		Feedback:       candScore.Feedback,
		AppliedRules:   applied,
		Method:         candScore.Method,
	}
	for _, m := range matches {
		result.Inspiration = append(result.Inspiration, m.Record.Origin)
	}

	result.Improved = candScore.Score > origScore.Score

	// When the scalar verdict is too close to call and the text actually
	// changed, a head-to-head comparison decides. Identical texts are
	// never an improvement regardless of score noise.
	diff := candScore.Score - origScore.Score
	if diff < 0 {
		diff = -diff
	}
	if diff < o.cfg.CompareMargin && candidate != text {
		cmpResult := o.judge.Compare(ctx, text, candidate)
		result.Improved = cmpResult.Winner == judge.WinnerB
		result.Method = cmpResult.Method
		if cmpResult.Feedback != "" {
			result.Feedback = cmpResult.Feedback
		}
	}
	if candidate == text {
		result.Improved = false
	}

	logging.Optimize("Optimize complete: improved=%v, original=%.1f, candidate=%.1f, rules=%d, refs=%d",
		result.Improved, result.OriginalScore, result.CandidateScore, len(applied), len(refs))
	return result, nil
}

// OptimizeAndVersion runs Optimize and, when the candidate improved,
// records it as a new auto-optimized version in the ledger. The original
// version's score is backfilled when it is still unscored and its content
// matches the supplied text.
func (o *Optimizer) OptimizeAndVersion(ctx context.Context, id, text string, led *ledger.Ledger) (*Result, error) {
	result, err := o.Optimize(ctx, text)
	if err != nil {
		return nil, err
	}

	if !result.Improved {
		return result, nil
	}

	candScore := result.CandidateScore
	v, err := led.Append(id, result.Candidate, ledger.AppendOptions{
		Origin:      ledger.OriginAutoOptimize,
		Score:       &candScore,
		Inspiration: result.Inspiration,
		Note:        result.Feedback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record optimized version: %w", err)
	}
	if v == nil {
		// Untracked identifier: the improvement still stands, it just has
		// nowhere to live.
		logging.Optimize("Improvement for untracked id %s not recorded", id)
		return result, nil
	}

	o.backfillScore(id, text, result.OriginalScore, led)
	return result, nil
}

// backfillScore attaches the freshly judged score to whichever existing
// version carries the supplied text, if that version is still unscored.
func (o *Optimizer) backfillScore(id, text string, sc float64, led *ledger.Ledger) {
	h, ok := led.Get(id)
	if !ok {
		return
	}
	for i := len(h.Versions) - 1; i >= 0; i-- {
		v := h.Versions[i]
		if v.Content != text {
			continue
		}
		if v.JudgeScore == nil {
			if _, err := led.SetScore(id, v.Ordinal, sc); err != nil {
				logging.Optimize("Failed to backfill score for %s v%d: %v", id, v.Ordinal, err)
			}
		}
		return
	}
}

// gatherReferences loads the corpus and retrieves the most similar
// records. Corpus failures degrade to an empty reference set.
func (o *Optimizer) gatherReferences(ctx context.Context, text string) []retrieval.Match {
	if o.source == nil {
		return nil
	}
	records, err := o.source.Load(ctx)
	if err != nil {
		logging.Optimize("Reference corpus unavailable, proceeding without guidance: %v", err)
		return nil
	}
	return retrieval.FindMatches(text, records, o.cfg.MaxReferences, o.cfg.SimilarityThreshold)
}
