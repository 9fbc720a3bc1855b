package judge

import (
	"context"
	"fmt"
	"sync"

	"promptsmith/internal/logging"
)

// availability is the judge-owned remote reachability state. It starts
// unknown, is set once by the first probe, and is never retried
// automatically once down; ResetAvailability forces a fresh probe.
type availability int

const (
	availabilityUnknown availability = iota
	availabilityUp
	availabilityDown
)

// Judge scores text through the remote path when it is reachable and the
// deterministic scorer otherwise. A Judge with a nil client is purely
// deterministic.
type Judge struct {
	mu     sync.Mutex
	client LLMClient
	model  string
	avail  availability
}

// NewJudge creates a judge over the given client. Model is recorded for
// attribution only; pass "" when the client is nil.
func NewJudge(client LLMClient, model string) *Judge {
	return &Judge{
		client: client,
		model:  model,
	}
}

// Score evaluates text and returns a QualityScore in [1,5].
func (j *Judge) Score(ctx context.Context, text string) QualityScore {
	timer := logging.StartTimer(logging.CategoryJudge, "Judge.Score")
	defer timer.Stop()

	if !j.remoteAvailable(ctx) {
		return HeuristicScore(text)
	}

	reply, err := j.client.CompleteWithSystem(ctx, scoreSystemPrompt, buildScoreSubject(text))
	if err != nil {
		logging.Get(logging.CategoryJudge).Warn("Remote scoring failed, degrading to deterministic: %v", err)
		j.markDown()
		return HeuristicScore(text)
	}

	score, feedback := ParseScoreReply(reply)
	logging.JudgeDebug("Remote score: %.1f", score)

	return QualityScore{
		Score:    score,
		Method:   MethodRemote,
		Feedback: feedback,
		Model:    j.model,
	}
}

// Compare judges which of two texts is the better prompt. Callers invoke
// this only when raw scores are too close to decide outright.
func (j *Judge) Compare(ctx context.Context, textA, textB string) Comparison {
	timer := logging.StartTimer(logging.CategoryJudge, "Judge.Compare")
	defer timer.Stop()

	if !j.remoteAvailable(ctx) {
		return deterministicCompare(textA, textB)
	}

	reply, err := j.client.CompleteWithSystem(ctx, compareSystemPrompt, buildCompareSubject(textA, textB))
	if err != nil {
		logging.Get(logging.CategoryJudge).Warn("Remote comparison failed, degrading to deterministic: %v", err)
		j.markDown()
		return deterministicCompare(textA, textB)
	}

	winner, feedback := ParseCompareReply(reply)
	logging.JudgeDebug("Remote comparison: winner=%s", winner)

	return Comparison{
		Winner:   winner,
		Feedback: feedback,
		Method:   MethodRemote,
	}
}

// ResetAvailability discards the cached probe result so the next call
// probes the remote endpoint again.
func (j *Judge) ResetAvailability() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.avail = availabilityUnknown
}

// RemoteAvailable reports the cached availability without probing.
func (j *Judge) RemoteAvailable() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.avail == availabilityUp
}

// remoteAvailable probes the endpoint on first use and caches the result.
func (j *Judge) remoteAvailable(ctx context.Context) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.client == nil {
		return false
	}

	switch j.avail {
	case availabilityUp:
		return true
	case availabilityDown:
		return false
	}

	// First use: one probe, cached for the judge's lifetime
	_, err := j.client.Complete(ctx, probePrompt)
	if err != nil {
		logging.Judge("Remote judge unreachable, using deterministic scorer: %v", err)
		j.avail = availabilityDown
		return false
	}

	logging.Judge("Remote judge available: model=%s", j.model)
	j.avail = availabilityUp
	return true
}

func (j *Judge) markDown() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.avail = availabilityDown
}

// deterministicCompare decides A/B from heuristic scores. Ties go to B,
// matching the remote path's parse default.
func deterministicCompare(textA, textB string) Comparison {
	scoreA := HeuristicScore(textA)
	scoreB := HeuristicScore(textB)

	winner := WinnerB
	if scoreA.Score > scoreB.Score {
		winner = WinnerA
	}

	return Comparison{
		Winner:   winner,
		Feedback: fmt.Sprintf("Heuristic comparison: A=%.1f, B=%.1f", scoreA.Score, scoreB.Score),
		Method:   MethodDeterministic,
	}
}

// buildScoreSubject wraps the subject text for scoring.
func buildScoreSubject(text string) string {
	return fmt.Sprintf("Evaluate this prompt:\n\n---\n%s\n---", text)
}

// buildCompareSubject wraps two subjects for comparison.
func buildCompareSubject(textA, textB string) string {
	return fmt.Sprintf("Prompt A:\n\n---\n%s\n---\n\nPrompt B:\n\n---\n%s\n---", textA, textB)
}

const probePrompt = `Reply with the single word: ok`

// scoreSystemPrompt is the fixed evaluation rubric for scoring.
const scoreSystemPrompt = `You are an expert prompt engineer evaluating prompt quality.

Rate the prompt on a scale of 1 to 5 considering:
- Clarity: is the request unambiguous?
- Specificity: are the details concrete enough to act on?
- Structure: is the prompt organized and easy to follow?
- Completeness: does it cover constraints, format, and edge cases?
- Effectiveness: would a capable model produce the desired result?

Give brief feedback, then end your reply with the verdict on its own line:
[RESULT] <integer 1-5>`

// compareSystemPrompt is the fixed rubric for A/B comparison.
const compareSystemPrompt = `You are an expert prompt engineer comparing two prompts for the same task.

Decide which prompt would produce better results, considering clarity,
specificity, structure, completeness, and effectiveness.

Give brief feedback, then end your reply with the verdict on its own line:
[RESULT] <A or B>`
