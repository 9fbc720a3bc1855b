// Package judge scores prompt text on a 1-5 quality scale. Two strategies
// sit behind one contract: a remote LLM judge and a deterministic rule
// scorer. The remote path is probed lazily on first use; on probe or call
// failure the judge degrades to the deterministic path for the rest of its
// lifetime (no automatic re-probe, to avoid retry storms against a down
// endpoint). ResetAvailability forces a fresh probe.
package judge

// Evaluation methods
const (
	MethodRemote        = "remote"
	MethodDeterministic = "deterministic"
)

// QualityScore is the result of scoring a single text.
// Score is always in [1,5] and never NaN once returned.
type QualityScore struct {
	Score    float64 `json:"score"`
	Method   string  `json:"method"`
	Feedback string  `json:"feedback,omitempty"`
	Model    string  `json:"model,omitempty"`
}

// Comparison is the result of an A/B comparison.
type Comparison struct {
	Winner   string `json:"winner"` // "A" or "B"
	Feedback string `json:"feedback,omitempty"`
	Method   string `json:"method"`
}

// WinnerA and WinnerB are the only valid Comparison winners. An
// unparseable remote reply defaults to WinnerB; tests assert on that
// exactly, so keep the asymmetry.
const (
	WinnerA = "A"
	WinnerB = "B"
)
