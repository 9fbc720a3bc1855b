package judge

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Additive increments for the deterministic scorer. The base plus every
// bonus lands well above 5, so the ceiling clamp does real work on rich
// prompts; the floor is only ever reached by the short-text penalty.
const (
	heuristicBase = 1.5

	bonusLen200  = 0.4
	bonusLen500  = 0.3
	bonusLen1000 = 0.3

	bonusStructure   = 0.5
	bonusCodeFence   = 0.5
	bonusSequential  = 0.4
	bonusConstraints = 0.4
	bonusExamples    = 0.3
	bonusOutput      = 0.3
	bonusRole        = 0.4
	bonusPlaceholder = 0.2
	bonusEdgeCases   = 0.3

	penaltyShort    = 0.5
	shortTextLength = 50
)

var (
	structureRe   = regexp.MustCompile(`(?m)^\s*(#|\*\*|\d+[.)])`)
	placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}|\{[a-zA-Z_][a-zA-Z0-9_]*\}`)
	numberedRe    = regexp.MustCompile(`(?m)^\s*\d+[.)]`)
)

// HeuristicScore scores text with the deterministic rule-weighted scorer.
// Pure: identical input always yields an identical score.
func HeuristicScore(text string) QualityScore {
	score := heuristicBase
	var notes []string

	if len(text) > 200 {
		score += bonusLen200
	}
	if len(text) > 500 {
		score += bonusLen500
	}
	if len(text) > 1000 {
		score += bonusLen1000
	}

	if structureRe.MatchString(text) {
		score += bonusStructure
		notes = append(notes, "structured formatting")
	}
	if strings.Contains(text, "```") {
		score += bonusCodeFence
		notes = append(notes, "code blocks")
	}
	if hasAny(text, "step", "first", "then", "finally") || numberedRe.MatchString(text) {
		score += bonusSequential
		notes = append(notes, "sequential instructions")
	}
	if hasAny(text, "must", "should", "ensure", "always", "never", "required") {
		score += bonusConstraints
		notes = append(notes, "explicit constraints")
	}
	if hasAny(text, "example", "for instance", "e.g.", "such as") {
		score += bonusExamples
		notes = append(notes, "examples")
	}
	if hasAny(text, "output", "format", "return") {
		score += bonusOutput
		notes = append(notes, "output guidance")
	}
	if hasAny(text, "you are", "act as", "your role", "as a") {
		score += bonusRole
		notes = append(notes, "role definition")
	}
	if placeholderRe.MatchString(text) {
		score += bonusPlaceholder
		notes = append(notes, "template variables")
	}
	if hasAny(text, "edge case", "edge-case", "corner case", "boundary") {
		score += bonusEdgeCases
		notes = append(notes, "edge case handling")
	}

	if len(text) < shortTextLength {
		score -= penaltyShort
		notes = append(notes, "very short")
	}

	// One decimal, ceiling clamped; base plus penalty bottoms out at 1.0
	score = math.Round(score*10) / 10
	if score > 5 {
		score = 5
	}

	feedback := "Heuristic evaluation"
	if len(notes) > 0 {
		feedback = fmt.Sprintf("Heuristic evaluation: %s", strings.Join(notes, ", "))
	}

	return QualityScore{
		Score:    score,
		Method:   MethodDeterministic,
		Feedback: feedback,
	}
}

// hasAny reports whether the lowercase text contains any marker.
func hasAny(text string, markers ...string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
