// Package transform mechanically improves prompt text through an ordered
// catalogue of additive rules. Every rule only prepends or appends, so the
// output is guaranteed to contain the original text as a substring; callers
// rely on that for diffing.
package transform

import (
	"strings"

	"promptsmith/internal/corpus"
	"promptsmith/internal/logging"
)

// Rule is a named, pure check/apply pair. Check decides whether the rule
// fires against the evolving text; Apply produces the new text. Rules must
// be deterministic and strictly additive.
type Rule struct {
	Name  string
	Check func(text string) bool
	Apply func(text string) string
}

// Transformer applies a fixed, ordered rule catalogue. Each rule runs once,
// in declared order, against the output of the previous rule, so no rule
// fires on content it already satisfies.
type Transformer struct {
	rules []Rule
}

// NewTransformer creates a transformer with the default rule catalogue.
func NewTransformer() *Transformer {
	return &Transformer{rules: DefaultRules()}
}

// NewTransformerWithRules creates a transformer with a custom catalogue.
func NewTransformerWithRules(rules []Rule) *Transformer {
	return &Transformer{rules: rules}
}

// Apply runs the catalogue over text. References are accepted for future
// extensibility; the default rules do not consult them.
func (t *Transformer) Apply(text string, refs []corpus.ReferenceRecord) string {
	result := text
	fired := 0

	for _, rule := range t.rules {
		if rule.Check(result) {
			result = rule.Apply(result)
			fired++
			logging.OptimizeDebug("Rule fired: %s", rule.Name)
		}
	}

	logging.OptimizeDebug("Transform complete: %d/%d rules fired", fired, len(t.rules))
	return result
}

// AppliedRules returns the names of the rules that would fire, in order.
func (t *Transformer) AppliedRules(text string) []string {
	var names []string
	result := text
	for _, rule := range t.rules {
		if rule.Check(result) {
			result = rule.Apply(result)
			names = append(names, rule.Name)
		}
	}
	return names
}

// containsAny reports whether the lowercase text contains any marker.
func containsAny(text string, markers ...string) bool {
	lower := strings.ToLower(text)
	for _, m := range markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// DefaultRules returns the fixed rule catalogue in declared order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "role-definition",
			Check: func(text string) bool {
				return !containsAny(text, "you are", "act as", "your role", "as a")
			},
			Apply: func(text string) string {
				return "You are an expert assistant for this task.\n\n" + text
			},
		},
		{
			Name: "output-format",
			Check: func(text string) bool {
				return !containsAny(text, "output", "format", "return")
			},
			Apply: func(text string) string {
				return text + "\n\nFormat the output clearly and consistently."
			},
		},
		{
			Name: "constraints",
			Check: func(text string) bool {
				return !containsAny(text, "must", "should", "ensure", "always", "never", "required")
			},
			Apply: func(text string) string {
				return text + "\n\nEnsure the response is accurate and complete."
			},
		},
		{
			Name: "step-structure",
			Check: func(text string) bool {
				return len(text) > 100 && !containsAny(text, "step", "first", "then", "finally")
			},
			Apply: func(text string) string {
				return text + "\n\nWork through the task step by step."
			},
		},
		{
			Name: "edge-cases",
			Check: func(text string) bool {
				return len(text) > 150 && !containsAny(text, "edge case", "edge-case", "corner case", "boundary")
			},
			Apply: func(text string) string {
				return text + "\n\nConsider edge cases and unusual inputs."
			},
		},
		{
			Name: "examples",
			Check: func(text string) bool {
				return len(text) > 100 && !containsAny(text, "example", "for instance", "e.g.", "such as")
			},
			Apply: func(text string) string {
				return text + "\n\nInclude concrete examples where helpful."
			},
		},
		{
			Name: "section-structure",
			Check: func(text string) bool {
				return len(text) > 300 && !containsAny(text, "#", "**")
			},
			Apply: func(text string) string {
				// Only worth structuring when the text already has body
				if strings.Count(text, "\n") >= 5 {
					return "## Task\n\n" + text
				}
				return text
			},
		},
	}
}
