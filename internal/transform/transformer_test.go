package transform

import (
	"strings"
	"testing"
)

func TestApplyIsStrictlyAdditive(t *testing.T) {
	inputs := []string{
		"Fix the bug",
		"You are a translator. Translate the following to French.",
		"Summarize the attached report. Output three bullet points, e.g. key risks.",
		strings.Repeat("Describe the architecture in detail. ", 12),
	}
	tr := NewTransformer()

	for _, in := range inputs {
		out := tr.Apply(in, nil)
		if !strings.Contains(out, in) {
			t.Errorf("output lost the original text for %q", in)
		}
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	tr := NewTransformer()
	in := "Summarize this document for a general audience"

	first := tr.Apply(in, nil)
	for i := 0; i < 5; i++ {
		if got := tr.Apply(in, nil); got != first {
			t.Fatal("repeated Apply produced different output")
		}
	}
}

func TestRulesSkipSatisfiedText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		ruleName string
	}{
		{"role present", "You are a support agent. Reply politely.", "role-definition"},
		{"format present", "List the steps. Format the output as JSON.", "output-format"},
		{"constraints present", "You must keep answers short.", "constraints"},
	}
	tr := NewTransformer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, name := range tr.AppliedRules(tt.text) {
				if name == tt.ruleName {
					t.Errorf("rule %s fired on already satisfied text", tt.ruleName)
				}
			}
		})
	}
}

func TestBarePromptGainsRoleAndConstraints(t *testing.T) {
	tr := NewTransformer()
	out := tr.Apply("Fix the bug", nil)

	if !strings.Contains(out, "You are an expert assistant") {
		t.Error("expected a role preamble")
	}
	if !strings.Contains(strings.ToLower(out), "ensure") {
		t.Error("expected a constraints addendum")
	}
}

func TestRulesSeeEvolvingText(t *testing.T) {
	// The role rule's preamble contains "for a", so later rules checking
	// "as a" style markers run against the already-prefixed text. Verify
	// each rule fires at most once by checking for duplicates.
	tr := NewTransformer()
	names := tr.AppliedRules("Fix the bug")

	seen := make(map[string]bool)
	for _, n := range names {
		if seen[n] {
			t.Errorf("rule %s reported twice", n)
		}
		seen[n] = true
	}
}

func TestSectionStructureNeedsBody(t *testing.T) {
	var rule Rule
	for _, r := range DefaultRules() {
		if r.Name == "section-structure" {
			rule = r
		}
	}
	if rule.Apply == nil {
		t.Fatal("section-structure rule missing from catalogue")
	}

	// The heading is only worth prepending when the text has line
	// structure to organize.
	long := strings.Repeat("describe the deployment pipeline in detail ", 10)
	if out := rule.Apply(long); strings.HasPrefix(out, "## Task") {
		t.Error("heading should not be prepended to single-line text")
	}

	multi := strings.Repeat("describe the deployment pipeline in detail\n", 10)
	if !rule.Check(multi) {
		t.Fatal("rule should fire on long unstructured text")
	}
	if out := rule.Apply(multi); !strings.HasPrefix(out, "## Task") {
		t.Error("heading should be prepended to multi-line text")
	}
}

func TestCustomRuleCatalogue(t *testing.T) {
	rules := []Rule{{
		Name:  "shout",
		Check: func(text string) bool { return !strings.HasSuffix(text, "!") },
		Apply: func(text string) string { return text + "!" },
	}}
	tr := NewTransformerWithRules(rules)

	if got := tr.Apply("hello", nil); got != "hello!" {
		t.Errorf("custom rule not applied: %q", got)
	}
	if got := tr.Apply("hello!", nil); got != "hello!" {
		t.Errorf("satisfied custom rule should not fire: %q", got)
	}
}
