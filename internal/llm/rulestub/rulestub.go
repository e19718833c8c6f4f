// Package rulestub provides a deterministic, rule-based triage.Classifier
// for tests and offline runs. It never calls the network.
package rulestub

import (
	"context"
	"strings"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

// rule maps a prompt substring to a fixed verdict.
type rule struct {
	substr  string
	verdict triage.Verdict
}

// Classifier applies its rules in order; the first matching substring wins.
// Prompts matching no rule resolve to needs_human at low confidence.
type Classifier struct {
	rules []rule
}

// New returns a Classifier with a small default ruleset keyed on severity
// markers in the prompt text.
func New() *Classifier {
	return &Classifier{
		rules: []rule{
			{substr: "[Informational]", verdict: triage.Verdict{
				Disposition: triage.DispositionBenign,
				Confidence:  0.9,
				Rationale:   "Informational severity incidents are noise in this environment.",
				Tags:        []string{"rule-informational"},
			}},
			{substr: "[High]", verdict: triage.Verdict{
				Disposition: triage.DispositionMalicious,
				Confidence:  0.7,
				Rationale:   "High severity incidents always require escalation.",
				Tags:        []string{"rule-high-severity"},
			}},
		},
	}
}

// Add registers an extra rule, evaluated after the defaults in
// registration order.
func (c *Classifier) Add(substr string, v triage.Verdict) {
	c.rules = append(c.rules, rule{substr: substr, verdict: v})
}

// Classify implements triage.Classifier.
func (c *Classifier) Classify(_ context.Context, prompt string) (*triage.Verdict, error) {
	for _, r := range c.rules {
		if strings.Contains(prompt, r.substr) {
			v := r.verdict
			return &v, nil
		}
	}
	return &triage.Verdict{
		Disposition: triage.DispositionNeedsHuman,
		Confidence:  0.3,
		Rationale:   "No triage rule matched this incident.",
		Tags:        []string{"rule-unmatched"},
	}, nil
}
