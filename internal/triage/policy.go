package triage

import (
	"fmt"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
)

// DefaultCloseThreshold is the minimum confidence at which a benign verdict
// may close an incident.
const DefaultCloseThreshold = 0.85

// escalateComment is the comment attached when automated triage produced no
// usable verdict.
const escalateComment = "automated triage failed; human review required"

// Policy maps a verdict plus incident metadata onto an action. It is a pure
// value: Decide is deterministic given its inputs, which keeps it testable
// and lets audit entries be replayed.
type Policy struct {
	CloseThreshold float64
}

// NewPolicy returns a Policy with the given close-confidence threshold.
// A non-positive threshold falls back to DefaultCloseThreshold.
func NewPolicy(closeThreshold float64) Policy {
	if closeThreshold <= 0 {
		closeThreshold = DefaultCloseThreshold
	}
	return Policy{CloseThreshold: closeThreshold}
}

// Decide evaluates the policy rules in order; exactly one rule fires.
// Close is only ever produced for a valid benign verdict at or above the
// close threshold against a not-yet-closed incident. Under any uncertainty
// the result degrades to comment or escalate, never to close.
func (p Policy) Decide(inc *incident.Incident, v *Verdict) Decision {
	// rule 1: malformed or absent verdict
	if !v.Valid() {
		return Decision{
			Action:  ActionEscalate,
			Comment: escalateComment,
			Tags:    []string{"auto-triage", "needs-human-review"},
		}
	}

	tags := append([]string{"auto-triage"}, v.Tags...)

	// rule 2: malicious escalates regardless of confidence
	if v.Disposition == DispositionMalicious {
		return Decision{
			Action: ActionEscalate,
			Comment: fmt.Sprintf("Automated triage classified this incident as malicious (confidence %s). Escalating for immediate review.\n\n%s",
				formatConfidence(v.Confidence), v.Rationale),
			Tags: append(tags, "malicious"),
		}
	}

	// rules 3 and 4: benign
	if v.Disposition == DispositionBenign {
		if v.Confidence >= p.CloseThreshold && inc.Status == incident.StatusClosed {
			// already closed, nothing to do
			return Decision{Action: ActionNoOp}
		}
		if v.Confidence >= p.CloseThreshold {
			return Decision{
				Action: ActionClose,
				Comment: fmt.Sprintf("Automated triage classified this incident as benign with confidence %s (threshold %s). Closing.\n\n%s",
					formatConfidence(v.Confidence), formatConfidence(p.CloseThreshold), v.Rationale),
				Tags: append(tags, "auto-closed"),
			}
		}
		return Decision{
			Action: ActionComment,
			Comment: fmt.Sprintf("Automated triage classified this incident as benign with confidence %s, below the auto-close threshold. Flagging for human review.\n\n%s",
				formatConfidence(v.Confidence), v.Rationale),
			Tags: tags,
		}
	}

	// rule 5: needs human
	return Decision{
		Action: ActionComment,
		Comment: fmt.Sprintf("Automated triage could not resolve this incident (confidence %s). Analyst review requested.\n\n%s",
			formatConfidence(v.Confidence), v.Rationale),
		Tags: append(tags, "needs-human-review"),
	}
}
