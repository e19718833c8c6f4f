package triage

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxRationaleLen bounds the free-text rationale carried on a Verdict.
const MaxRationaleLen = 2000

// Disposition is the reasoning backend's categorical judgment of an incident.
type Disposition string

const (
	DispositionBenign     Disposition = "benign"
	DispositionNeedsHuman Disposition = "needs_human"
	DispositionMalicious  Disposition = "malicious"
)

// ParseDisposition maps backend output onto the Disposition enum.
func ParseDisposition(s string) (Disposition, bool) {
	switch Disposition(strings.ToLower(strings.TrimSpace(s))) {
	case DispositionBenign:
		return DispositionBenign, true
	case DispositionNeedsHuman:
		return DispositionNeedsHuman, true
	case DispositionMalicious:
		return DispositionMalicious, true
	}
	return "", false
}

// Verdict is the structured output of a reasoning backend.
type Verdict struct {
	Disposition Disposition `json:"disposition"`
	Confidence  float64     `json:"confidence"`
	Rationale   string      `json:"rationale,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
}

// Valid reports whether the verdict is usable for decision-making.
// A verdict with an unknown disposition or a non-finite or out-of-range
// confidence is rejected, never defaulted to a disposition.
func (v *Verdict) Valid() bool {
	if v == nil {
		return false
	}
	switch v.Disposition {
	case DispositionBenign, DispositionNeedsHuman, DispositionMalicious:
	default:
		return false
	}
	if math.IsNaN(v.Confidence) || math.IsInf(v.Confidence, 0) {
		return false
	}
	return v.Confidence >= 0 && v.Confidence <= 1
}

// Action is what the pipeline does to an incident in the case system.
type Action string

const (
	ActionNoOp     Action = "noop"
	ActionComment  Action = "comment"
	ActionClose    Action = "close"
	ActionEscalate Action = "escalate"
)

// Decision is the output of the decision policy for one incident.
type Decision struct {
	Action  Action   `json:"action"`
	Comment string   `json:"comment,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Hash returns a stable digest of the decision content for the given
// incident. Identical (incident, decision) pairs always hash identically;
// the hash is what the audit log keys duplicate detection on.
func (d *Decision) Hash(incidentID string) string {
	tags := append([]string(nil), d.Tags...)
	sort.Strings(tags)

	h := sha256.New()
	for _, part := range []string{incidentID, string(d.Action), d.Comment, strings.Join(tags, "\x1f")} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Outcome is the terminal result of applying one decision.
type Outcome string

const (
	// OutcomeApplied means the external updates were made (or the decision
	// was a no-op and there was nothing to do).
	OutcomeApplied Outcome = "applied"

	// OutcomeSkippedDuplicate means an identical decision was already
	// applied to this incident, so no external call was made.
	OutcomeSkippedDuplicate Outcome = "skipped_duplicate"

	// OutcomeFailed means the external update could not be made.
	OutcomeFailed Outcome = "failed"
)

// Record is one append-only audit entry: incident, decision taken, when,
// and how applying it went. Records are never mutated after write.
type Record struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id,omitempty"`
	IncidentID   string    `json:"incident_id"`
	DecisionHash string    `json:"decision_hash"`
	Decision     Decision  `json:"decision"`
	Outcome      Outcome   `json:"outcome"`
	Attempts     int       `json:"attempts"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'g', -1, 64)
}
