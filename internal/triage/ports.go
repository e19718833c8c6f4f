package triage

import (
	"context"
	"encoding/json"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
)

// Classifier turns prompt text into a structured verdict. Implementations
// are pluggable (hosted model, local model, rule-based stub). They must
// return ErrBackendUnavailable for transient failures and a
// *BackendFormatError when the response cannot be parsed; retries are the
// caller's responsibility.
type Classifier interface {
	Classify(ctx context.Context, prompt string) (*Verdict, error)
}

// Source lists and fetches raw incident payloads from the provider.
// Authentication is the implementation's concern, outside this package.
type Source interface {
	ListActiveIncidents(ctx context.Context) ([]json.RawMessage, error)
	GetIncident(ctx context.Context, id string) (json.RawMessage, error)
}

// CaseSink applies updates to the case-management system. Each call may
// fail with a *TransportError (retryable) or a *ValidationError (not).
type CaseSink interface {
	AddComment(ctx context.Context, incidentID, text string) error
	SetStatus(ctx context.Context, incidentID string, status incident.Status) error
	AddTags(ctx context.Context, incidentID string, tags []string) error
}

// Store is the append-only audit log. No update or delete is exposed.
// Implementations must serialize appends so duplicate detection never races.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Find(ctx context.Context, incidentID, decisionHash string) (*Record, bool, error)
	ListByIncident(ctx context.Context, incidentID string) ([]*Record, error)
}

// Notifier fans a finished record out to a human channel. Used for
// escalations; failures are logged, never propagated into the run.
type Notifier interface {
	Send(ctx context.Context, inc *incident.Incident, rec *Record) error
}
