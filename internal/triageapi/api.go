// Package triageapi exposes the operational HTTP surface: triggering runs,
// reading run reports and browsing an incident's audit trail.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/incident"
	"github.com/Popoo2020/Sentinel-AI-AutoTriage/internal/triage"
)

// TriageService defines the business operations the API needs.
type TriageService interface {
	Trigger(ctx context.Context) *triage.TriggerResult
	GetRun(id string) (*triage.Report, bool)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	source triage.Source
	audit  triage.Store
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, source triage.Source, audit triage.Store) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if source == nil {
		panic(xerrors.New("incident source is required"))
	}
	if audit == nil {
		panic(xerrors.New("audit store is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
		source: source,
		audit:  audit,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", a.handleTriggerRun)
		r.Get("/runs/{id}", a.handleGetRun)
		r.Get("/incidents/{id}", a.handleGetIncident)
		r.Get("/incidents/{id}/records", a.handleListRecords)
	})
}

func (a *API) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	tr := a.svc.Trigger(r.Context())

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Bool("autotriage.run.skipped", tr.Skipped))

	status := http.StatusAccepted
	if tr.Skipped {
		status = http.StatusConflict
	} else {
		span.SetAttributes(attribute.String("autotriage.run.id", tr.RunID))
		a.logger.Info(r.Context(), "triage run triggered", "run_id", tr.RunID)
	}

	writeJSON(w, status, tr)
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("autotriage.run.id", id))

	rep, ok := a.svc.GetRun(id)
	if !ok {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("autotriage.incident.id", id))

	raw, err := a.source.GetIncident(r.Context(), id)
	if err != nil {
		var verr *triage.ValidationError
		if errors.As(err, &verr) && verr.StatusCode == http.StatusNotFound {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.logger.Error(r.Context(), err, "failed to fetch incident", "incident_id", id)
		http.Error(w, `{"error":"upstream error"}`, http.StatusBadGateway)
		return
	}

	inc, err := incident.Normalize(raw)
	if err != nil {
		a.logger.Warn(r.Context(), "provider returned malformed incident", "incident_id", id, "error", err)
		http.Error(w, `{"error":"malformed incident payload"}`, http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

func (a *API) handleListRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("autotriage.incident.id", id))

	recs, err := a.audit.ListByIncident(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list audit records", "incident_id", id)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []*triage.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
